package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/overseer-dev/overseer/internal/agent"
	"github.com/overseer-dev/overseer/internal/budget"
	"github.com/overseer-dev/overseer/internal/config"
	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/orchestrator"
	"github.com/overseer-dev/overseer/internal/persistence"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

func main() {
	goal := flag.String("goal", "", "high-level objective to orchestrate (required)")
	workers := flag.Int("workers", 0, "max concurrent tasks (0 = config value)")
	maxIterations := flag.Int("max-iterations", 0, "supervisor iteration cap (0 = config value)")
	statePath := flag.String("state", "", "SQLite state database path (empty = config value)")
	resume := flag.String("resume", "", "resume a persisted run by id")
	flag.Parse()

	if *goal == "" && *resume == "" {
		fmt.Fprintln(os.Stderr, "Usage: overseer -goal \"objective\" [-workers N] [-max-iterations N] | overseer -resume RUN_ID")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := agent.NewProcessManager()
	go func() {
		<-ctx.Done()
		if err := pm.KillAll(); err != nil {
			log.Printf("WARNING: failed to kill agent subprocesses: %v", err)
		}
	}()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Executor.MaxWorkers = *workers
	}
	if *maxIterations > 0 {
		cfg.Supervisor.MaxIterations = *maxIterations
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}

	report, err := run(ctx, cfg, pm, *goal, *resume)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printReport(report)
	if report.Outcome == orchestrator.OutcomeEscalated {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, pm *agent.ProcessManager, goal, resumeID string) (*orchestrator.Report, error) {
	store, err := persistence.NewSQLiteStore(ctx, cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	// Resuming picks up the persisted goal, budget counters, and iteration
	// so a crashed run continues at its next iteration.
	var snap *persistence.RunSnapshot
	if resumeID != "" {
		snap, err = store.LoadRun(ctx, resumeID)
		if err != nil {
			return nil, fmt.Errorf("resuming run %s: %w", resumeID, err)
		}
		if goal == "" {
			goal = snap.Goal
		}
	}

	bus := events.NewBus()
	defer bus.Close()
	go reportEvents(bus.SubscribeAll(0))

	services, planSvc, err := buildServices(cfg, pm)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, svc := range services {
			svc.Close()
		}
	}()

	budgetMgr := budget.NewManager(cfg.Budget.SessionLimit, cfg.Budget.DailyLimit)
	if snap != nil {
		budgetMgr.Restore(snap.SessionUsed, snap.DailyUsed)
	}

	executor, err := orchestrator.NewTaskExecutor(orchestrator.TaskExecutorConfig{
		Budget:   budgetMgr,
		Services: services,
		Timeout:  time.Duration(cfg.Executor.TaskTimeoutSeconds) * time.Second,
		Sink:     persistence.NewJournal(store),
		Bus:      bus,
	})
	if err != nil {
		return nil, err
	}

	runner := orchestrator.NewParallelRunner(executor, cfg.Executor.MaxWorkers, bus)

	local := orchestrator.NewLocalPlanner(pipelineRoles(cfg.Supervisor.Pipeline))
	var planner orchestrator.Planner = local
	if cfg.Supervisor.AgentPlanner && planSvc != nil {
		planner = orchestrator.NewAgentPlanner(planSvc, local)
	}

	escalation := orchestrator.NewEscalationChannel(1, func(_ context.Context, report *orchestrator.Report) error {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "run %s escalated: %s\n", report.RunID, report.Reason)
		return nil
	})
	escalation.Start(ctx)

	supCfg := orchestrator.SupervisorConfig{
		Planner:       planner,
		Runner:        runner,
		Budget:        budgetMgr,
		Shares:        shareRoles(cfg.Budget.Shares),
		MaxIterations: cfg.Supervisor.MaxIterations,
		Store:         store,
		Escalation:    escalation,
		Bus:           bus,
	}
	if snap != nil {
		supCfg.RunID = snap.RunID
		supCfg.StartIteration = snap.Iteration
	}

	supervisor, err := orchestrator.NewSupervisor(supCfg)
	if err != nil {
		return nil, err
	}

	return supervisor.Run(ctx, goal)
}

// buildServices creates one resilient CLI service per configured executing
// role, plus the orchestrator-role service used by the agent planner.
func buildServices(cfg *config.Config, pm *agent.ProcessManager) (map[scheduler.Role]agent.Service, agent.Service, error) {
	services := make(map[scheduler.Role]agent.Service)
	var planSvc agent.Service

	for name, roleCfg := range cfg.Roles {
		role := scheduler.Role(name)
		if !role.Valid() {
			return nil, nil, fmt.Errorf("config role %q is not a known agent role", name)
		}

		provider, ok := cfg.Providers[roleCfg.Provider]
		if !ok {
			return nil, nil, fmt.Errorf("role %q references unknown provider %q", name, roleCfg.Provider)
		}

		cli, err := agent.NewCLIService(agent.CLIConfig{
			Command:      provider.Command,
			Args:         provider.Args,
			Model:        roleCfg.Model,
			SystemPrompt: roleCfg.SystemPrompt,
		}, pm)
		if err != nil {
			return nil, nil, fmt.Errorf("creating service for role %q: %w", name, err)
		}

		svc := agent.NewResilient(roleCfg.Provider, cli, agent.DefaultRetryConfig())
		if role == scheduler.RoleOrchestrator {
			planSvc = svc
			continue
		}
		services[role] = svc
	}

	return services, planSvc, nil
}

func pipelineRoles(names []string) []scheduler.Role {
	var roles []scheduler.Role
	for _, name := range names {
		role := scheduler.Role(name)
		if role.Valid() && role != scheduler.RoleOrchestrator {
			roles = append(roles, role)
		}
	}
	return roles
}

func shareRoles(shares map[string]float64) map[scheduler.Role]float64 {
	if len(shares) == 0 {
		return nil
	}
	out := make(map[scheduler.Role]float64, len(shares))
	for name, pct := range shares {
		out[scheduler.Role(name)] = pct
	}
	return out
}

// reportEvents prints the run's event stream to stderr as it happens.
func reportEvents(ch <-chan events.Event) {
	dim := color.New(color.Faint)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for ev := range ch {
		switch e := ev.(type) {
		case events.TaskStarted:
			dim.Fprintf(os.Stderr, "  -> %s (%s)\n", e.ID, e.Role)
		case events.TaskFinished:
			if e.Status == scheduler.TaskSucceeded {
				green.Fprintf(os.Stderr, "  ok %s (%s)\n", e.ID, e.Duration.Round(time.Millisecond))
			} else {
				red.Fprintf(os.Stderr, "  %s %s: %s\n", e.Status, e.ID, e.ErrorKind)
			}
		case events.TaskBlocked:
			yellow.Fprintf(os.Stderr, "  blocked %s: %s\n", e.ID, e.Reason)
		case events.IterationStarted:
			fmt.Fprintf(os.Stderr, "iteration %d: %d tasks\n", e.Iteration, e.Tasks)
		case events.IterationEvaluated:
			fmt.Fprintf(os.Stderr, "iteration %d verdict: %s\n", e.Iteration, e.Verdict)
		case events.BudgetWarning:
			yellow.Fprintf(os.Stderr, "budget warning: session %.1f%% used\n", e.SessionPct)
		}
	}
}

func printReport(report *orchestrator.Report) {
	bold := color.New(color.Bold)

	if report.Outcome == orchestrator.OutcomeDone {
		color.New(color.FgGreen, color.Bold).Printf("run %s done", report.RunID)
	} else {
		color.New(color.FgRed, color.Bold).Printf("run %s escalated", report.RunID)
	}
	fmt.Printf(" after %d iteration(s): %s\n", report.Iterations, report.Reason)

	if len(report.Failures) > 0 {
		bold.Println("failed tasks:")
		for _, f := range report.Failures {
			fmt.Printf("  %s (%s): %s: %s\n", f.TaskID, f.Role, f.Kind, f.Message)
		}
	}

	fmt.Printf("budget: session %.0f/%.0f, daily %.0f/%.0f\n",
		report.Budget.SessionUsed, report.Budget.SessionLimit,
		report.Budget.DailyUsed, report.Budget.DailyLimit)
}
