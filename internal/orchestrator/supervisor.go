package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/overseer-dev/overseer/internal/budget"
	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/persistence"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

// DefaultMaxIterations bounds the supervisor loop when no limit is
// configured. An un-capped loop is a defect, so zero is never honored.
const DefaultMaxIterations = 5

// State is the supervisor's per-run state, mutated once per loop iteration.
type State struct {
	RunID     string
	Goal      string
	Iteration int
	Verdict   Verdict
}

// Outcome is how a run ended.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeEscalated
)

func (o Outcome) String() string {
	if o == OutcomeDone {
		return "done"
	}
	return "escalated"
}

// TaskFailure is one failed task's entry in an escalation report.
type TaskFailure struct {
	TaskID  string
	Role    scheduler.Role
	Kind    ErrorKind
	Message string
}

// Report is the user-visible summary of a finished run. An escalated run
// always names which tasks failed, why, and the budget consumed; it is
// never a bare "something went wrong".
type Report struct {
	RunID      string
	Goal       string
	Outcome    Outcome
	Verdict    Verdict
	Iterations int
	Reason     string
	Results    []TaskResult // last iteration's results
	Failures   []TaskFailure
	Budget     budget.Snapshot
}

// SnapshotStore is the slice of the persistence layer the supervisor needs.
type SnapshotStore interface {
	SaveRun(ctx context.Context, snap persistence.RunSnapshot) error
}

// SupervisorConfig configures a Supervisor. Planner, Runner, and Budget are
// required; everything else has working defaults or is optional.
type SupervisorConfig struct {
	Planner        Planner
	Runner         *ParallelRunner
	Evaluator      *Evaluator
	Budget         *budget.Manager
	Shares         map[scheduler.Role]float64
	MaxIterations  int
	Store          SnapshotStore      // optional; snapshot after every iteration
	Escalation     *EscalationChannel // optional; receives the final report of a stuck run
	Bus            *events.Bus        // optional
	RunID          string             // generated when empty
	StartIteration int                // non-zero when resuming a persisted run
}

// Supervisor drives the plan -> execute -> evaluate loop for one goal.
type Supervisor struct {
	cfg     SupervisorConfig
	state   State
	history []IterationRecord
}

// NewSupervisor creates a Supervisor, filling in defaults.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.Budget == nil {
		return nil, errors.New("budget manager is required")
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = NewEvaluator(EvaluatorConfig{})
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Shares == nil {
		cfg.Shares = budget.DefaultShares()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()[:8]
	}

	return &Supervisor{cfg: cfg}, nil
}

// State returns a copy of the supervisor's current state.
func (s *Supervisor) State() State {
	return s.state
}

// Run drives the loop until the goal is met, the run is judged stuck, or
// the iteration limit is exhausted. The returned report is complete for
// both outcomes; the only error paths are planning failures and context
// cancellation.
func (s *Supervisor) Run(ctx context.Context, goal string) (*Report, error) {
	s.state = State{RunID: s.cfg.RunID, Goal: goal, Iteration: s.cfg.StartIteration}
	s.history = nil

	correction := ""
	var lastResults []TaskResult

	for s.state.Iteration < s.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := s.cfg.Planner.Plan(ctx, PlanRequest{
			Goal:       goal,
			Iteration:  s.state.Iteration,
			Correction: correction,
			Prior:      lastResults,
		})
		if err != nil {
			return nil, fmt.Errorf("planning iteration %d: %w", s.state.Iteration, err)
		}

		dag, err := scheduler.Build(batch)
		if err != nil {
			// A cyclic or ill-formed batch is fatal to the batch, not to
			// the run: burn the iteration and re-plan with the rejection
			// as corrective context.
			log.Printf("WARNING: iteration %d batch rejected: %v", s.state.Iteration, err)
			correction = fmt.Sprintf("the previous plan was rejected before execution (%v); produce a well-formed acyclic batch", err)
			s.history = append(s.history, IterationRecord{Iteration: s.state.Iteration})
			s.state.Verdict = VerdictNeedsCorrection
			s.state.Iteration++
			s.saveSnapshot(ctx, nil)
			continue
		}

		if s.cfg.Bus != nil {
			s.cfg.Bus.Publish(events.TopicRun, events.IterationStarted{
				RunID:     s.state.RunID,
				Iteration: s.state.Iteration,
				Tasks:     len(batch),
				Timestamp: time.Now(),
			})
		}

		results, err := s.cfg.Runner.Run(ctx, dag, s.allocate(batch))
		lastResults = results
		if err != nil {
			return nil, err
		}

		tasks := dag.Tasks()
		s.history = append(s.history, RecordWithTasks(s.state.Iteration, tasks, results))
		verdict, corr := s.cfg.Evaluator.Evaluate(tasks, results, s.history)

		s.state.Verdict = verdict
		s.state.Iteration++
		s.saveSnapshot(ctx, tasks)

		if s.cfg.Bus != nil {
			s.cfg.Bus.Publish(events.TopicRun, events.IterationEvaluated{
				RunID:     s.state.RunID,
				Iteration: s.state.Iteration - 1,
				Verdict:   verdict.String(),
				Timestamp: time.Now(),
			})
		}

		switch verdict {
		case VerdictSuccess:
			return s.report(OutcomeDone, results, "goal satisfied"), nil
		case VerdictStuck:
			return s.escalate(ctx, results, fmt.Sprintf("no progress after iteration %d: %s", s.state.Iteration-1, corr))
		default:
			correction = corr
		}
	}

	return s.escalate(ctx, lastResults, fmt.Sprintf("iteration limit %d exhausted", s.cfg.MaxIterations))
}

// allocate carves the remaining session budget across the batch's roles.
// Returns nil (no batch tracking) when the budget is unlimited or the
// batch's roles carry no shares.
func (s *Supervisor) allocate(batch []*scheduler.Task) *budget.Allocation {
	total := s.cfg.Budget.SessionRemaining()
	if total <= 0 {
		return nil
	}

	seen := make(map[scheduler.Role]bool)
	var roles []scheduler.Role
	for _, task := range batch {
		if !seen[task.Role] {
			seen[task.Role] = true
			roles = append(roles, task.Role)
		}
	}

	alloc, err := budget.Allocate(roles, total, s.cfg.Shares)
	if err != nil {
		log.Printf("WARNING: batch budget allocation disabled: %v", err)
		return nil
	}
	return alloc
}

func (s *Supervisor) saveSnapshot(ctx context.Context, tasks []*scheduler.Task) {
	if s.cfg.Store == nil {
		return
	}

	snap := s.cfg.Budget.Snapshot()
	err := s.cfg.Store.SaveRun(ctx, persistence.RunSnapshot{
		RunID:        s.state.RunID,
		Goal:         s.state.Goal,
		Iteration:    s.state.Iteration,
		Verdict:      s.state.Verdict.String(),
		SessionLimit: snap.SessionLimit,
		SessionUsed:  snap.SessionUsed,
		DailyLimit:   snap.DailyLimit,
		DailyUsed:    snap.DailyUsed,
		Tasks:        tasks,
		SavedAt:      time.Now(),
	})
	if err != nil {
		log.Printf("WARNING: failed to persist run snapshot: %v", err)
	}
}

func (s *Supervisor) report(outcome Outcome, results []TaskResult, reason string) *Report {
	report := &Report{
		RunID:      s.state.RunID,
		Goal:       s.state.Goal,
		Outcome:    outcome,
		Verdict:    s.state.Verdict,
		Iterations: s.state.Iteration,
		Reason:     reason,
		Results:    results,
		Budget:     s.cfg.Budget.Snapshot(),
	}

	for _, res := range results {
		if res.Failed() {
			msg := ""
			if res.Err != nil {
				msg = res.Err.Error()
			}
			report.Failures = append(report.Failures, TaskFailure{
				TaskID:  res.TaskID,
				Role:    res.Role,
				Kind:    res.Kind,
				Message: msg,
			})
		}
	}

	return report
}

// escalate hands the final report to the escalation channel, if any, and
// returns it. The loop never decides what escalation means.
func (s *Supervisor) escalate(ctx context.Context, results []TaskResult, reason string) (*Report, error) {
	// Exhausting the iteration limit is a Stuck verdict by definition.
	s.state.Verdict = VerdictStuck
	report := s.report(OutcomeEscalated, results, reason)

	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.TopicRun, events.RunEscalated{
			RunID:     s.state.RunID,
			Reason:    reason,
			Timestamp: time.Now(),
		})
	}

	if s.cfg.Escalation != nil {
		if err := s.cfg.Escalation.Escalate(ctx, report); err != nil {
			log.Printf("WARNING: escalation hand-off failed: %v", err)
		}
	}

	return report, nil
}
