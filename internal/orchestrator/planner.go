package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/overseer-dev/overseer/internal/agent"
	"github.com/overseer-dev/overseer/internal/routing"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

// PlanRequest carries everything a planner may condition on. Planners must
// be deterministic given the same request.
type PlanRequest struct {
	Goal       string
	Iteration  int
	Correction string       // corrective context from the previous evaluation, empty on the first pass
	Prior      []TaskResult // results of the previous iteration, nil on the first pass
}

// Planner produces the next task batch for a goal.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) ([]*scheduler.Task, error)
}

// DefaultPipeline is the role pipeline the local planner expands a goal
// into when none is configured.
func DefaultPipeline() []scheduler.Role {
	return []scheduler.Role{
		scheduler.RoleResearcher,
		scheduler.RoleImplementer,
		scheduler.RoleReviewer,
		scheduler.RoleValidator,
	}
}

// LocalPlanner is the rule-based planning strategy: it expands the goal
// into a fixed role pipeline on the first iteration and into a
// fix-then-validate batch on corrective iterations. Fully deterministic.
type LocalPlanner struct {
	pipeline []scheduler.Role
}

// NewLocalPlanner creates a local planner. An empty pipeline selects
// DefaultPipeline.
func NewLocalPlanner(pipeline []scheduler.Role) *LocalPlanner {
	if len(pipeline) == 0 {
		pipeline = DefaultPipeline()
	}
	return &LocalPlanner{pipeline: pipeline}
}

func (p *LocalPlanner) Plan(_ context.Context, req PlanRequest) ([]*scheduler.Task, error) {
	if req.Correction != "" {
		return p.correctivePlan(req), nil
	}

	var tasks []*scheduler.Task
	prevID := ""
	for _, role := range p.pipeline {
		task := &scheduler.Task{
			ID:            fmt.Sprintf("i%d-%s", req.Iteration, role),
			Description:   pipelineDescription(role, req.Goal),
			Role:          role,
			AllowParallel: true,
		}
		if prevID != "" {
			task.DependsOn = []string{prevID}
		}
		tasks = append(tasks, task)
		prevID = task.ID
	}

	ChainExclusive(tasks)
	return tasks, nil
}

// correctivePlan produces a fix batch driven by the evaluator's correction
// text: one implementer task addressing the reported problems, validated
// afterwards.
func (p *LocalPlanner) correctivePlan(req PlanRequest) []*scheduler.Task {
	fixID := fmt.Sprintf("i%d-%s", req.Iteration, scheduler.RoleImplementer)
	tasks := []*scheduler.Task{
		{
			ID:            fixID,
			Description:   fmt.Sprintf("Fix the reported problems for goal %q. %s", req.Goal, req.Correction),
			Role:          scheduler.RoleImplementer,
			AllowParallel: true,
		},
		{
			ID:            fmt.Sprintf("i%d-%s", req.Iteration, scheduler.RoleValidator),
			Description:   fmt.Sprintf("Validate that the fixes satisfy the goal: %s", req.Goal),
			Role:          scheduler.RoleValidator,
			DependsOn:     []string{fixID},
			AllowParallel: true,
		},
	}
	ChainExclusive(tasks)
	return tasks
}

func pipelineDescription(role scheduler.Role, goal string) string {
	switch role {
	case scheduler.RoleResearcher:
		return fmt.Sprintf("Research prior art and constraints for: %s", goal)
	case scheduler.RoleImplementer:
		return fmt.Sprintf("Implement: %s", goal)
	case scheduler.RoleReviewer:
		return fmt.Sprintf("Review the implementation of: %s", goal)
	case scheduler.RoleValidator:
		return fmt.Sprintf("Validate the results against the goal: %s", goal)
	case scheduler.RoleWriter:
		return fmt.Sprintf("Write up the outcome of: %s", goal)
	case scheduler.RoleRefactorer:
		return fmt.Sprintf("Clean up the implementation of: %s", goal)
	default:
		return goal
	}
}

// ChainExclusive consumes the allow_parallel hint at batch-build time:
// tasks that opted out of parallelism and share no dependency edge are
// chained with synthetic edges, in batch order. The executor itself never
// serializes beyond dependency edges.
func ChainExclusive(tasks []*scheduler.Task) {
	prevExclusive := ""
	for _, task := range tasks {
		if task.AllowParallel {
			continue
		}
		if prevExclusive != "" && !dependsOn(task, prevExclusive) {
			task.DependsOn = append(task.DependsOn, prevExclusive)
		}
		prevExclusive = task.ID
	}
}

func dependsOn(task *scheduler.Task, id string) bool {
	for _, dep := range task.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

// AgentPlanner is the enhanced planning strategy: it asks an
// Orchestrator-role agent to emit the next batch as JSON. When the agent is
// unavailable or its output does not parse, it falls back to the local
// planner for that iteration, so the supervisor behaves identically under
// either strategy.
type AgentPlanner struct {
	svc      agent.Service
	fallback *LocalPlanner
}

// plannedTask is the JSON shape the planning agent must produce.
type plannedTask struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Role          string   `json:"role"`
	DependsOn     []string `json:"depends_on"`
	AllowParallel bool     `json:"allow_parallel"`
}

// NewAgentPlanner creates an agent-backed planner with a local fallback.
func NewAgentPlanner(svc agent.Service, fallback *LocalPlanner) *AgentPlanner {
	if fallback == nil {
		fallback = NewLocalPlanner(nil)
	}
	return &AgentPlanner{svc: svc, fallback: fallback}
}

func (p *AgentPlanner) Plan(ctx context.Context, req PlanRequest) ([]*scheduler.Task, error) {
	res, err := p.svc.Execute(ctx, agent.Request{
		Description: p.prompt(req),
		Role:        scheduler.RoleOrchestrator,
		Model:       routing.ModelPremium,
		Thinking:    routing.ThinkingExtended,
	})
	if err != nil || !res.Success {
		log.Printf("WARNING: planning agent unavailable, using local plan: %v", planFailure(res, err))
		return p.fallback.Plan(ctx, req)
	}

	tasks, err := parsePlannedBatch(res.Output)
	if err != nil {
		log.Printf("WARNING: planning agent output rejected, using local plan: %v", err)
		return p.fallback.Plan(ctx, req)
	}

	ChainExclusive(tasks)
	return tasks, nil
}

func (p *AgentPlanner) prompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan the next task batch for this goal: %s\n", req.Goal)
	fmt.Fprintf(&b, "Iteration: %d\n", req.Iteration)
	if req.Correction != "" {
		fmt.Fprintf(&b, "Problems to correct: %s\n", req.Correction)
	}
	for _, r := range req.Prior {
		fmt.Fprintf(&b, "Previous result %s: %s\n", r.TaskID, r.Status)
	}
	b.WriteString("Respond with only a JSON array of tasks: " +
		`[{"id","description","role","depends_on","allow_parallel"}]. ` +
		"Valid roles: researcher, implementer, reviewer, validator, writer, refactorer.")
	return b.String()
}

func parsePlannedBatch(output string) ([]*scheduler.Task, error) {
	var planned []plannedTask
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &planned); err != nil {
		return nil, fmt.Errorf("parsing planned batch: %w", err)
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("planning agent returned an empty batch")
	}

	tasks := make([]*scheduler.Task, 0, len(planned))
	for _, pt := range planned {
		role := scheduler.Role(pt.Role)
		if !role.Valid() || role == scheduler.RoleOrchestrator {
			return nil, fmt.Errorf("planned task %q has invalid role %q", pt.ID, pt.Role)
		}
		tasks = append(tasks, &scheduler.Task{
			ID:            pt.ID,
			Description:   pt.Description,
			Role:          role,
			DependsOn:     pt.DependsOn,
			AllowParallel: pt.AllowParallel,
		})
	}
	return tasks, nil
}

func planFailure(res agent.Result, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("agent reported failure: %s", res.ErrorInfo)
}
