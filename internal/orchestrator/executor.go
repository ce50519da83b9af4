package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/overseer-dev/overseer/internal/agent"
	"github.com/overseer-dev/overseer/internal/budget"
	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/routing"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

// DefaultTaskTimeout bounds a single agent invocation.
const DefaultTaskTimeout = 10 * time.Minute

// ProgressSink receives task outcome summaries, fire-and-forget.
// Implementations must never fail the task; they log and move on.
type ProgressSink interface {
	Append(role scheduler.Role, summary string, at time.Time)
}

// TaskExecutorConfig configures a TaskExecutor.
type TaskExecutorConfig struct {
	Classifier routing.Classifier               // defaults to the keyword classifier
	Selector   *routing.Selector                // defaults to NewSelector()
	Budget     *budget.Manager                  // required
	Services   map[scheduler.Role]agent.Service // per-role agent services
	Timeout    time.Duration                    // per-task timeout, defaults to DefaultTaskTimeout
	Sink       ProgressSink                     // optional
	Bus        *events.Bus                      // optional
}

// TaskExecutor executes one task: classify, select an execution
// configuration, gate on budget, then invoke the agent execution service
// under a timeout.
type TaskExecutor struct {
	classifier routing.Classifier
	selector   *routing.Selector
	budget     *budget.Manager
	services   map[scheduler.Role]agent.Service
	timeout    time.Duration
	sink       ProgressSink
	bus        *events.Bus
}

// NewTaskExecutor creates a TaskExecutor, filling in defaults.
func NewTaskExecutor(cfg TaskExecutorConfig) (*TaskExecutor, error) {
	if cfg.Budget == nil {
		return nil, errors.New("budget manager is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = routing.NewKeywordClassifier()
	}
	if cfg.Selector == nil {
		cfg.Selector = routing.NewSelector()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTaskTimeout
	}

	return &TaskExecutor{
		classifier: cfg.Classifier,
		selector:   cfg.Selector,
		budget:     cfg.Budget,
		services:   cfg.Services,
		timeout:    cfg.Timeout,
		sink:       cfg.Sink,
		bus:        cfg.Bus,
	}, nil
}

// Execute runs a single task to a terminal result. Failures are returned in
// the result, never as a panic or swallowed; the only side effects are the
// budget debit on success and the optional sink/bus notifications.
func (e *TaskExecutor) Execute(ctx context.Context, task *scheduler.Task) TaskResult {
	start := time.Now()

	tier := e.classifier.Classify(task.Description)
	execCfg := e.selector.Select(tier, e.budget.Snapshot())
	cost := budget.Estimate(task.Description)

	decision := e.budget.Check(cost)
	if decision.Warn && e.bus != nil {
		e.bus.Publish(events.TopicBudget, events.BudgetWarning{
			SessionPct: decision.SessionPct,
			DailyPct:   decision.DailyPct,
			Timestamp:  time.Now(),
		})
	}
	if !decision.CanProceed {
		// Short-circuit: the external service is never invoked.
		return TaskResult{
			TaskID: task.ID,
			Role:   task.Role,
			Status: scheduler.TaskFailed,
			Kind:   KindBudgetExceeded,
			Err: fmt.Errorf("estimated cost %.0f exceeds remaining budget (session %.1f%%, daily %.1f%% used)",
				cost, decision.SessionPct, decision.DailyPct),
			Duration:      time.Since(start),
			EstimatedCost: cost,
		}
	}

	svc, ok := e.services[task.Role]
	if !ok {
		return TaskResult{
			TaskID:   task.ID,
			Role:     task.Role,
			Status:   scheduler.TaskFailed,
			Kind:     KindExecutionFailure,
			Err:      fmt.Errorf("no agent service registered for role %q", task.Role),
			Duration: time.Since(start),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := svc.Execute(callCtx, agent.Request{
		Description: task.Description,
		Role:        task.Role,
		Model:       execCfg.Model,
		Thinking:    execCfg.Thinking,
	})
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return TaskResult{
				TaskID:   task.ID,
				Role:     task.Role,
				Status:   scheduler.TaskTimedOut,
				Kind:     KindTimeout,
				Err:      fmt.Errorf("agent call exceeded %s: %w", e.timeout, err),
				Duration: duration,
			}
		}
		return TaskResult{
			TaskID:   task.ID,
			Role:     task.Role,
			Status:   scheduler.TaskFailed,
			Kind:     KindExecutionFailure,
			Err:      err,
			Duration: duration,
		}
	}

	if !res.Success {
		return TaskResult{
			TaskID:   task.ID,
			Role:     task.Role,
			Status:   scheduler.TaskFailed,
			Kind:     KindExecutionFailure,
			Err:      fmt.Errorf("agent reported failure: %s", res.ErrorInfo),
			Output:   res.Output,
			Duration: duration,
		}
	}

	e.budget.Record(cost)
	if e.sink != nil {
		e.sink.Append(task.Role, summarize(task, res.Output), time.Now())
	}

	return TaskResult{
		TaskID:        task.ID,
		Role:          task.Role,
		Status:        scheduler.TaskSucceeded,
		Output:        res.Output,
		Duration:      duration,
		EstimatedCost: cost,
	}
}

// summarize builds a short journal line for a completed task.
func summarize(task *scheduler.Task, output string) string {
	const maxLen = 200
	s := fmt.Sprintf("%s: %s", task.ID, output)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
