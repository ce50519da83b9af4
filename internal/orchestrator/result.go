// Package orchestrator contains the execution core: the single-task
// executor, the parallel DAG runner, and the plan/execute/evaluate
// supervisor loop.
package orchestrator

import (
	"time"

	"github.com/overseer-dev/overseer/internal/scheduler"
)

// ErrorKind classifies why a task did not succeed. Subprocess and transport
// details are translated into these categories at the agent boundary and
// never leak further up.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindBudgetExceeded   ErrorKind = "budget_exceeded"
	KindTimeout          ErrorKind = "execution_timeout"
	KindExecutionFailure ErrorKind = "execution_failure"
	KindBlocked          ErrorKind = "dependency_blocked"
)

// TaskResult is produced when a task leaves Running (or is blocked before
// it could start).
type TaskResult struct {
	TaskID        string
	Role          scheduler.Role
	Status        scheduler.TaskStatus
	Output        string
	Kind          ErrorKind
	Err           error
	Duration      time.Duration
	EstimatedCost float64
}

// Failed reports whether the result is a non-success terminal outcome.
func (r TaskResult) Failed() bool {
	return r.Status != scheduler.TaskSucceeded
}
