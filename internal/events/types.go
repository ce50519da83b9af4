// Package events provides the notification and audit side channel for an
// orchestration run. Publishing is fire-and-forget: a slow subscriber drops
// events, it never stalls the scheduler.
package events

import (
	"time"

	"github.com/overseer-dev/overseer/internal/scheduler"
)

// Event is the base interface for all events.
type Event interface {
	Kind() string
}

// Topic constants.
const (
	TopicTask   = "task"
	TopicRun    = "run"
	TopicBudget = "budget"
)

// Event kind constants.
const (
	KindTaskStarted        = "task.started"
	KindTaskFinished       = "task.finished"
	KindTaskBlocked        = "task.blocked"
	KindIterationStarted   = "run.iteration_started"
	KindIterationEvaluated = "run.iteration_evaluated"
	KindRunEscalated       = "run.escalated"
	KindBudgetWarning      = "budget.warning"
)

// TaskStarted is published when a task enters Running.
type TaskStarted struct {
	ID        string
	Role      scheduler.Role
	Timestamp time.Time
}

func (e TaskStarted) Kind() string { return KindTaskStarted }

// TaskFinished is published when a task reaches a terminal status other
// than Blocked.
type TaskFinished struct {
	ID        string
	Role      scheduler.Role
	Status    scheduler.TaskStatus
	ErrorKind string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFinished) Kind() string { return KindTaskFinished }

// TaskBlocked is published when a task is marked blocked-forever because a
// dependency terminally failed.
type TaskBlocked struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskBlocked) Kind() string { return KindTaskBlocked }

// IterationStarted is published when the supervisor begins a loop iteration.
type IterationStarted struct {
	RunID     string
	Iteration int
	Tasks     int
	Timestamp time.Time
}

func (e IterationStarted) Kind() string { return KindIterationStarted }

// IterationEvaluated is published after the supervisor evaluates a batch.
type IterationEvaluated struct {
	RunID     string
	Iteration int
	Verdict   string
	Timestamp time.Time
}

func (e IterationEvaluated) Kind() string { return KindIterationEvaluated }

// RunEscalated is published when a run hands off to the escalation channel.
type RunEscalated struct {
	RunID     string
	Reason    string
	Timestamp time.Time
}

func (e RunEscalated) Kind() string { return KindRunEscalated }

// BudgetWarning is published when session usage crosses the warn threshold.
type BudgetWarning struct {
	SessionPct float64
	DailyPct   float64
	Timestamp  time.Time
}

func (e BudgetWarning) Kind() string { return KindBudgetWarning }
