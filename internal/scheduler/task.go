package scheduler

import "time"

// Role is the closed set of agent roles a task can be assigned to.
// RoleOrchestrator plans and merges batches but never executes tasks itself.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleResearcher   Role = "researcher"
	RoleImplementer  Role = "implementer"
	RoleReviewer     Role = "reviewer"
	RoleValidator    Role = "validator"
	RoleWriter       Role = "writer"
	RoleRefactorer   Role = "refactorer"
)

// ExecutingRoles lists every role that can be dispatched to the agent
// execution service, in a stable order. RoleOrchestrator is excluded.
func ExecutingRoles() []Role {
	return []Role{
		RoleResearcher,
		RoleImplementer,
		RoleReviewer,
		RoleValidator,
		RoleWriter,
		RoleRefactorer,
	}
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleOrchestrator, RoleResearcher, RoleImplementer, RoleReviewer,
		RoleValidator, RoleWriter, RoleRefactorer:
		return true
	}
	return false
}

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Waiting for dependencies or dispatch
	TaskRunning                     // Currently executing
	TaskSucceeded                   // Finished successfully
	TaskFailed                      // Finished with an error
	TaskTimedOut                    // Execution exceeded its timeout
	TaskBlocked                     // A dependency terminally failed; can never run
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskTimedOut, TaskBlocked:
		return true
	}
	return false
}

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	case TaskTimedOut:
		return "timed_out"
	case TaskBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Task represents one unit of work in the dependency graph.
type Task struct {
	ID            string     // Unique identifier
	Description   string     // Free-text goal for the agent execution service
	Role          Role       // Executing role
	DependsOn     []string   // Task IDs that must succeed before this task is eligible
	AllowParallel bool       // Planner hint; the executor only honors dependency edges
	Status        TaskStatus
	Result        string    // Output from execution (populated after success)
	Err           error     // Error if failed, timed out, or blocked
	StartedAt     time.Time // When the task entered TaskRunning
	FinishedAt    time.Time // When the task reached a terminal status
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	return &cp
}
