package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// CycleError is returned when a task batch contains a dependency cycle.
// TaskIDs names the tasks that participate in (or are trapped behind) the cycle.
type CycleError struct {
	TaskIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving tasks: %s", strings.Join(e.TaskIDs, ", "))
}

// DAG is a directed acyclic graph of tasks keyed by ID.
// All status transitions go through the DAG so readers always see a
// consistent view; tasks are cloned on the way out.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	dependents map[string][]string // taskID -> tasks that depend on it
}

// Build constructs a DAG from a task batch and validates it.
// The batch is rejected as a whole if any ID is duplicated, any dependency
// references a task outside the batch, or the dependency relation is cyclic.
// No task from a rejected batch is ever scheduled.
func Build(tasks []*Task) (*DAG, error) {
	d := &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}

	for _, task := range tasks {
		if err := d.add(task); err != nil {
			return nil, err
		}
	}

	if _, err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *DAG) add(task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("task with empty ID")
	}
	if !task.Role.Valid() {
		return fmt.Errorf("task %q has unknown role %q", task.ID, task.Role)
	}
	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = cloneTask(task)

	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// Validate runs topological sort over the dependency edges.
// Returns ordered task IDs, or a *CycleError if the graph is cyclic.
// Also verifies every dependency references a task in the graph.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for taskID, task := range d.tasks {
		for _, depID := range task.DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for taskID, task := range d.tasks {
		if len(task.DependsOn) == 0 {
			// Root task: synthetic edge from nil so it appears in the sort.
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &CycleError{TaskIDs: d.cycleMembers()}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	return order, nil
}

// cycleMembers peels tasks whose in-degree reaches zero; whatever remains is
// part of a cycle or trapped behind one. Caller holds at least a read lock.
func (d *DAG) cycleMembers() []string {
	indegree := make(map[string]int, len(d.tasks))
	for id, task := range d.tasks {
		indegree[id] = len(task.DependsOn)
	}

	queue := []string{}
	for id, n := range indegree {
		if n == 0 {
			queue = append(queue, id)
		}
	}

	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, depID := range d.dependents[id] {
			indegree[depID]--
			if indegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	members := make([]string, 0, len(d.tasks)-removed)
	for id, n := range indegree {
		if n > 0 {
			members = append(members, id)
		}
	}
	sort.Strings(members)
	return members
}

// Ready returns all pending tasks whose every dependency has succeeded.
func (d *DAG) Ready() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ready := []*Task{}
	for _, task := range d.tasks {
		if task.Status != TaskPending {
			continue
		}

		eligible := true
		for _, depID := range task.DependsOn {
			dep, exists := d.tasks[depID]
			if !exists || dep.Status != TaskSucceeded {
				eligible = false
				break
			}
		}

		if eligible {
			ready = append(ready, cloneTask(task))
		}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// PropagateBlocked marks every pending task with a terminally failed
// dependency as TaskBlocked, transitively, and returns the newly blocked
// tasks. Blocked tasks are reported, never silently skipped.
func (d *DAG) PropagateBlocked() []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	var blocked []*Task
	for {
		progressed := false
		for _, task := range d.tasks {
			if task.Status != TaskPending {
				continue
			}
			for _, depID := range task.DependsOn {
				dep, exists := d.tasks[depID]
				if !exists {
					continue
				}
				if dep.Status == TaskFailed || dep.Status == TaskTimedOut || dep.Status == TaskBlocked {
					task.Status = TaskBlocked
					task.Err = fmt.Errorf("dependency %q %s", depID, dep.Status)
					task.FinishedAt = time.Now()
					blocked = append(blocked, cloneTask(task))
					progressed = true
					break
				}
			}
		}
		if !progressed {
			break
		}
	}

	sort.Slice(blocked, func(i, j int) bool { return blocked[i].ID < blocked[j].ID })
	return blocked
}

// MarkRunning transitions a task to TaskRunning and stamps its start time.
func (d *DAG) MarkRunning(taskID string) error {
	return d.transition(taskID, func(t *Task) error {
		if t.Status != TaskPending {
			return fmt.Errorf("task %q is not pending (status: %s)", taskID, t.Status)
		}
		t.Status = TaskRunning
		t.StartedAt = time.Now()
		return nil
	})
}

// MarkSucceeded transitions a task to TaskSucceeded and stores its output.
func (d *DAG) MarkSucceeded(taskID, result string) error {
	return d.transition(taskID, func(t *Task) error {
		t.Status = TaskSucceeded
		t.Result = result
		t.FinishedAt = time.Now()
		return nil
	})
}

// MarkFailed transitions a task to TaskFailed and stores the error.
func (d *DAG) MarkFailed(taskID string, taskErr error) error {
	return d.transition(taskID, func(t *Task) error {
		t.Status = TaskFailed
		t.Err = taskErr
		t.FinishedAt = time.Now()
		return nil
	})
}

// MarkTimedOut transitions a task to TaskTimedOut and stores the error.
func (d *DAG) MarkTimedOut(taskID string, taskErr error) error {
	return d.transition(taskID, func(t *Task) error {
		t.Status = TaskTimedOut
		t.Err = taskErr
		t.FinishedAt = time.Now()
		return nil
	})
}

func (d *DAG) transition(taskID string, fn func(*Task) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	return fn(task)
}

// Get returns a copy of the task with the given ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks, ordered by ID.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.tasks))
	for _, task := range d.tasks {
		tasks = append(tasks, cloneTask(task))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// CountStatus returns how many tasks currently have the given status.
func (d *DAG) CountStatus(status TaskStatus) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := 0
	for _, task := range d.tasks {
		if task.Status == status {
			count++
		}
	}
	return count
}
