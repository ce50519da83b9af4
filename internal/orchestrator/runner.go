package orchestrator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/overseer-dev/overseer/internal/budget"
	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

// DefaultMaxWorkers bounds concurrent task execution when no limit is set.
const DefaultMaxWorkers = 4

// ParallelRunner walks a task DAG in waves: every task whose dependencies
// have all succeeded is dispatched to a bounded worker pool, results update
// the graph, and readiness is recomputed until nothing is pending.
//
// One task's failure only blocks its dependents; unrelated branches keep
// running. Run always returns the complete result list, including failed
// and blocked entries; the only error it returns is context cancellation.
type ParallelRunner struct {
	exec  *TaskExecutor
	limit int
	bus   *events.Bus
}

// NewParallelRunner creates a runner over the given executor.
// maxWorkers <= 0 selects DefaultMaxWorkers.
func NewParallelRunner(exec *TaskExecutor, maxWorkers int, bus *events.Bus) *ParallelRunner {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &ParallelRunner{
		exec:  exec,
		limit: maxWorkers,
		bus:   bus,
	}
}

// Run executes the DAG to completion. The optional allocation receives
// per-role spend and reallocation as roles finish; nil disables batch
// budget tracking.
func (r *ParallelRunner) Run(ctx context.Context, dag *scheduler.DAG, alloc *budget.Allocation) ([]TaskResult, error) {
	var mu sync.Mutex
	var results []TaskResult

	// Remaining unfinished tasks per role, for reallocation when a role
	// drains within the batch.
	rolePending := make(map[scheduler.Role]int)
	for _, task := range dag.Tasks() {
		rolePending[task.Role]++
	}

	record := func(res TaskResult) {
		mu.Lock()
		results = append(results, res)

		rolePending[res.Role]--
		drained := rolePending[res.Role] == 0
		mu.Unlock()

		if drained && alloc != nil {
			alloc.Reallocate(res.Role, alloc.Share(res.Role))
		}
	}

	recordBlocked := func() {
		for _, task := range dag.PropagateBlocked() {
			record(TaskResult{
				TaskID: task.ID,
				Role:   task.Role,
				Status: scheduler.TaskBlocked,
				Kind:   KindBlocked,
				Err:    task.Err,
			})
			if r.bus != nil {
				r.bus.Publish(events.TopicTask, events.TaskBlocked{
					ID:        task.ID,
					Reason:    task.Err.Error(),
					Timestamp: time.Now(),
				})
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		recordBlocked()

		ready := dag.Ready()
		if len(ready) == 0 {
			break
		}

		g := new(errgroup.Group)
		g.SetLimit(r.limit)

		for _, task := range ready {
			t := task
			g.Go(func() error {
				r.runOne(ctx, dag, t, alloc, record)
				return nil
			})
		}

		// Task failures live in the DAG and the result list, never here.
		_ = g.Wait()
	}

	recordBlocked()
	sortResults(results)
	return results, nil
}

// runOne executes a single ready task and folds the outcome back into the
// graph.
func (r *ParallelRunner) runOne(ctx context.Context, dag *scheduler.DAG, task *scheduler.Task, alloc *budget.Allocation, record func(TaskResult)) {
	if err := dag.MarkRunning(task.ID); err != nil {
		log.Printf("ERROR: failed to mark task %q running: %v", task.ID, err)
		return
	}

	if r.bus != nil {
		r.bus.Publish(events.TopicTask, events.TaskStarted{
			ID:        task.ID,
			Role:      task.Role,
			Timestamp: time.Now(),
		})
	}

	res := r.exec.Execute(ctx, task)

	switch res.Status {
	case scheduler.TaskSucceeded:
		_ = dag.MarkSucceeded(task.ID, res.Output)
		if alloc != nil {
			alloc.Spend(task.Role, res.EstimatedCost)
		}
	case scheduler.TaskTimedOut:
		_ = dag.MarkTimedOut(task.ID, res.Err)
	default:
		_ = dag.MarkFailed(task.ID, res.Err)
	}

	record(res)

	if r.bus != nil {
		r.bus.Publish(events.TopicTask, events.TaskFinished{
			ID:        task.ID,
			Role:      task.Role,
			Status:    res.Status,
			ErrorKind: string(res.Kind),
			Duration:  res.Duration,
			Timestamp: time.Now(),
		})
	}
}

// sortResults orders results by task ID for stable reporting.
func sortResults(results []TaskResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
}
