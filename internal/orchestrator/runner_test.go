package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/overseer-dev/overseer/internal/agent"
	"github.com/overseer-dev/overseer/internal/budget"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

// orderService records the order tasks reach the agent and how many run at
// once. Tasks whose description contains "fail" report failure.
type orderService struct {
	mu      sync.Mutex
	order   []string
	running int
	peak    int
	delay   time.Duration
}

func (s *orderService) Execute(ctx context.Context, req agent.Request) (agent.Result, error) {
	s.mu.Lock()
	s.order = append(s.order, req.Description)
	s.running++
	if s.running > s.peak {
		s.peak = s.running
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.running--
	s.mu.Unlock()

	if strings.Contains(req.Description, "fail") {
		return agent.Result{Success: false, ErrorInfo: "scripted failure"}, nil
	}
	return agent.Result{Success: true, Output: "done " + req.Description}, nil
}

func (s *orderService) Close() error { return nil }

func (s *orderService) position(desc string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.order {
		if d == desc {
			return i
		}
	}
	return -1
}

func newRunner(t *testing.T, svc agent.Service, maxWorkers int) *ParallelRunner {
	t.Helper()
	exec := newExecutor(t, budget.NewManager(0, 0), svc, time.Minute, nil)
	return NewParallelRunner(exec, maxWorkers, nil)
}

func buildDAG(t *testing.T, tasks []*scheduler.Task) *scheduler.DAG {
	t.Helper()
	dag, err := scheduler.Build(tasks)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return dag
}

func resultByID(results []TaskResult, id string) (TaskResult, bool) {
	for _, res := range results {
		if res.TaskID == id {
			return res, true
		}
	}
	return TaskResult{}, false
}

func TestRunLinearChainOrder(t *testing.T) {
	svc := &orderService{}
	runner := newRunner(t, svc, 4)
	dag := buildDAG(t, []*scheduler.Task{
		{ID: "a", Description: "first", Role: scheduler.RoleImplementer},
		{ID: "b", Description: "second", Role: scheduler.RoleImplementer, DependsOn: []string{"a"}},
		{ID: "c", Description: "third", Role: scheduler.RoleImplementer, DependsOn: []string{"b"}},
	})

	results, err := runner.Run(context.Background(), dag, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, res := range results {
		if res.Status != scheduler.TaskSucceeded {
			t.Errorf("task %s status = %v", res.TaskID, res.Status)
		}
	}

	if !(svc.position("first") < svc.position("second") && svc.position("second") < svc.position("third")) {
		t.Errorf("execution order = %v, want first<second<third", svc.order)
	}
}

func TestRunDiamond(t *testing.T) {
	svc := &orderService{delay: 10 * time.Millisecond}
	runner := newRunner(t, svc, 4)
	dag := buildDAG(t, []*scheduler.Task{
		{ID: "a", Description: "root", Role: scheduler.RoleResearcher},
		{ID: "b", Description: "left", Role: scheduler.RoleImplementer, DependsOn: []string{"a"}},
		{ID: "c", Description: "right", Role: scheduler.RoleImplementer, DependsOn: []string{"a"}},
		{ID: "d", Description: "join", Role: scheduler.RoleValidator, DependsOn: []string{"b", "c"}},
	})

	results, err := runner.Run(context.Background(), dag, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}

	join := svc.position("join")
	if join < svc.position("left") || join < svc.position("right") {
		t.Errorf("join ran before its dependencies: %v", svc.order)
	}
	if svc.position("root") != 0 {
		t.Errorf("root did not run first: %v", svc.order)
	}
}

// A failed dependency blocks its transitive dependents; unrelated branches
// keep running, and every task appears in the result list exactly once.
func TestRunFailureBlocksDependents(t *testing.T) {
	svc := &orderService{}
	runner := newRunner(t, svc, 4)
	dag := buildDAG(t, []*scheduler.Task{
		{ID: "a", Description: "will fail", Role: scheduler.RoleImplementer},
		{ID: "b", Description: "needs a", Role: scheduler.RoleReviewer, DependsOn: []string{"a"}},
		{ID: "c", Description: "needs b", Role: scheduler.RoleValidator, DependsOn: []string{"b"}},
		{ID: "e", Description: "independent", Role: scheduler.RoleWriter},
	})

	results, err := runner.Run(context.Background(), dag, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want all 4 tasks reported", len(results))
	}

	want := map[string]scheduler.TaskStatus{
		"a": scheduler.TaskFailed,
		"b": scheduler.TaskBlocked,
		"c": scheduler.TaskBlocked,
		"e": scheduler.TaskSucceeded,
	}
	for id, status := range want {
		res, ok := resultByID(results, id)
		if !ok {
			t.Errorf("task %s missing from results", id)
			continue
		}
		if res.Status != status {
			t.Errorf("task %s status = %v, want %v", id, res.Status, status)
		}
	}

	blocked, _ := resultByID(results, "b")
	if blocked.Kind != KindBlocked || blocked.Err == nil {
		t.Errorf("blocked result = %+v, want dependency_blocked with a named cause", blocked)
	}
	if !strings.Contains(blocked.Err.Error(), "a") {
		t.Errorf("blocked cause = %v, want the failed dependency named", blocked.Err)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	svc := &orderService{delay: 20 * time.Millisecond}
	runner := newRunner(t, svc, 2)

	var tasks []*scheduler.Task
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		tasks = append(tasks, &scheduler.Task{ID: id, Description: "work " + id, Role: scheduler.RoleImplementer})
	}
	dag := buildDAG(t, tasks)

	results, err := runner.Run(context.Background(), dag, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("results = %d, want 6", len(results))
	}
	if svc.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", svc.peak)
	}
}

func TestRunCancellation(t *testing.T) {
	svc := &orderService{delay: 50 * time.Millisecond}
	runner := newRunner(t, svc, 1)
	dag := buildDAG(t, []*scheduler.Task{
		{ID: "a", Description: "one", Role: scheduler.RoleImplementer},
		{ID: "b", Description: "two", Role: scheduler.RoleImplementer, DependsOn: []string{"a"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := runner.Run(ctx, dag, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

// When every task of a role finishes, its unspent share moves to the roles
// still active in the batch.
func TestRunReallocatesOnRoleDrain(t *testing.T) {
	svc := &orderService{}
	runner := newRunner(t, svc, 4)
	dag := buildDAG(t, []*scheduler.Task{
		{ID: "r", Description: "survey", Role: scheduler.RoleResearcher},
		{ID: "i", Description: "build", Role: scheduler.RoleImplementer, DependsOn: []string{"r"}},
	})

	alloc, err := budget.Allocate(
		[]scheduler.Role{scheduler.RoleResearcher, scheduler.RoleImplementer},
		1000, budget.DefaultShares())
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	implBefore := alloc.Share(scheduler.RoleImplementer)

	if _, err := runner.Run(context.Background(), dag, alloc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The researcher spent less than its share and its leftover flowed to
	// the implementer when the role drained.
	if got := alloc.Share(scheduler.RoleResearcher); got != 0 {
		t.Errorf("researcher share = %v, want 0 after drain", got)
	}
	if got := alloc.Spent(); got <= 0 {
		t.Errorf("spent = %v, want > 0", got)
	}
	implCost := budget.Estimate("build")
	if got := alloc.Share(scheduler.RoleImplementer); got <= implBefore-implCost {
		t.Errorf("implementer share = %v, want growth beyond %v less its own spend", got, implBefore)
	}
	if remaining, want := alloc.Remaining(), alloc.Total()-alloc.Spent(); remaining-want > 1e-6 || want-remaining > 1e-6 {
		t.Errorf("remaining = %v, want total-spent = %v", remaining, want)
	}
}
