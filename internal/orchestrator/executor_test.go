package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/overseer-dev/overseer/internal/agent"
	"github.com/overseer-dev/overseer/internal/budget"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

// scriptedService scripts agent responses keyed by nothing but call order;
// behavior is a function so tests can block, fail, or inspect requests.
type scriptedService struct {
	calls   atomic.Int32
	execute func(ctx context.Context, req agent.Request) (agent.Result, error)
}

func (s *scriptedService) Execute(ctx context.Context, req agent.Request) (agent.Result, error) {
	s.calls.Add(1)
	if s.execute == nil {
		return agent.Result{Success: true, Output: "ok"}, nil
	}
	return s.execute(ctx, req)
}

func (s *scriptedService) Close() error { return nil }

// memorySink collects journal lines for assertions.
type memorySink struct {
	mu      sync.Mutex
	entries []string
}

func (m *memorySink) Append(role scheduler.Role, summary string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, summary)
}

func newExecutor(t *testing.T, mgr *budget.Manager, svc agent.Service, timeout time.Duration, sink ProgressSink) *TaskExecutor {
	t.Helper()
	exec, err := NewTaskExecutor(TaskExecutorConfig{
		Budget: mgr,
		Services: map[scheduler.Role]agent.Service{
			scheduler.RoleImplementer: svc,
			scheduler.RoleValidator:   svc,
			scheduler.RoleResearcher:  svc,
			scheduler.RoleReviewer:    svc,
			scheduler.RoleWriter:      svc,
			scheduler.RoleRefactorer:  svc,
		},
		Timeout: timeout,
		Sink:    sink,
	})
	if err != nil {
		t.Fatalf("NewTaskExecutor: %v", err)
	}
	return exec
}

func implTask(id, desc string) *scheduler.Task {
	return &scheduler.Task{ID: id, Description: desc, Role: scheduler.RoleImplementer}
}

func TestExecuteSuccess(t *testing.T) {
	mgr := budget.NewManager(10000, 0)
	svc := &scriptedService{}
	sink := &memorySink{}
	exec := newExecutor(t, mgr, svc, time.Second, sink)

	task := implTask("a", "implement the thing")
	res := exec.Execute(context.Background(), task)

	if res.Status != scheduler.TaskSucceeded {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if res.Output != "ok" || res.Kind != KindNone {
		t.Errorf("result = %+v", res)
	}

	wantCost := budget.Estimate(task.Description)
	if res.EstimatedCost != wantCost {
		t.Errorf("estimated cost = %v, want %v", res.EstimatedCost, wantCost)
	}
	if got := mgr.Snapshot().SessionUsed; got != wantCost {
		t.Errorf("session used = %v, want %v", got, wantCost)
	}
	if len(sink.entries) != 1 || !strings.Contains(sink.entries[0], "a: ok") {
		t.Errorf("sink entries = %v", sink.entries)
	}
}

// A task whose estimated cost exceeds the remaining budget fails with the
// budget kind and zero calls to the external service.
func TestExecuteBudgetExceededShortCircuits(t *testing.T) {
	mgr := budget.NewManager(10, 0) // below any task's invocation floor
	svc := &scriptedService{}
	exec := newExecutor(t, mgr, svc, time.Second, nil)

	res := exec.Execute(context.Background(), implTask("a", "implement the thing"))

	if res.Status != scheduler.TaskFailed || res.Kind != KindBudgetExceeded {
		t.Fatalf("result = %+v, want budget_exceeded failure", res)
	}
	if res.Err == nil {
		t.Error("expected an explanatory error")
	}
	if got := svc.calls.Load(); got != 0 {
		t.Errorf("service calls = %d, want 0", got)
	}
	if got := mgr.Snapshot().SessionUsed; got != 0 {
		t.Errorf("session used = %v, want 0 after refusal", got)
	}
}

func TestExecuteTimeout(t *testing.T) {
	mgr := budget.NewManager(10000, 0)
	svc := &scriptedService{
		execute: func(ctx context.Context, req agent.Request) (agent.Result, error) {
			<-ctx.Done()
			return agent.Result{}, ctx.Err()
		},
	}
	exec := newExecutor(t, mgr, svc, 20*time.Millisecond, nil)

	res := exec.Execute(context.Background(), implTask("a", "slow work"))

	if res.Status != scheduler.TaskTimedOut || res.Kind != KindTimeout {
		t.Fatalf("result = %+v, want timed-out", res)
	}
	if got := mgr.Snapshot().SessionUsed; got != 0 {
		t.Errorf("session used = %v, want 0 after timeout", got)
	}
}

// When the parent context is cancelled, the result is a plain execution
// failure, not a verdict about the task's own deadline.
func TestExecuteParentCancellation(t *testing.T) {
	mgr := budget.NewManager(10000, 0)
	svc := &scriptedService{
		execute: func(ctx context.Context, req agent.Request) (agent.Result, error) {
			<-ctx.Done()
			return agent.Result{}, ctx.Err()
		},
	}
	exec := newExecutor(t, mgr, svc, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := exec.Execute(ctx, implTask("a", "slow work"))
	if res.Status != scheduler.TaskFailed || res.Kind != KindExecutionFailure {
		t.Fatalf("result = %+v, want execution failure on cancellation", res)
	}
}

func TestExecuteServiceError(t *testing.T) {
	mgr := budget.NewManager(10000, 0)
	svc := &scriptedService{
		execute: func(ctx context.Context, req agent.Request) (agent.Result, error) {
			return agent.Result{}, errors.New("spawn failed")
		},
	}
	exec := newExecutor(t, mgr, svc, time.Second, nil)

	res := exec.Execute(context.Background(), implTask("a", "implement"))
	if res.Status != scheduler.TaskFailed || res.Kind != KindExecutionFailure {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteReportedFailure(t *testing.T) {
	mgr := budget.NewManager(10000, 0)
	svc := &scriptedService{
		execute: func(ctx context.Context, req agent.Request) (agent.Result, error) {
			return agent.Result{Success: false, Output: "partial", ErrorInfo: "tests failed"}, nil
		},
	}
	exec := newExecutor(t, mgr, svc, time.Second, nil)

	res := exec.Execute(context.Background(), implTask("a", "implement"))
	if res.Status != scheduler.TaskFailed || res.Kind != KindExecutionFailure {
		t.Fatalf("result = %+v", res)
	}
	if res.Output != "partial" {
		t.Errorf("output = %q, want the partial output preserved", res.Output)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "tests failed") {
		t.Errorf("err = %v, want the agent's report", res.Err)
	}
	if got := mgr.Snapshot().SessionUsed; got != 0 {
		t.Errorf("session used = %v, want 0 after failure", got)
	}
}

func TestExecuteMissingService(t *testing.T) {
	mgr := budget.NewManager(10000, 0)
	exec, err := NewTaskExecutor(TaskExecutorConfig{Budget: mgr})
	if err != nil {
		t.Fatalf("NewTaskExecutor: %v", err)
	}

	res := exec.Execute(context.Background(), implTask("a", "implement"))
	if res.Status != scheduler.TaskFailed || res.Kind != KindExecutionFailure {
		t.Fatalf("result = %+v", res)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "no agent service") {
		t.Errorf("err = %v", res.Err)
	}
}

func TestNewTaskExecutorRequiresBudget(t *testing.T) {
	if _, err := NewTaskExecutor(TaskExecutorConfig{}); err == nil {
		t.Fatal("expected error without a budget manager")
	}
}
