package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEscalateWaitsForAck(t *testing.T) {
	handled := make(chan string, 1)
	ch := NewEscalationChannel(1, func(ctx context.Context, report *Report) error {
		handled <- report.RunID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch.Start(ctx)

	if err := ch.Escalate(ctx, &Report{RunID: "r1"}); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	select {
	case id := <-handled:
		if id != "r1" {
			t.Errorf("handled run = %q", id)
		}
	default:
		t.Fatal("Escalate returned before the handler ran")
	}
}

func TestEscalatePropagatesHandlerError(t *testing.T) {
	wantErr := errors.New("pager unreachable")
	ch := NewEscalationChannel(1, func(ctx context.Context, report *Report) error {
		return wantErr
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch.Start(ctx)

	if err := ch.Escalate(ctx, &Report{RunID: "r1"}); !errors.Is(err, wantErr) {
		t.Fatalf("Escalate error = %v, want %v", err, wantErr)
	}
}

func TestEscalateRespectsCancellation(t *testing.T) {
	ch := NewEscalationChannel(1, func(ctx context.Context, report *Report) error {
		<-ctx.Done()
		return ctx.Err()
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	ch.Start(runCtx)

	callCtx, cancelCall := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelCall()

	err := ch.Escalate(callCtx, &Report{RunID: "r1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Escalate error = %v, want deadline exceeded", err)
	}

	cancelRun()
	ch.Stop()
}
