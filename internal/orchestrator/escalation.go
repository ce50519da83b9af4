package orchestrator

import "context"

// EscalationHandler receives a stuck or exhausted run's report and returns
// once the hand-off is acknowledged. What escalation means (paging a human,
// filing a ticket) is the handler's business, not the loop's.
type EscalationHandler func(ctx context.Context, report *Report) error

type escalation struct {
	report *Report
	ackCh  chan error
}

// EscalationChannel decouples the supervisor from the escalation handler:
// reports are queued on a buffered channel and processed by a single
// handler goroutine, and Escalate waits (context-aware) for acknowledgment.
type EscalationChannel struct {
	requestCh chan escalation
	handler   EscalationHandler
	done      chan struct{}
}

// NewEscalationChannel creates a channel with the given buffer and handler.
func NewEscalationChannel(bufferSize int, handler EscalationHandler) *EscalationChannel {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &EscalationChannel{
		requestCh: make(chan escalation, bufferSize),
		handler:   handler,
		done:      make(chan struct{}),
	}
}

// Start launches the handler goroutine; it runs until ctx is cancelled.
func (ec *EscalationChannel) Start(ctx context.Context) {
	go ec.handleRequests(ctx)
}

func (ec *EscalationChannel) handleRequests(ctx context.Context) {
	defer close(ec.done)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-ec.requestCh:
			err := ec.handler(ctx, req.report)

			select {
			case <-ctx.Done():
				req.ackCh <- ctx.Err()
				return
			default:
				req.ackCh <- err
			}
		}
	}
}

// Escalate hands a report to the handler and waits for acknowledgment.
// Both the send and the wait respect context cancellation.
func (ec *EscalationChannel) Escalate(ctx context.Context, report *Report) error {
	ackCh := make(chan error, 1)

	select {
	case ec.requestCh <- escalation{report: report, ackCh: ackCh}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ackCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop blocks until the handler goroutine has exited.
func (ec *EscalationChannel) Stop() {
	<-ec.done
}
