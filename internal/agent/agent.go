// Package agent defines the boundary to the external agent execution
// service and provides a CLI-subprocess implementation of it.
// The orchestration core only ever sees the Service interface; subprocess
// exit-code conventions never leak past this package.
package agent

import (
	"context"

	"github.com/overseer-dev/overseer/internal/routing"
	"github.com/overseer-dev/overseer/internal/scheduler"
)

// Request is one unit of work handed to the agent execution service.
type Request struct {
	Description string
	Role        scheduler.Role
	Model       routing.ModelClass
	Thinking    routing.Thinking
}

// Result is the service's report for one request.
// Success false with a populated ErrorInfo means the service ran but the
// work itself failed; a transport or subprocess problem is returned as an
// error instead.
type Result struct {
	Success   bool
	Output    string
	ErrorInfo string
}

// Service is the agent execution service contract. Execute must honor
// context cancellation by tearing down any underlying work, and must not
// be assumed idempotent: retries re-issue, they do not resume.
type Service interface {
	Execute(ctx context.Context, req Request) (Result, error)
	Close() error
}
