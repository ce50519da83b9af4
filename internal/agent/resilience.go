package agent

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff for transient service failures.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Resilient wraps a Service with a circuit breaker and exponential-backoff
// retry. A Result with Success=false is a deliberate report from the
// service, not a transport fault, so it is returned without retrying and
// does not trip the breaker.
type Resilient struct {
	inner   Service
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
}

// NewResilient wraps inner. The name labels the breaker in logs, typically
// the provider name.
func NewResilient(name string, inner Service, retry RetryConfig) *Resilient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // test requests allowed while half-open
		Timeout:     30 * time.Second, // how long the breaker stays open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not a service fault.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	return &Resilient{
		inner:   inner,
		breaker: cb,
		retry:   retry,
	}
}

// Execute sends the request through the breaker, retrying transport errors
// with exponential backoff until the context is done or MaxElapsedTime is
// exhausted.
func (r *Resilient) Execute(ctx context.Context, req Request) (Result, error) {
	var result Result

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		out, err := r.breaker.Execute(func() (interface{}, error) {
			return r.inner.Execute(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		result = out.(Result)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.MaxElapsedTime = r.retry.MaxElapsedTime
	policy.Multiplier = r.retry.Multiplier
	policy.RandomizationFactor = r.retry.RandomizationFactor

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return Result{}, err
	}
	return result, nil
}

// Close closes the wrapped service.
func (r *Resilient) Close() error {
	return r.inner.Close()
}
