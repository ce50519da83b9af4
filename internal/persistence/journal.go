package persistence

import (
	"context"
	"log"
	"time"

	"github.com/overseer-dev/overseer/internal/scheduler"
)

// Journal adapts a Store to the fire-and-forget progress sink the executor
// expects: a failed write is logged, never surfaced to the task.
type Journal struct {
	store   Store
	timeout time.Duration
}

// NewJournal wraps a store. Writes are bounded so a wedged database cannot
// stall a completing task.
func NewJournal(store Store) *Journal {
	return &Journal{
		store:   store,
		timeout: 5 * time.Second,
	}
}

// Append writes one outcome line. Errors are logged and dropped.
func (j *Journal) Append(role scheduler.Role, summary string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.store.AppendProgress(ctx, role, summary, at); err != nil {
		log.Printf("WARNING: failed to append progress journal entry: %v", err)
	}
}
