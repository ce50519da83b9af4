package budget

import (
	"fmt"
	"sync"

	"github.com/overseer-dev/overseer/internal/scheduler"
)

// DefaultShares is the default role allocation, in percent of a batch's
// budget. RoleOrchestrator receives no share: it plans, it does not execute.
func DefaultShares() map[scheduler.Role]float64 {
	return map[scheduler.Role]float64{
		scheduler.RoleImplementer: 35,
		scheduler.RoleValidator:   20,
		scheduler.RoleResearcher:  15,
		scheduler.RoleWriter:      15,
		scheduler.RoleReviewer:    10,
		scheduler.RoleRefactorer:  5,
	}
}

// Allocation carves one batch's budget up between the roles present in the
// batch. Spend and Reallocate are called from concurrently completing tasks
// and are serialized by one mutex. Reallocation moves budget between roles;
// it never grows the batch total.
type Allocation struct {
	mu     sync.Mutex
	total  float64
	spent  float64
	shares map[scheduler.Role]float64 // remaining budget per role
	active map[scheduler.Role]bool    // roles still running in this batch
}

// Allocate applies percentage shares to the batch total for the given roles.
// Shares of roles absent from the batch are renormalized across the roles
// that are present, so the allocated shares always sum to the batch total.
func Allocate(roles []scheduler.Role, total float64, shares map[scheduler.Role]float64) (*Allocation, error) {
	if total < 0 {
		return nil, fmt.Errorf("negative batch total %v", total)
	}

	present := make(map[scheduler.Role]bool, len(roles))
	sumPct := 0.0
	for _, role := range roles {
		if role == scheduler.RoleOrchestrator {
			return nil, fmt.Errorf("role %q cannot receive a budget share", role)
		}
		if present[role] {
			continue
		}
		present[role] = true
		sumPct += shares[role]
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("no roles to allocate to")
	}
	if sumPct <= 0 {
		return nil, fmt.Errorf("allocation shares for batch roles sum to zero")
	}

	a := &Allocation{
		total:  total,
		shares: make(map[scheduler.Role]float64, len(present)),
		active: make(map[scheduler.Role]bool, len(present)),
	}
	for role := range present {
		a.shares[role] = total * shares[role] / sumPct
		a.active[role] = true
	}

	return a, nil
}

// Spend deducts cost from a role's remaining share and records it against
// the batch total. Shares may go negative when the estimate undershot; the
// overall ledger in Manager is the authoritative ceiling.
func (a *Allocation) Spend(role scheduler.Role, cost float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.shares[role] -= cost
	a.spent += cost
}

// Reallocate redistributes a finished role's unused budget proportionally
// across the roles still active in the batch. The finished role's share is
// reduced by exactly the amount handed out, preserving the batch total.
func (a *Allocation) Reallocate(finished scheduler.Role, unused float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active[finished] {
		return
	}
	a.active[finished] = false

	if unused > a.shares[finished] {
		unused = a.shares[finished]
	}
	if unused <= 0 {
		return
	}

	remaining := 0.0
	for role, active := range a.active {
		if active {
			remaining += a.shares[role]
		}
	}
	if remaining <= 0 {
		// Nothing left to grow proportionally; the unused share stays put.
		return
	}

	a.shares[finished] -= unused
	for role, active := range a.active {
		if active {
			a.shares[role] += unused * a.shares[role] / remaining
		}
	}
}

// Share returns the remaining budget for a role.
func (a *Allocation) Share(role scheduler.Role) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shares[role]
}

// Remaining returns the sum of all roles' remaining shares.
func (a *Allocation) Remaining() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	sum := 0.0
	for _, share := range a.shares {
		sum += share
	}
	return sum
}

// Total returns the batch total the allocation was created with.
func (a *Allocation) Total() float64 {
	return a.total
}

// Spent returns the amount recorded against this batch so far.
func (a *Allocation) Spent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spent
}
