// Package budget tracks token-equivalent consumption for an orchestration run.
// A Manager owns the session and daily ledgers; an Allocation carves one
// batch's budget up between roles and redistributes unspent shares.
// Both are safe for concurrent use from completing tasks.
package budget

import (
	"sync"
	"time"
)

const (
	// warnThreshold is the fraction of the session limit above which
	// Check starts flagging
	warnThreshold = 0.75

	// estimate heuristic: roughly four characters per token, plus a fixed
	// per-invocation overhead for prompt scaffolding
	charsPerUnit    = 4
	invocationFloor = 64
)

// Snapshot is a point-in-time copy of the ledger, safe to read without
// holding the manager's lock.
type Snapshot struct {
	SessionLimit float64
	SessionUsed  float64
	DailyLimit   float64
	DailyUsed    float64
}

// SessionFraction returns session usage as a fraction of the limit,
// or 0 when no limit is set.
func (s Snapshot) SessionFraction() float64 {
	if s.SessionLimit <= 0 {
		return 0
	}
	return s.SessionUsed / s.SessionLimit
}

// Decision is the outcome of a pre-dispatch budget check.
type Decision struct {
	CanProceed bool
	SessionPct float64
	DailyPct   float64
	Warn       bool
}

// Manager owns the session and daily counters. Record and Check are invoked
// from concurrently completing tasks and are serialized by one mutex.
type Manager struct {
	mu           sync.Mutex
	sessionLimit float64
	dailyLimit   float64
	sessionUsed  float64
	dailyUsed    float64
	day          string // UTC date the daily ledger was opened, YYYY-MM-DD

	now func() time.Time // injectable clock for tests
}

// NewManager creates a Manager with the given absolute ceilings.
// A non-positive limit means unlimited for that ledger.
func NewManager(sessionLimit, dailyLimit float64) *Manager {
	m := &Manager{
		sessionLimit: sessionLimit,
		dailyLimit:   dailyLimit,
		now:          time.Now,
	}
	m.day = m.now().UTC().Format(time.DateOnly)
	return m
}

// Estimate returns the approximate cost of dispatching the given text.
// This is a documented heuristic, not exact accounting; consumers must
// treat the value as an estimate.
func Estimate(text string) float64 {
	return float64(len(text))/charsPerUnit + invocationFloor
}

// Check reports whether spending cost would stay within both ledgers.
// Warn is set above 75% of the session limit regardless of the outcome.
func (m *Manager) Check(cost float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	d := Decision{CanProceed: true}

	if m.sessionLimit > 0 {
		d.SessionPct = m.sessionUsed / m.sessionLimit * 100
		d.Warn = m.sessionUsed > m.sessionLimit*warnThreshold
		if m.sessionUsed+cost > m.sessionLimit {
			d.CanProceed = false
		}
	}
	if m.dailyLimit > 0 {
		d.DailyPct = m.dailyUsed / m.dailyLimit * 100
		if m.dailyUsed+cost > m.dailyLimit {
			d.CanProceed = false
		}
	}

	return d
}

// Record atomically adds cost to both the session and daily counters.
func (m *Manager) Record(cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	m.sessionUsed += cost
	m.dailyUsed += cost
}

// Restore overwrites the counters, used when resuming a persisted run.
func (m *Manager) Restore(sessionUsed, dailyUsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessionUsed = sessionUsed
	m.dailyUsed = dailyUsed
}

// Snapshot returns a copy of the current ledger state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	return Snapshot{
		SessionLimit: m.sessionLimit,
		SessionUsed:  m.sessionUsed,
		DailyLimit:   m.dailyLimit,
		DailyUsed:    m.dailyUsed,
	}
}

// SessionRemaining returns the unspent session budget, or 0 when unlimited.
func (m *Manager) SessionRemaining() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionLimit <= 0 {
		return 0
	}
	remaining := m.sessionLimit - m.sessionUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// rolloverLocked resets the daily counter when the UTC date changes.
// Caller must hold m.mu.
func (m *Manager) rolloverLocked() {
	today := m.now().UTC().Format(time.DateOnly)
	if today != m.day {
		m.day = today
		m.dailyUsed = 0
	}
}
