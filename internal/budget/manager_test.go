package budget

import (
	"sync"
	"testing"
	"time"
)

func TestEstimate(t *testing.T) {
	short := Estimate("abc")
	long := Estimate("a long description with quite a few more characters in it")

	if short <= 0 {
		t.Errorf("estimate for short text = %v, want > 0", short)
	}
	if long <= short {
		t.Errorf("estimate should grow with text length: short=%v long=%v", short, long)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		sessionUsed float64
		cost        float64
		wantProceed bool
		wantWarn    bool
	}{
		{"plenty left", 0, 100, true, false},
		{"would exceed session", 950, 100, false, true},
		{"exact fit", 900, 100, true, true},
		{"warn above 75 percent", 760, 10, true, true},
		{"no warn at 75 percent", 750, 10, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(1000, 0)
			m.Record(tt.sessionUsed)

			d := m.Check(tt.cost)
			if d.CanProceed != tt.wantProceed {
				t.Errorf("CanProceed = %v, want %v", d.CanProceed, tt.wantProceed)
			}
			if d.Warn != tt.wantWarn {
				t.Errorf("Warn = %v, want %v", d.Warn, tt.wantWarn)
			}
		})
	}
}

func TestCheckDailyLimit(t *testing.T) {
	m := NewManager(0, 100)
	m.Record(90)

	if d := m.Check(20); d.CanProceed {
		t.Error("expected daily limit to block the spend")
	}
	if d := m.Check(10); !d.CanProceed {
		t.Error("expected spend within daily limit to proceed")
	}
}

func TestRecordConcurrent(t *testing.T) {
	m := NewManager(0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(10)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.SessionUsed != 500 {
		t.Errorf("session used = %v, want 500 (lost updates)", snap.SessionUsed)
	}
	if snap.DailyUsed != 500 {
		t.Errorf("daily used = %v, want 500 (lost updates)", snap.DailyUsed)
	}
}

func TestDailyRollover(t *testing.T) {
	m := NewManager(1000, 100)

	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.day = now.Format(time.DateOnly)

	m.Record(90)
	if d := m.Check(20); d.CanProceed {
		t.Fatal("expected daily limit to block before rollover")
	}

	// Next UTC day: the daily ledger resets, the session ledger does not.
	now = now.Add(2 * time.Hour)
	if d := m.Check(20); !d.CanProceed {
		t.Error("expected spend to proceed after daily rollover")
	}

	snap := m.Snapshot()
	if snap.DailyUsed != 0 {
		t.Errorf("daily used after rollover = %v, want 0", snap.DailyUsed)
	}
	if snap.SessionUsed != 90 {
		t.Errorf("session used after rollover = %v, want 90", snap.SessionUsed)
	}
}

func TestSessionRemaining(t *testing.T) {
	m := NewManager(100, 0)
	m.Record(30)
	if got := m.SessionRemaining(); got != 70 {
		t.Errorf("remaining = %v, want 70", got)
	}

	m.Record(100)
	if got := m.SessionRemaining(); got != 0 {
		t.Errorf("overspent remaining = %v, want 0", got)
	}
}
