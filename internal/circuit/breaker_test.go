package circuit

import (
	"testing"
	"time"
)

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg)
	now := time.Unix(1_700_000_000, 0)
	b.SetNowFunc(func() time.Time { return now })
	return b, &now
}

func TestOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, WindowSec: 300, OpenSec: 600})

	b.RecordFailure()
	b.RecordFailure()
	if !b.Allow() {
		t.Fatal("breaker should stay closed below threshold")
	}

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("breaker should be open at threshold")
	}
	if b.GetState() != StateOpen {
		t.Errorf("state = %v, want open", b.GetState())
	}
}

func TestWindowPruning(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 3, WindowSec: 60, OpenSec: 600})

	b.RecordFailure()
	b.RecordFailure()
	*now = now.Add(61 * time.Second) // both failures age out

	b.RecordFailure()
	if !b.Allow() {
		t.Error("stale failures should not count toward the threshold")
	}
}

func TestHalfOpenProbeAndRecovery(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, WindowSec: 300, OpenSec: 60})

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("breaker should be open")
	}

	*now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatal("breaker should allow a half-open probe after OpenSec")
	}
	if b.GetState() != StateHalfOpen {
		t.Errorf("state = %v, want half_open", b.GetState())
	}

	b.RecordSuccess()
	if b.GetState() != StateClosed {
		t.Errorf("state after success = %v, want closed", b.GetState())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, WindowSec: 300, OpenSec: 60})

	b.RecordFailure()
	*now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatal("expected half-open probe")
	}

	b.RecordFailure()
	if b.Allow() {
		t.Error("failed probe should reopen the breaker")
	}
}

func TestForceReset(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, WindowSec: 300, OpenSec: 600})
	b.RecordFailure()
	b.ForceReset()
	if !b.Allow() || b.GetState() != StateClosed {
		t.Error("ForceReset should close the breaker")
	}
}
