// Package clock centralizes time access so components that partition state by
// trading day can be tested against a fixed clock.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock provides wall time. The real supervisor uses SystemClock; tests
// substitute a fixed implementation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the OS clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock pinned to a settable instant.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time {
	return f.T
}

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) {
	f.T = f.T.Add(d)
}

// TradingDay returns the civil date (UTC) used to partition risk state and
// event logs. Crossing it resets daily aggregates.
func TradingDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// UnixSeconds returns wall time as float seconds, the unit used across
// policies, heartbeats and telemetry events.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// NewCorrelationID returns a fresh ID for tying related events together.
func NewCorrelationID() string {
	return uuid.NewString()
}
