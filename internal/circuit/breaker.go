package circuit

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Calls suppressed
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold int `json:"failure_threshold"` // Failures in window before open
	WindowSec        int `json:"window_sec"`        // Rolling failure window
	OpenSec          int `json:"open_sec"`          // Dwell time before half-open
}

// DefaultConfig returns safe defaults
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		WindowSec:        300,
		OpenSec:          600,
	}
}

// Breaker is a rolling-window failure gate for external calls (LLM, TSDB).
// Failures older than the window are pruned; once the threshold is reached
// the breaker opens and suppresses calls for OpenSec, then allows a single
// probe in half-open state.
type Breaker struct {
	config   Config
	state    BreakerState
	failures []time.Time
	openedAt time.Time
	mu       sync.Mutex
	now      func() time.Time
	onTrip   func(reason string)
}

// New creates a breaker in the closed state.
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.WindowSec <= 0 {
		config.WindowSec = 300
	}
	if config.OpenSec <= 0 {
		config.OpenSec = 600
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// OnTrip sets a callback invoked when the breaker opens.
func (b *Breaker) OnTrip(handler func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// SetNowFunc overrides the clock, for tests.
func (b *Breaker) SetNowFunc(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Allow reports whether a call may proceed. An open breaker transitions to
// half-open once OpenSec has elapsed, permitting one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= time.Duration(b.config.OpenSec)*time.Second {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the breaker and clears failure history.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = b.failures[:0]
}

// RecordFailure registers a failure; a half-open probe failure reopens
// immediately, otherwise the breaker opens when the rolling count reaches
// the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	now := b.now()
	b.failures = append(b.failures, now)
	b.prune()

	var tripped bool
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = now
		tripped = true
	} else if b.state == StateClosed && len(b.failures) >= b.config.FailureThreshold {
		b.state = StateOpen
		b.openedAt = now
		tripped = true
	}
	handler := b.onTrip
	b.mu.Unlock()

	if tripped && handler != nil {
		go handler("failure threshold reached")
	}
}

// ForceReset manually closes the breaker.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = b.failures[:0]
}

// GetState returns the current breaker state
func (b *Breaker) GetState() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= time.Duration(b.config.OpenSec)*time.Second {
		b.state = StateHalfOpen
	}
	return b.state
}

// GetStats returns current statistics
func (b *Breaker) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()

	stats := map[string]interface{}{
		"state":             string(b.state),
		"failures_window":   len(b.failures),
		"failure_threshold": b.config.FailureThreshold,
		"window_sec":        b.config.WindowSec,
		"open_sec":          b.config.OpenSec,
	}
	if b.state == StateOpen {
		stats["opened_at"] = b.openedAt.UTC().Format(time.RFC3339)
	}
	return stats
}

// prune drops failures older than the rolling window. Caller holds the lock.
func (b *Breaker) prune() {
	cutoff := b.now().Add(-time.Duration(b.config.WindowSec) * time.Second)
	i := 0
	for i < len(b.failures) && b.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = b.failures[i:]
	}
}
