// Package heartbeat retains the latest bot heartbeat and derives staleness.
// Only the most recent payload is kept.
package heartbeat

import (
	"sync"
	"time"
)

// Payload is the periodic summary the bot posts to the supervisor.
type Payload struct {
	Ts               float64 `json:"ts"`
	UptimeSec        float64 `json:"uptime_sec"`
	Pnl              float64 `json:"pnl"`
	ActivePositions  int     `json:"active_positions"`
	Equity           float64 `json:"equity"`
	RealizedPnlToday float64 `json:"realized_pnl_today"`
	UnrealizedPnl    float64 `json:"unrealized_pnl"`
	OpenNotional     float64 `json:"open_notional"`
	BaseCurrency     string  `json:"base_currency"`
	TradingDay       string  `json:"trading_day"`
}

// Server holds the most recent heartbeat.
type Server struct {
	mu       sync.RWMutex
	latest   *Payload
	received time.Time
	staleAge time.Duration
	now      func() time.Time
}

// NewServer creates a heartbeat server that reports stale after staleAge
// without an update.
func NewServer(staleAge time.Duration) *Server {
	if staleAge <= 0 {
		staleAge = 30 * time.Second
	}
	return &Server{
		staleAge: staleAge,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Server) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Update stores the payload as the latest heartbeat.
func (s *Server) Update(p Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Ts == 0 {
		p.Ts = float64(s.now().UnixNano()) / 1e9
	}
	s.latest = &p
	s.received = s.now()
}

// Latest returns a copy of the most recent heartbeat, if any.
func (s *Server) Latest() (Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Payload{}, false
	}
	return *s.latest, true
}

// IsStale reports whether no heartbeat arrived within the stale window.
// Never having received one counts as stale.
func (s *Server) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return true
	}
	return s.now().Sub(s.received) > s.staleAge
}

// Status returns a summary payload for the API.
func (s *Server) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"received": s.latest != nil,
		"stale":    true,
	}
	if s.latest != nil {
		status["stale"] = s.now().Sub(s.received) > s.staleAge
		status["age_sec"] = s.now().Sub(s.received).Seconds()
		status["heartbeat"] = *s.latest
	}
	return status
}
