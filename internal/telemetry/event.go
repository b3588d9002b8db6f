// Package telemetry ingests bot events, maintains sliding-window aggregates
// and evaluates alert conditions.
package telemetry

import (
	"time"
)

// EventVersion is the telemetry event contract version.
const EventVersion = "telemetry.v1"

// Event types understood by the aggregator.
const (
	TypeOrder   = "order"
	TypeFill    = "fill"
	TypeError   = "error"
	TypeLatency = "latency"
	TypePnl     = "pnl"
	TypePolicy  = "policy"
	TypeStatus  = "status"
	TypeUnknown = "unknown"
)

var knownTypes = map[string]bool{
	TypeOrder:   true,
	TypeFill:    true,
	TypeError:   true,
	TypeLatency: true,
	TypePnl:     true,
	TypePolicy:  true,
	TypeStatus:  true,
}

// msSentinel: a ts this large is milliseconds, not seconds.
const msSentinel = 1e12

// Event is a normalized telemetry event (v1).
type Event struct {
	EventVersion string                 `json:"event_version"`
	Ts           float64                `json:"ts"`
	Source       string                 `json:"source"`
	Type         string                 `json:"type"`
	Symbol       string                 `json:"symbol,omitempty"`
	Data         map[string]interface{} `json:"data"`
}

// Normalize fills defaults and repairs common payload defects: missing ts
// becomes now, millisecond timestamps are coerced to seconds, unknown
// source/type get placeholders, and a non-map data is replaced by an empty
// map.
func Normalize(ev Event, now time.Time) Event {
	if ev.EventVersion == "" {
		ev.EventVersion = EventVersion
	}
	if ev.Ts == 0 {
		ev.Ts = float64(now.UnixNano()) / 1e9
	}
	if ev.Ts > msSentinel {
		ev.Ts = ev.Ts / 1000
	}
	if ev.Source == "" {
		ev.Source = TypeUnknown
	}
	if !knownTypes[ev.Type] {
		ev.Type = TypeUnknown
	}
	if ev.Data == nil {
		ev.Data = map[string]interface{}{}
	}
	return ev
}

// Summary is the aggregate view served by the API.
type Summary struct {
	LastSeenTs          float64 `json:"last_seen_ts"`
	Trades5m            int     `json:"trades_5m"`
	Trades1h            int     `json:"trades_1h"`
	ErrorRate1m         int     `json:"error_rate_1m"`
	LatencyMsAvg        float64 `json:"latency_ms_avg"`
	LatencyMsP95        float64 `json:"latency_ms_p95"`
	PnlDay              float64 `json:"pnl_day"`
	DrawdownDay         float64 `json:"drawdown_day"`
	Equity              float64 `json:"equity"`
	PolicyMode          string  `json:"policy_mode"`
	PolicyAllowTrading  bool    `json:"policy_allow_trading"`
	PolicyReason        string  `json:"policy_reason"`
	StatusState         string  `json:"status_state"`
	Restarts            int     `json:"restarts"`
	RestartRatePerHour  float64 `json:"restart_rate_per_hour"`
}
