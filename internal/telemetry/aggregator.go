package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Window lengths in seconds.
const (
	tradesShortWindow = 300
	tradesLongWindow  = 3600
	errorWindow       = 60
	latencyWindow     = 60
)

type sample struct {
	ts    float64
	value float64
}

// Aggregator maintains sliding-window aggregates over the event stream.
// Pruning is monotonic: windows are deques trimmed from the front on every
// observation and read.
type Aggregator struct {
	mu sync.Mutex

	trades    []float64 // timestamps of order/fill events
	errors    []float64 // timestamps of error events
	latencies []sample  // loop_ms samples

	lastSeenTs  float64
	pnlDay      float64
	drawdownDay float64
	equity      float64

	policyMode         string
	policyAllowTrading bool
	policyReason       string
	statusState        string

	restarts           int
	restartRatePerHour float64

	now func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// SetNowFunc overrides the clock, for tests.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// Observe folds a normalized event into the windows.
func (a *Aggregator) Observe(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Ts > a.lastSeenTs {
		a.lastSeenTs = ev.Ts
	}

	switch ev.Type {
	case TypeOrder, TypeFill:
		a.trades = append(a.trades, ev.Ts)
	case TypeError:
		a.errors = append(a.errors, ev.Ts)
	case TypeLatency:
		if ms, ok := numField(ev.Data, "loop_ms"); ok {
			a.latencies = append(a.latencies, sample{ts: ev.Ts, value: ms})
		}
	case TypePnl:
		if v, ok := numField(ev.Data, "pnl_day"); ok {
			a.pnlDay = v
		}
		if v, ok := numField(ev.Data, "drawdown_day"); ok {
			a.drawdownDay = v
		}
		if v, ok := numField(ev.Data, "equity"); ok {
			a.equity = v
		}
	case TypePolicy:
		if v, ok := ev.Data["mode"].(string); ok {
			a.policyMode = v
		}
		if v, ok := ev.Data["allow_trading"].(bool); ok {
			a.policyAllowTrading = v
		}
		if v, ok := ev.Data["reason"].(string); ok {
			a.policyReason = v
		}
	case TypeStatus:
		if v, ok := ev.Data["state"].(string); ok {
			a.statusState = v
		}
	}

	a.pruneLocked(float64(a.now().Unix()))
}

// UpdateProcessState refreshes restart bookkeeping from a process status
// payload.
func (a *Aggregator) UpdateProcessState(status map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := status["restart_count"].(int); ok {
		a.restarts = v
	} else if v, ok := status["restart_count"].(float64); ok {
		a.restarts = int(v)
	}
	if v, ok := status["state"].(string); ok {
		a.statusState = v
	}

	a.restartRatePerHour = 0
	if lastExit, ok := status["last_exit_time"].(string); ok && a.restarts > 0 {
		if t, err := time.Parse(time.RFC3339, lastExit); err == nil {
			hours := a.now().Sub(t).Hours()
			if hours < 0.01 {
				hours = 0.01
			}
			a.restartRatePerHour = float64(a.restarts) / hours
		}
	}
}

// Summary computes the aggregate snapshot at the current instant.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := float64(a.now().Unix())
	a.pruneLocked(now)

	s := Summary{
		LastSeenTs:         a.lastSeenTs,
		PnlDay:             a.pnlDay,
		DrawdownDay:        a.drawdownDay,
		Equity:             a.equity,
		PolicyMode:         a.policyMode,
		PolicyAllowTrading: a.policyAllowTrading,
		PolicyReason:       a.policyReason,
		StatusState:        a.statusState,
		Restarts:           a.restarts,
		RestartRatePerHour: a.restartRatePerHour,
	}

	for _, ts := range a.trades {
		if ts >= now-tradesShortWindow {
			s.Trades5m++
		}
		if ts >= now-tradesLongWindow {
			s.Trades1h++
		}
	}
	for _, ts := range a.errors {
		if ts >= now-errorWindow {
			s.ErrorRate1m++
		}
	}

	var values []float64
	var sum float64
	for _, smp := range a.latencies {
		if smp.ts >= now-latencyWindow {
			values = append(values, smp.value)
			sum += smp.value
		}
	}
	if len(values) > 0 {
		s.LatencyMsAvg = sum / float64(len(values))
		s.LatencyMsP95 = percentileNearestRank(values, 95)
	}

	return s
}

// pruneLocked trims entries older than the longest window they serve.
// Caller holds the lock.
func (a *Aggregator) pruneLocked(now float64) {
	a.trades = pruneTimestamps(a.trades, now-tradesLongWindow)
	a.errors = pruneTimestamps(a.errors, now-errorWindow)

	i := 0
	for i < len(a.latencies) && a.latencies[i].ts < now-latencyWindow {
		i++
	}
	if i > 0 {
		a.latencies = a.latencies[i:]
	}
}

func pruneTimestamps(ts []float64, cutoff float64) []float64 {
	i := 0
	for i < len(ts) && ts[i] < cutoff {
		i++
	}
	if i > 0 {
		return ts[i:]
	}
	return ts
}

// percentileNearestRank returns the p-th percentile by the nearest-rank
// method on a copy of the samples.
func percentileNearestRank(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func numField(data map[string]interface{}, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
