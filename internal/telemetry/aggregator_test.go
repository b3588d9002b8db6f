package telemetry

import (
	"testing"
	"time"
)

func fixedAggregator(unix int64) (*Aggregator, *time.Time) {
	a := NewAggregator()
	now := time.Unix(unix, 0)
	a.SetNowFunc(func() time.Time { return now })
	return a, &now
}

func TestNormalize(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	ev := Normalize(Event{}, now)
	if ev.EventVersion != EventVersion || ev.Source != TypeUnknown || ev.Type != TypeUnknown {
		t.Errorf("defaults = %+v", ev)
	}
	if ev.Ts < 1_699_999_999 {
		t.Errorf("missing ts not filled: %f", ev.Ts)
	}
	if ev.Data == nil {
		t.Error("nil data not replaced")
	}

	// Millisecond coercion.
	ev = Normalize(Event{Ts: 1_700_000_000_000, Type: TypeOrder}, now)
	if ev.Ts != 1_700_000_000 {
		t.Errorf("ms ts not coerced: %f", ev.Ts)
	}
}

func TestTradeWindows(t *testing.T) {
	a, _ := fixedAggregator(1_700_000_000)
	now := 1_700_000_000.0

	a.Observe(Event{Type: TypeOrder, Ts: now - 10})
	a.Observe(Event{Type: TypeFill, Ts: now - 200})
	a.Observe(Event{Type: TypeOrder, Ts: now - 301}) // outside 5m, inside 1h
	a.Observe(Event{Type: TypeError, Ts: now - 200}) // not a trade

	s := a.Summary()
	if s.Trades5m != 2 {
		t.Errorf("trades_5m = %d, want 2", s.Trades5m)
	}
	if s.Trades1h != 3 {
		t.Errorf("trades_1h = %d, want 3", s.Trades1h)
	}
}

func TestErrorRateWindow(t *testing.T) {
	a, _ := fixedAggregator(1_700_000_000)
	now := 1_700_000_000.0

	a.Observe(Event{Type: TypeError, Ts: now - 10})
	a.Observe(Event{Type: TypeError, Ts: now - 59})
	a.Observe(Event{Type: TypeError, Ts: now - 61}) // pruned

	if got := a.Summary().ErrorRate1m; got != 2 {
		t.Errorf("error_rate_1m = %d, want 2", got)
	}
}

func TestLatencyPercentiles(t *testing.T) {
	a, _ := fixedAggregator(1_700_000_000)
	now := 1_700_000_000.0

	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	for _, v := range values {
		a.Observe(Event{Type: TypeLatency, Ts: now - 5, Data: map[string]interface{}{"loop_ms": v}})
	}

	s := a.Summary()
	if s.LatencyMsAvg != 55 {
		t.Errorf("avg = %f, want 55", s.LatencyMsAvg)
	}
	// Nearest rank: ceil(0.95*10)=10th value.
	if s.LatencyMsP95 != 100 {
		t.Errorf("p95 = %f, want 100", s.LatencyMsP95)
	}
}

func TestP95NearestRankSmallSample(t *testing.T) {
	if got := percentileNearestRank([]float64{42}, 95); got != 42 {
		t.Errorf("single sample p95 = %f", got)
	}
	// ceil(0.95*4)=4th of sorted {5,7,9,11} = 11
	if got := percentileNearestRank([]float64{9, 5, 11, 7}, 95); got != 11 {
		t.Errorf("four sample p95 = %f", got)
	}
}

func TestPnlAndPolicyEvents(t *testing.T) {
	a, _ := fixedAggregator(1_700_000_000)

	a.Observe(Event{Type: TypePnl, Ts: 1_700_000_000, Data: map[string]interface{}{
		"pnl_day": -120.0, "drawdown_day": 150.0, "equity": 880.0,
	}})
	a.Observe(Event{Type: TypePolicy, Ts: 1_700_000_000, Data: map[string]interface{}{
		"mode": "risk_off", "allow_trading": false, "reason": "DAILY_LOSS_LIMIT",
	}})
	a.Observe(Event{Type: TypeStatus, Ts: 1_700_000_000, Data: map[string]interface{}{"state": "RUNNING"}})

	s := a.Summary()
	if s.PnlDay != -120 || s.DrawdownDay != 150 || s.Equity != 880 {
		t.Errorf("pnl fields = %+v", s)
	}
	if s.PolicyMode != "risk_off" || s.PolicyAllowTrading || s.PolicyReason != "DAILY_LOSS_LIMIT" {
		t.Errorf("policy fields = %+v", s)
	}
	if s.StatusState != "RUNNING" {
		t.Errorf("status = %q", s.StatusState)
	}
}

func TestUpdateProcessState(t *testing.T) {
	a, now := fixedAggregator(1_700_000_000)

	lastExit := now.Add(-30 * time.Minute).UTC().Format(time.RFC3339)
	a.UpdateProcessState(map[string]interface{}{
		"restart_count":  4,
		"last_exit_time": lastExit,
		"state":          "RUNNING",
	})

	s := a.Summary()
	if s.Restarts != 4 {
		t.Errorf("restarts = %d", s.Restarts)
	}
	if s.RestartRatePerHour < 7.5 || s.RestartRatePerHour > 8.5 {
		t.Errorf("restart rate = %f, want ~8", s.RestartRatePerHour)
	}
}

func TestRingEviction(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Add(Event{Ts: float64(i)})
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d", r.Len())
	}
	recent := r.Recent(0)
	if recent[0].Ts != 2 || recent[2].Ts != 4 {
		t.Errorf("ring contents = %+v", recent)
	}
	if got := r.Recent(2); len(got) != 2 || got[1].Ts != 4 {
		t.Errorf("limited recent = %+v", got)
	}
}
