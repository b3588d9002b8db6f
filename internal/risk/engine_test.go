package risk

import (
	"strings"
	"testing"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/heartbeat"
	"quantumedge-supervisor/internal/logging"
)

func testEngine(t *testing.T, cfg config.RiskConfig) *Engine {
	t.Helper()
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	return NewEngine(cfg, NewStore(t.TempDir()), "2026-08-24", nil, log)
}

func f(v float64) *float64 { return &v }

func TestHaltOnDrawdownThenReduceOnly(t *testing.T) {
	e := testEngine(t, config.RiskConfig{MaxDrawdownAbs: 100})

	for _, equity := range []float64{1000, 980, 950, 900} {
		e.UpdateFromHeartbeat(heartbeat.Payload{Equity: equity, TradingDay: "2026-08-24"})
	}

	state := e.GetState()
	if !state.Halted {
		t.Fatal("expected halt after 100 drawdown")
	}
	if !strings.Contains(state.HaltReason, "Drawdown 100.00 >= limit 100.00") {
		t.Errorf("halt reason = %q", state.HaltReason)
	}

	order := OrderRequest{Symbol: "BTCUSDT", Side: SideBuy, OrderType: "MARKET", Quantity: 1, Price: f(1)}
	d := e.EvaluateOrder(order)
	if d.Allowed || d.Code != CodeHalted {
		t.Errorf("non-reduce-only while halted = %+v", d)
	}

	order.IsReduceOnly = true
	d = e.EvaluateOrder(order)
	if !d.Allowed || d.Code != CodeHalted {
		t.Errorf("reduce-only while halted = %+v", d)
	}
}

func TestHaltIsSticky(t *testing.T) {
	e := testEngine(t, config.RiskConfig{MaxDrawdownAbs: 100})

	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 1000, TradingDay: "2026-08-24"})
	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 900, TradingDay: "2026-08-24"})
	if !e.GetState().Halted {
		t.Fatal("expected halt")
	}

	// Recovery does not un-halt within the same day.
	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 1000, TradingDay: "2026-08-24"})
	if !e.GetState().Halted {
		t.Error("halt must persist despite recovery")
	}

	// A new trading day clears it.
	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 1000, TradingDay: "2026-08-25"})
	if e.GetState().Halted {
		t.Error("new trading day should reset the halt")
	}
}

func TestDailyLossLimitsEvaluatedFirst(t *testing.T) {
	// Both the daily-loss and drawdown limits are breached; daily loss wins.
	e := testEngine(t, config.RiskConfig{MaxDailyLossAbs: 50, MaxDrawdownAbs: 50})

	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 1000, TradingDay: "2026-08-24"})
	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 940, TradingDay: "2026-08-24"})

	state := e.GetState()
	if !strings.Contains(state.HaltReason, "Daily loss") {
		t.Errorf("halt reason = %q, want daily loss first", state.HaltReason)
	}
}

func TestPctLimits(t *testing.T) {
	e := testEngine(t, config.RiskConfig{MaxDailyLossPct: 3})

	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 1000, TradingDay: "2026-08-24"})
	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 969, TradingDay: "2026-08-24"})

	state := e.GetState()
	if !state.Halted {
		t.Fatal("expected pct halt at 3.1% loss")
	}
	if !strings.Contains(state.HaltReason, "%") {
		t.Errorf("halt reason = %q, want pct reason", state.HaltReason)
	}
}

func TestOrderValidation(t *testing.T) {
	e := testEngine(t, config.RiskConfig{MaxNotional: 5000, MaxLeverage: 5})

	cases := []struct {
		name string
		req  OrderRequest
		code string
	}{
		{"zero quantity", OrderRequest{Side: SideBuy, Quantity: 0}, CodeInvalidOrder},
		{"bad side", OrderRequest{Side: "HOLD", Quantity: 1}, CodeInvalidOrder},
		{"bad type", OrderRequest{Side: SideBuy, OrderType: "ICEBERG", Quantity: 1}, CodeInvalidOrder},
		{"bad leverage", OrderRequest{Side: SideBuy, Quantity: 1, Leverage: f(0)}, CodeInvalidOrder},
		{"notional breach", OrderRequest{Side: SideBuy, Quantity: 2, Price: f(3000)}, CodeSymbolNotionalLimit},
		{"explicit notional breach", OrderRequest{Side: SideBuy, Quantity: 1, Notional: f(6000)}, CodeSymbolNotionalLimit},
		{"leverage breach", OrderRequest{Side: SideBuy, Quantity: 1, Leverage: f(10)}, CodeLeverageLimit},
		{"ok", OrderRequest{Side: SideBuy, OrderType: "LIMIT", Quantity: 1, Price: f(100), Leverage: f(3)}, CodeOK},
	}

	for _, tc := range cases {
		d := e.EvaluateOrder(tc.req)
		if d.Code != tc.code {
			t.Errorf("%s: code = %s, want %s (%s)", tc.name, d.Code, tc.code, d.Reason)
		}
		if (tc.code == CodeOK) != d.Allowed {
			t.Errorf("%s: allowed = %v", tc.name, d.Allowed)
		}
	}
}

func TestLLMMultiplierScalesCaps(t *testing.T) {
	e := testEngine(t, config.RiskConfig{
		MaxNotional: 5000, MaxLeverage: 5,
		LLMMultiplierMin: 0.1, LLMMultiplierMax: 1.0,
	})

	e.ApplyAdvice(Advice{Action: AdviceLowerRisk, Multiplier: f(0.5), Reason: "volatile session"})

	// Effective notional cap is now 2500.
	d := e.EvaluateOrder(OrderRequest{Side: SideBuy, Quantity: 1, Notional: f(3000)})
	if d.Code != CodeSymbolNotionalLimit {
		t.Errorf("code = %s, want notional limit under reduced multiplier", d.Code)
	}
	d = e.EvaluateOrder(OrderRequest{Side: SideBuy, Quantity: 1, Notional: f(2000)})
	if !d.Allowed {
		t.Errorf("order under reduced cap rejected: %+v", d)
	}
}

func TestAdviceTrustPolicy(t *testing.T) {
	e := testEngine(t, config.RiskConfig{LLMMultiplierMin: 0.1, LLMMultiplierMax: 1.0})

	e.ApplyAdvice(Advice{Action: AdviceLowerRisk, Multiplier: f(0.4)})
	if got := e.GetState().LLMRiskMultiplier; got != 0.4 {
		t.Fatalf("multiplier = %v, want 0.4", got)
	}

	// Raising is ignored.
	e.ApplyAdvice(Advice{Action: AdviceLowerRisk, Multiplier: f(0.8)})
	if got := e.GetState().LLMRiskMultiplier; got != 0.4 {
		t.Errorf("multiplier raised to %v, must stay 0.4", got)
	}

	// Out-of-band values are ignored.
	e.ApplyAdvice(Advice{Action: AdviceLowerRisk, Multiplier: f(0.05)})
	if got := e.GetState().LLMRiskMultiplier; got != 0.4 {
		t.Errorf("out-of-band multiplier applied: %v", got)
	}
}

func TestPauseAndResume(t *testing.T) {
	e := testEngine(t, config.RiskConfig{})

	e.ApplyAdvice(Advice{Action: AdvicePause, Reason: "anomalous conditions"})

	d := e.EvaluateOrder(OrderRequest{Side: SideBuy, Quantity: 1})
	if d.Allowed || d.Code != CodeLLMPause {
		t.Errorf("paused non-reduce-only = %+v", d)
	}
	d = e.EvaluateOrder(OrderRequest{Side: SideSell, Quantity: 1, IsReduceOnly: true})
	if !d.Allowed || d.Code != CodeLLMPause {
		t.Errorf("paused reduce-only = %+v", d)
	}

	e.ApplyAdvice(Advice{Action: AdviceOK})
	d = e.EvaluateOrder(OrderRequest{Side: SideBuy, Quantity: 1})
	if !d.Allowed {
		t.Errorf("after OK advice = %+v", d)
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	store := NewStore(dir)

	e := NewEngine(config.RiskConfig{MaxDrawdownAbs: 100}, store, "2026-08-24", nil, log)
	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 1000, TradingDay: "2026-08-24"})
	e.UpdateFromHeartbeat(heartbeat.Payload{Equity: 900, TradingDay: "2026-08-24"})
	if err := e.Persist(); err != nil {
		t.Fatal(err)
	}

	// Same day reloads the halt.
	e2 := NewEngine(config.RiskConfig{MaxDrawdownAbs: 100}, store, "2026-08-24", nil, log)
	if !e2.GetState().Halted {
		t.Error("reload on same day should keep halt")
	}

	// Next day starts fresh.
	e3 := NewEngine(config.RiskConfig{MaxDrawdownAbs: 100}, store, "2026-08-25", nil, log)
	if e3.GetState().Halted {
		t.Error("reload on new day should reset")
	}
	if e3.GetState().LLMRiskMultiplier != 1.0 {
		t.Errorf("fresh multiplier = %v", e3.GetState().LLMRiskMultiplier)
	}
}
