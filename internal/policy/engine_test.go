package policy

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/circuit"
	"quantumedge-supervisor/internal/logging"
	"quantumedge-supervisor/internal/risk"
)

type fakeProcess struct {
	payload map[string]interface{}
}

func (f *fakeProcess) StatusPayload() map[string]interface{} { return f.payload }

type fakeRisk struct {
	state risk.StateSnapshot
}

func (f *fakeRisk) GetState() risk.StateSnapshot { return f.state }

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeCompleter) IsConfigured() bool { return true }

func newTestEngine(t *testing.T, proc ProcessStatus, rr RiskReader, comp Completer, breaker *circuit.Breaker, llmEnabled bool) *Engine {
	t.Helper()
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	cfg := config.PolicyConfig{TTLSec: 30, TTLGraceSec: 5}
	thr := config.HeuristicsConfig{
		MaxDailyLoss: 300, MaxDrawdownAbs: 400, LossStreak: 5,
		LossStreakMode: "conservative", SpreadMaxBps: 25, VolatilityHi: 0.04,
		RestartRate: 4, ConservativeSizeMultiplier: 0.5,
	}
	hyst := NewHysteresis(config.HysteresisConfig{EnterCycles: 2, ExitCycles: 2},
		filepath.Join(t.TempDir(), "policy_state.json"), log)
	return NewEngine(cfg, thr, hyst, proc, rr, comp, breaker, llmEnabled, log)
}

func runningProcess() *fakeProcess {
	return &fakeProcess{payload: map[string]interface{}{"running": true, "restart_count": 0}}
}

func TestEvaluateNominal(t *testing.T) {
	e := newTestEngine(t, runningProcess(), &fakeRisk{}, nil, nil, false)

	pol := e.Evaluate(context.Background())
	if !pol.AllowTrading || pol.Mode != ModeNormal {
		t.Errorf("nominal policy = %+v", pol)
	}
	if !strings.HasPrefix(pol.Reason, ReasonOK) {
		t.Errorf("reason = %q", pol.Reason)
	}
	if err := pol.Validate(); err != nil {
		t.Errorf("policy invalid: %v", err)
	}

	if _, ok := e.CurrentPolicy(); !ok {
		t.Error("CurrentPolicy should be set after Evaluate")
	}
}

func TestEvaluateBotDownImmediate(t *testing.T) {
	proc := &fakeProcess{payload: map[string]interface{}{"running": false}}
	e := newTestEngine(t, proc, &fakeRisk{}, nil, nil, false)

	pol := e.Evaluate(context.Background())
	if pol.AllowTrading || pol.Mode != ModeRiskOff {
		t.Errorf("bot-down policy = %+v", pol)
	}
	if !strings.Contains(pol.Reason, ReasonBotUnhealthy) {
		t.Errorf("reason = %q", pol.Reason)
	}
}

func TestEvaluateRiskHaltImmediate(t *testing.T) {
	rr := &fakeRisk{state: risk.StateSnapshot{Halted: true, HaltReason: "Drawdown 100.00 >= limit 100.00"}}
	e := newTestEngine(t, runningProcess(), rr, nil, nil, false)

	pol := e.Evaluate(context.Background())
	if pol.Mode != ModeRiskOff || !strings.Contains(pol.Reason, ReasonRiskEngineHalted) {
		t.Errorf("halt policy = %+v", pol)
	}
}

func TestRestartRateSignal(t *testing.T) {
	lastExit := time.Now().UTC().Add(-30 * time.Minute).Format(time.RFC3339)
	proc := &fakeProcess{payload: map[string]interface{}{
		"running": true, "restart_count": 3, "last_exit_time": lastExit,
	}}
	e := newTestEngine(t, proc, &fakeRisk{}, nil, nil, false)

	sig := e.CollectSignals()
	if sig.RestartRate == nil {
		t.Fatal("restart rate not derived")
	}
	// 3 restarts in 0.5h = 6/h
	if *sig.RestartRate < 5.5 || *sig.RestartRate > 6.5 {
		t.Errorf("restart rate = %f", *sig.RestartRate)
	}
}

func TestModerationTightens(t *testing.T) {
	comp := &fakeCompleter{reply: `{"allow_trading": false, "size_multiplier": 0.2, "reason": "macro event"}`}
	breaker := circuit.New(circuit.DefaultConfig())
	e := newTestEngine(t, runningProcess(), &fakeRisk{}, comp, breaker, true)

	pol := e.Evaluate(context.Background())
	if pol.AllowTrading {
		t.Error("moderation disallow ignored")
	}
	if pol.SizeMultiplier != 0.2 {
		t.Errorf("size multiplier = %v", pol.SizeMultiplier)
	}
	if !strings.Contains(pol.Reason, "macro event") {
		t.Errorf("reason = %q", pol.Reason)
	}
}

func TestModerationCannotLoosen(t *testing.T) {
	// Bot down -> base policy denies trading; model tries to re-enable.
	proc := &fakeProcess{payload: map[string]interface{}{"running": false}}
	comp := &fakeCompleter{reply: `{"allow_trading": true, "size_multiplier": 5.0}`}
	e := newTestEngine(t, proc, &fakeRisk{}, comp, circuit.New(circuit.DefaultConfig()), true)

	pol := e.Evaluate(context.Background())
	if pol.AllowTrading {
		t.Error("moderation must not re-enable trading")
	}
	if pol.SizeMultiplier != 0 {
		t.Errorf("moderation raised size multiplier to %v", pol.SizeMultiplier)
	}
}

func TestModerationFailureFeedsBreaker(t *testing.T) {
	comp := &fakeCompleter{err: errors.New("timeout")}
	breaker := circuit.New(circuit.Config{FailureThreshold: 2, WindowSec: 300, OpenSec: 600})
	e := newTestEngine(t, runningProcess(), &fakeRisk{}, comp, breaker, true)

	pol := e.Evaluate(context.Background())
	if !strings.HasSuffix(pol.Reason, "|LLM_UNAVAILABLE") {
		t.Errorf("reason = %q", pol.Reason)
	}

	e.Evaluate(context.Background()) // second failure opens the breaker
	if breaker.GetState() != circuit.StateOpen {
		t.Fatalf("breaker state = %v", breaker.GetState())
	}

	calls := comp.calls
	pol = e.Evaluate(context.Background())
	if comp.calls != calls {
		t.Error("open breaker must suppress moderation calls")
	}
	if !strings.HasSuffix(pol.Reason, "|LLM_UNAVAILABLE") {
		t.Errorf("reason with open breaker = %q", pol.Reason)
	}
}

func TestModerationSuccessTagsReason(t *testing.T) {
	comp := &fakeCompleter{reply: `{}`}
	e := newTestEngine(t, runningProcess(), &fakeRisk{}, comp, circuit.New(circuit.DefaultConfig()), true)

	pol := e.Evaluate(context.Background())
	if !strings.HasSuffix(pol.Reason, "|LLM_OK") {
		t.Errorf("reason = %q", pol.Reason)
	}
}

func TestDebugPayload(t *testing.T) {
	e := newTestEngine(t, runningProcess(), &fakeRisk{}, nil, circuit.New(circuit.DefaultConfig()), false)
	e.Evaluate(context.Background())

	dbg := e.DebugPayload()
	for _, key := range []string{"signals", "decision", "hysteresis", "breaker", "policy", "llm_enabled"} {
		if _, ok := dbg[key]; !ok {
			t.Errorf("debug payload missing %q", key)
		}
	}
}
