package policy

import (
	"path/filepath"
	"testing"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/logging"
)

func testHysteresis(t *testing.T, enter, exit int) *Hysteresis {
	t.Helper()
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	return NewHysteresis(
		config.HysteresisConfig{EnterCycles: enter, ExitCycles: exit},
		filepath.Join(t.TempDir(), "policy_state.json"),
		log,
	)
}

func riskOffDecision(code string) Decision {
	return Decision{Mode: ModeRiskOff, ReasonCode: code, Evidence: "test"}
}

func normalDecision() Decision {
	return Decision{Mode: ModeNormal, ReasonCode: ReasonOK, AllowTrading: true, SizeMultiplier: 1}
}

func TestEnterExitSequence(t *testing.T) {
	h := testHysteresis(t, 2, 2)

	// risk_off (non-immediate) -> held with HYSTERESIS_WAIT
	d := h.Apply(riskOffDecision(ReasonSpreadTooWide))
	if d.ReasonCode != ReasonHysteresisWait || d.Mode != ModeNormal {
		t.Fatalf("tick 1 = %+v, want WAIT in normal", d)
	}

	// second risk_off -> enters risk_off
	d = h.Apply(riskOffDecision(ReasonSpreadTooWide))
	if d.Mode != ModeRiskOff || d.ReasonCode != ReasonSpreadTooWide {
		t.Fatalf("tick 2 = %+v, want risk_off", d)
	}

	// first safe decision -> held with HYSTERESIS_HOLD
	d = h.Apply(normalDecision())
	if d.ReasonCode != ReasonHysteresisHold || d.Mode != ModeRiskOff || d.AllowTrading {
		t.Fatalf("tick 3 = %+v, want HOLD in risk_off", d)
	}

	// second safe decision -> exits
	d = h.Apply(normalDecision())
	if d.Mode != ModeNormal || d.ReasonCode != ReasonOK {
		t.Fatalf("tick 4 = %+v, want normal", d)
	}
}

func TestImmediateShortCircuit(t *testing.T) {
	h := testHysteresis(t, 2, 3)

	d := h.Apply(riskOffDecision(ReasonDailyLossLimit))
	if d.Mode != ModeRiskOff || d.ReasonCode != ReasonDailyLossLimit {
		t.Errorf("immediate reason held back: %+v", d)
	}
	if h.State().Mode != ModeRiskOff {
		t.Errorf("state mode = %s", h.State().Mode)
	}
}

func TestDangerCountResetsOnSafeTick(t *testing.T) {
	h := testHysteresis(t, 2, 2)

	h.Apply(riskOffDecision(ReasonSpreadTooWide)) // danger=1
	h.Apply(normalDecision())                     // resets
	d := h.Apply(riskOffDecision(ReasonSpreadTooWide))
	if d.ReasonCode != ReasonHysteresisWait {
		t.Errorf("counter not reset: %+v", d)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	stateFile := filepath.Join(t.TempDir(), "policy_state.json")
	cfg := config.HysteresisConfig{EnterCycles: 1, ExitCycles: 3}

	h := NewHysteresis(cfg, stateFile, log)
	h.Apply(riskOffDecision(ReasonSpreadTooWide)) // enter_cycles=1 -> risk_off

	h2 := NewHysteresis(cfg, stateFile, log)
	if h2.State().Mode != ModeRiskOff {
		t.Errorf("reloaded mode = %s, want risk_off", h2.State().Mode)
	}
}

func TestConservativePassesThrough(t *testing.T) {
	h := testHysteresis(t, 2, 2)

	d := h.Apply(Decision{Mode: ModeConservative, ReasonCode: ReasonHighVol, AllowTrading: true, SizeMultiplier: 0.5})
	if d.Mode != ModeConservative || d.ReasonCode != ReasonHighVol {
		t.Errorf("conservative held back: %+v", d)
	}
}
