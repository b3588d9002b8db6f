package policy

import (
	"os"
	"sync"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/fsatomic"
	"quantumedge-supervisor/internal/logging"
)

// HysteresisState is the persisted dwell-gating state.
type HysteresisState struct {
	Mode        string `json:"mode"`
	DangerCount int    `json:"danger_count"`
	SafeCount   int    `json:"safe_count"`
}

// Hysteresis prevents mode thrashing: entering risk_off requires
// EnterCycles consecutive dangerous decisions (unless the reason is in the
// immediate set), exiting requires ExitCycles consecutive safe ones.
type Hysteresis struct {
	mu        sync.Mutex
	cfg       config.HysteresisConfig
	state     HysteresisState
	stateFile string
	log       *logging.Logger
}

// NewHysteresis loads persisted state from stateFile, defaulting to normal.
func NewHysteresis(cfg config.HysteresisConfig, stateFile string, log *logging.Logger) *Hysteresis {
	h := &Hysteresis{
		cfg:       cfg,
		state:     HysteresisState{Mode: ModeNormal},
		stateFile: stateFile,
		log:       log.WithComponent("hysteresis"),
	}
	if stateFile != "" {
		var persisted HysteresisState
		if err := fsatomic.ReadJSON(stateFile, &persisted); err == nil && validModes[persisted.Mode] {
			h.state = persisted
		} else if err != nil && !os.IsNotExist(err) {
			h.log.Warn("hysteresis state load failed", "error", err)
		}
	}
	return h
}

// State returns a copy of the current dwell state.
func (h *Hysteresis) State() HysteresisState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Apply folds one heuristic decision into the dwell state and returns the
// gated decision. The returned decision carries HYSTERESIS_WAIT or
// HYSTERESIS_HOLD when the mode is being held back.
func (h *Hysteresis) Apply(d Decision) Decision {
	h.mu.Lock()
	defer h.mu.Unlock()

	if d.Immediate() {
		h.state.Mode = d.Mode
		h.state.DangerCount = 0
		h.state.SafeCount = 0
		h.persist()
		return d
	}

	inRiskOff := h.state.Mode == ModeRiskOff
	wantsRiskOff := d.Mode == ModeRiskOff

	switch {
	case !inRiskOff && wantsRiskOff:
		h.state.DangerCount++
		h.state.SafeCount = 0
		if h.state.DangerCount >= h.cfg.EnterCycles {
			h.state.Mode = ModeRiskOff
			h.state.DangerCount = 0
			h.persist()
			return d
		}
		h.persist()
		held := d
		held.Mode = h.state.Mode
		held.ReasonCode = ReasonHysteresisWait
		held.AllowTrading = h.state.Mode != ModeRiskOff
		if held.AllowTrading && held.SizeMultiplier == 0 {
			held.SizeMultiplier = 1.0
		}
		return held

	case inRiskOff && !wantsRiskOff:
		h.state.SafeCount++
		h.state.DangerCount = 0
		if h.state.SafeCount >= h.cfg.ExitCycles {
			h.state.Mode = d.Mode
			h.state.SafeCount = 0
			h.persist()
			return d
		}
		h.persist()
		held := d
		held.Mode = ModeRiskOff
		held.ReasonCode = ReasonHysteresisHold
		held.AllowTrading = false
		held.SizeMultiplier = 0
		return held

	default:
		// Decision agrees with the current side; counters reset and
		// non-risk_off mode changes (normal <-> conservative) pass through.
		h.state.DangerCount = 0
		h.state.SafeCount = 0
		h.state.Mode = d.Mode
		h.persist()
		return d
	}
}

func (h *Hysteresis) persist() {
	if h.stateFile == "" {
		return
	}
	if err := fsatomic.WriteJSON(h.stateFile, h.state); err != nil {
		h.log.Warn("hysteresis state persist failed", "error", err)
	}
}
