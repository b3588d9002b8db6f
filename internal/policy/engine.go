package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/circuit"
	"quantumedge-supervisor/internal/fsatomic"
	"quantumedge-supervisor/internal/llm"
	"quantumedge-supervisor/internal/logging"
	"quantumedge-supervisor/internal/risk"
)

// ProcessStatus is the slice of the process manager the engine reads.
type ProcessStatus interface {
	StatusPayload() map[string]interface{}
}

// RiskReader is the slice of the risk engine the engine reads.
type RiskReader interface {
	GetState() risk.StateSnapshot
}

// Completer issues LLM chat completions for moderation.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	IsConfigured() bool
}

const moderationSystemPrompt = `You moderate a trading policy. Reply with a
single JSON object and nothing else. Allowed keys, all optional:
allow_trading (bool), mode ("normal"|"scalp"|"risk_off"|"conservative"),
size_multiplier (number >= 0), cooldown_sec (int >= 0),
spread_max_bps (number >= 0), max_daily_loss (number >= 0), reason (string).
Only tighten, never loosen: you may disallow trading or reduce size, not the
opposite.`

// moderationOverride is the strict JSON contract for the model reply.
type moderationOverride struct {
	AllowTrading   *bool    `json:"allow_trading,omitempty"`
	Mode           *string  `json:"mode,omitempty"`
	SizeMultiplier *float64 `json:"size_multiplier,omitempty"`
	CooldownSec    *int     `json:"cooldown_sec,omitempty"`
	SpreadMaxBps   *float64 `json:"spread_max_bps,omitempty"`
	MaxDailyLoss   *float64 `json:"max_daily_loss,omitempty"`
	Reason         *string  `json:"reason,omitempty"`
}

// botStatusFile is the best-effort status the bot writes for signal
// enrichment. Missing fields are tolerated.
type botStatusFile struct {
	LossStreak int     `json:"loss_streak"`
	SpreadBps  float64 `json:"spread_bps"`
	Volatility float64 `json:"volatility"`
	ErrorRate  float64 `json:"error_rate"`
	PnlDay     float64 `json:"pnl_day"`
}

// Engine composes heuristics, hysteresis and optional LLM moderation into
// the published policy.
type Engine struct {
	mu         sync.RWMutex
	cfg        config.PolicyConfig
	thresholds config.HeuristicsConfig
	hysteresis *Hysteresis
	process    ProcessStatus
	riskReader RiskReader
	completer  Completer
	breaker    *circuit.Breaker
	llmEnabled bool
	log        *logging.Logger
	now        func() time.Time

	lastSignals  Signals
	lastDecision Decision
	current      *Policy
}

// NewEngine wires the policy engine. completer may be nil when moderation is
// disabled.
func NewEngine(
	cfg config.PolicyConfig,
	thresholds config.HeuristicsConfig,
	hysteresis *Hysteresis,
	process ProcessStatus,
	riskReader RiskReader,
	completer Completer,
	breaker *circuit.Breaker,
	llmEnabled bool,
	log *logging.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		thresholds: thresholds,
		hysteresis: hysteresis,
		process:    process,
		riskReader: riskReader,
		completer:  completer,
		breaker:    breaker,
		llmEnabled: llmEnabled,
		log:        log.WithComponent("policy"),
		now:        time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// CollectSignals derives the per-tick engine input. All sources are
// best-effort; absent data leaves zero values.
func (e *Engine) CollectSignals() Signals {
	var sig Signals

	if e.process != nil {
		status := e.process.StatusPayload()
		if running, ok := status["running"].(bool); ok {
			sig.BotRunning = running
		}
		restarts, _ := status["restart_count"].(int)
		if lastExit, ok := status["last_exit_time"].(string); ok && restarts > 0 {
			if t, err := time.Parse(time.RFC3339, lastExit); err == nil {
				hours := e.nowLocked().Sub(t).Hours()
				if hours < 0.01 {
					hours = 0.01
				}
				rate := float64(restarts) / hours
				sig.RestartRate = &rate
			}
		}
	}

	if e.riskReader != nil {
		rs := e.riskReader.GetState()
		sig.PnlDay = rs.RealizedPnlToday
		sig.DrawdownDay = rs.DrawdownAbs()
		sig.RiskHalted = rs.Halted
		sig.RiskHaltReason = rs.HaltReason
	}

	if e.cfg.BotStatusFile != "" {
		var bs botStatusFile
		if err := fsatomic.ReadJSON(e.cfg.BotStatusFile, &bs); err == nil {
			sig.LossStreak = bs.LossStreak
			sig.SpreadBps = bs.SpreadBps
			sig.Volatility = bs.Volatility
			sig.ErrorRate = bs.ErrorRate
			if bs.PnlDay != 0 {
				sig.PnlDay = bs.PnlDay
			}
		}
	}

	return sig
}

func (e *Engine) nowLocked() time.Time {
	return e.now()
}

// Evaluate runs the full pipeline and returns the next policy. Internal
// panics downgrade to the safe default with reason HEURISTICS_ERROR.
func (e *Engine) Evaluate(ctx context.Context) (p Policy) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("policy evaluation panicked", "panic", fmt.Sprintf("%v", r))
			p = SafeDefault(float64(e.now().Unix()), e.cfg.TTLSec, ReasonHeuristicsError)
			e.mu.Lock()
			e.current = &p
			e.mu.Unlock()
		}
	}()

	sig := e.CollectSignals()
	decision := ApplyHeuristics(sig, e.thresholds)
	decision = e.hysteresis.Apply(decision)

	reason := decision.ReasonCode
	if decision.Evidence != "" {
		reason = decision.ReasonCode + ": " + decision.Evidence
	}

	p = Policy{
		Version:        Version,
		Ts:             float64(e.now().Unix()),
		TTLSec:         e.cfg.TTLSec,
		AllowTrading:   decision.AllowTrading,
		Mode:           decision.Mode,
		SizeMultiplier: decision.SizeMultiplier,
		CooldownSec:    e.cfg.CooldownSec,
		Reason:         reason,
	}
	if e.thresholds.SpreadMaxBps > 0 {
		v := e.thresholds.SpreadMaxBps
		p.SpreadMaxBps = &v
	}
	if e.thresholds.MaxDailyLoss > 0 {
		v := e.thresholds.MaxDailyLoss
		p.MaxDailyLoss = &v
	}

	p = e.moderate(ctx, sig, p)

	if err := p.Validate(); err != nil {
		e.log.Error("derived policy invalid, using safe default", "error", err)
		p = SafeDefault(float64(e.now().Unix()), e.cfg.TTLSec, ReasonHeuristicsError)
	}

	e.mu.Lock()
	e.lastSignals = sig
	e.lastDecision = decision
	e.current = &p
	e.mu.Unlock()
	return p
}

// moderate applies the optional LLM overrides. Failures never propagate;
// they feed the circuit breaker and tag the reason.
func (e *Engine) moderate(ctx context.Context, sig Signals, base Policy) Policy {
	if !e.llmEnabled || e.completer == nil || !e.completer.IsConfigured() {
		return base
	}
	if e.breaker != nil && !e.breaker.Allow() {
		base.Reason += "|LLM_UNAVAILABLE"
		return base
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"signals": sig,
		"policy":  base,
	})

	reply, err := e.completer.Complete(ctx, moderationSystemPrompt, string(payload))
	if err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		e.log.Warn("moderation call failed", "error", err)
		base.Reason += "|LLM_UNAVAILABLE"
		return base
	}

	var override moderationOverride
	if err := llm.ExtractJSON(reply, &override); err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		e.log.Warn("moderation reply unparseable", "error", err)
		base.Reason += "|LLM_UNAVAILABLE"
		return base
	}

	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}

	// Tighten-only merge.
	if override.AllowTrading != nil && !*override.AllowTrading {
		base.AllowTrading = false
	}
	if override.Mode != nil && validModes[*override.Mode] {
		base.Mode = *override.Mode
		if *override.Mode == ModeRiskOff {
			base.AllowTrading = false
		}
	}
	if override.SizeMultiplier != nil && *override.SizeMultiplier >= 0 && *override.SizeMultiplier < base.SizeMultiplier {
		base.SizeMultiplier = *override.SizeMultiplier
	}
	if override.CooldownSec != nil && *override.CooldownSec > base.CooldownSec {
		base.CooldownSec = *override.CooldownSec
	}
	if override.SpreadMaxBps != nil && *override.SpreadMaxBps >= 0 {
		base.SpreadMaxBps = override.SpreadMaxBps
	}
	if override.MaxDailyLoss != nil && *override.MaxDailyLoss >= 0 {
		base.MaxDailyLoss = override.MaxDailyLoss
	}
	if override.Reason != nil && *override.Reason != "" {
		base.Reason += "|" + *override.Reason
	} else {
		base.Reason += "|LLM_OK"
	}
	return base
}

// CurrentPolicy returns the last evaluated policy, if any.
func (e *Engine) CurrentPolicy() (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return Policy{}, false
	}
	return *e.current, true
}

// DebugPayload exposes engine internals for the debug endpoint.
func (e *Engine) DebugPayload() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	payload := map[string]interface{}{
		"signals":     e.lastSignals,
		"decision":    e.lastDecision,
		"hysteresis":  e.hysteresis.State(),
		"llm_enabled": e.llmEnabled,
	}
	if e.breaker != nil {
		payload["breaker"] = e.breaker.GetStats()
	}
	if e.current != nil {
		payload["policy"] = *e.current
	}
	return payload
}
