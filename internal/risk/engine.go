package risk

import (
	"fmt"
	"sync"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/eventlog"
	"quantumedge-supervisor/internal/heartbeat"
	"quantumedge-supervisor/internal/logging"
)

// Engine evaluates orders against hard limits and auto-halts on breach.
// It is the single writer of the risk snapshot; the supervisor loop and API
// read through GetState.
type Engine struct {
	mu     sync.RWMutex
	config config.RiskConfig
	state  StateSnapshot
	store  *Store
	events *eventlog.Logger
	log    *logging.Logger
}

// NewEngine creates an engine with the given persisted store. The snapshot
// for tradingDay is loaded immediately; load errors fall back to a fresh day.
func NewEngine(cfg config.RiskConfig, store *Store, tradingDay string, events *eventlog.Logger, log *logging.Logger) *Engine {
	snap, err := store.Load(tradingDay)
	if err != nil {
		log.Warn("risk state load failed, starting fresh", "error", err)
	}
	return &Engine{
		config: cfg,
		state:  snap,
		store:  store,
		events: events,
		log:    log.WithComponent("risk"),
	}
}

// GetState returns a copy of the current snapshot.
func (e *Engine) GetState() StateSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// UpdateFromHeartbeat folds a heartbeat into the snapshot and runs the
// auto-halt evaluation. A trading-day change resets the snapshot first.
func (e *Engine) UpdateFromHeartbeat(hb heartbeat.Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if hb.TradingDay != "" && hb.TradingDay != e.state.TradingDay {
		e.log.Info("trading day rollover", "from", e.state.TradingDay, "to", hb.TradingDay)
		e.state = NewSnapshot(hb.TradingDay)
	}

	if !e.state.EquityObserved {
		e.state.EquityStart = hb.Equity
		e.state.EquityNow = hb.Equity
		e.state.MaxEquityIntraday = hb.Equity
		e.state.MinEquityIntraday = hb.Equity
		e.state.EquityObserved = true
	} else {
		e.state.EquityNow = hb.Equity
		if hb.Equity > e.state.MaxEquityIntraday {
			e.state.MaxEquityIntraday = hb.Equity
		}
		if hb.Equity < e.state.MinEquityIntraday {
			e.state.MinEquityIntraday = hb.Equity
		}
	}
	e.state.RealizedPnlToday = hb.RealizedPnlToday

	e.evaluateHaltLocked()
}

// evaluateHaltLocked applies the halt limits in fixed order; the first breach
// wins. A halt is sticky until the trading day changes or an explicit reset.
// Caller holds the write lock.
func (e *Engine) evaluateHaltLocked() {
	if e.state.Halted {
		return
	}

	dailyLoss := e.state.DailyLossAbs()
	drawdown := e.state.DrawdownAbs()

	var reason string
	switch {
	case e.config.MaxDailyLossAbs > 0 && dailyLoss >= e.config.MaxDailyLossAbs:
		reason = fmt.Sprintf("Daily loss %.2f >= limit %.2f", dailyLoss, e.config.MaxDailyLossAbs)
	case e.config.MaxDailyLossPct > 0 && e.state.EquityStart > 0 &&
		dailyLoss/e.state.EquityStart*100 >= e.config.MaxDailyLossPct:
		reason = fmt.Sprintf("Daily loss %.2f%% >= limit %.2f%%",
			dailyLoss/e.state.EquityStart*100, e.config.MaxDailyLossPct)
	case e.config.MaxDrawdownAbs > 0 && drawdown >= e.config.MaxDrawdownAbs:
		reason = fmt.Sprintf("Drawdown %.2f >= limit %.2f", drawdown, e.config.MaxDrawdownAbs)
	case e.config.MaxDrawdownPct > 0 && e.state.MaxEquityIntraday > 0 &&
		drawdown/e.state.MaxEquityIntraday*100 >= e.config.MaxDrawdownPct:
		reason = fmt.Sprintf("Drawdown %.2f%% >= limit %.2f%%",
			drawdown/e.state.MaxEquityIntraday*100, e.config.MaxDrawdownPct)
	}

	if reason == "" {
		return
	}

	e.state.Halted = true
	e.state.HaltReason = reason
	e.log.Warn("risk engine halted", "reason", reason)
	if e.events != nil {
		e.events.Emit(eventlog.EventRiskLimitBreach, "risk", map[string]interface{}{
			"reason":      reason,
			"trading_day": e.state.TradingDay,
			"equity_now":  e.state.EquityNow,
		})
	}
}

// EvaluateOrder applies the order checks in fixed order and emits an
// ORDER_DECISION event for every evaluation.
func (e *Engine) EvaluateOrder(req OrderRequest) Decision {
	e.mu.RLock()
	state := e.state
	cfg := e.config
	e.mu.RUnlock()

	decision := evaluateOrder(req, state, cfg)

	if e.events != nil {
		e.events.Emit(eventlog.EventOrderDecision, "risk", map[string]interface{}{
			"symbol":  req.Symbol,
			"side":    req.Side,
			"allowed": decision.Allowed,
			"code":    decision.Code,
			"reason":  decision.Reason,
		})
	}
	return decision
}

func evaluateOrder(req OrderRequest, state StateSnapshot, cfg config.RiskConfig) Decision {
	if state.Halted {
		if req.IsReduceOnly {
			return Decision{Allowed: true, Code: CodeHalted, Reason: "halted, reduce-only allowed"}
		}
		return Decision{Allowed: false, Code: CodeHalted, Reason: state.HaltReason}
	}

	if state.LLMPaused {
		if req.IsReduceOnly {
			return Decision{Allowed: true, Code: CodeLLMPause, Reason: "llm pause, reduce-only allowed"}
		}
		return Decision{Allowed: false, Code: CodeLLMPause, Reason: state.LLMLastReason}
	}

	if req.Quantity <= 0 {
		return Decision{Allowed: false, Code: CodeInvalidOrder, Reason: "quantity must be > 0"}
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return Decision{Allowed: false, Code: CodeInvalidOrder, Reason: fmt.Sprintf("invalid side %q", req.Side)}
	}
	if req.OrderType != "" && !validOrderTypes[req.OrderType] {
		return Decision{Allowed: false, Code: CodeInvalidOrder, Reason: fmt.Sprintf("invalid order_type %q", req.OrderType)}
	}

	leverage := 1.0
	if req.Leverage != nil {
		leverage = *req.Leverage
	}
	if leverage <= 0 {
		return Decision{Allowed: false, Code: CodeInvalidOrder, Reason: "leverage must be > 0"}
	}

	var notional float64
	if req.Notional != nil {
		notional = *req.Notional
	} else if req.Price != nil {
		notional = *req.Price * req.Quantity
	}
	if notional < 0 {
		return Decision{Allowed: false, Code: CodeInvalidOrder, Reason: "notional must be >= 0"}
	}

	mult := state.LLMRiskMultiplier
	if mult <= 0 {
		mult = 1.0
	}
	effectiveNotional := cfg.MaxNotional * mult
	effectiveLeverage := cfg.MaxLeverage * mult

	if cfg.MaxNotional > 0 && notional > effectiveNotional {
		return Decision{
			Allowed: false,
			Code:    CodeSymbolNotionalLimit,
			Reason:  fmt.Sprintf("notional %.2f > limit %.2f", notional, effectiveNotional),
		}
	}
	if cfg.MaxLeverage > 0 && leverage > effectiveLeverage {
		return Decision{
			Allowed: false,
			Code:    CodeLeverageLimit,
			Reason:  fmt.Sprintf("leverage %.2f > limit %.2f", leverage, effectiveLeverage),
		}
	}

	return Decision{Allowed: true, Code: CodeOK, Reason: "ok"}
}

// ApplyAdvice folds a trust-gated LLM advice into the snapshot. LOWER_RISK
// only ever lowers the live multiplier and must stay inside the configured
// band; PAUSE sets the pause flag and OK clears it; SWITCH_TO_PAPER is
// recorded but not executed here.
func (e *Engine) ApplyAdvice(adv Advice) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.LLMLastAction = adv.Action
	e.state.LLMLastReason = adv.Reason

	switch adv.Action {
	case AdviceLowerRisk:
		if adv.Multiplier == nil {
			break
		}
		m := *adv.Multiplier
		if m < e.config.LLMMultiplierMin || m > e.config.LLMMultiplierMax {
			e.log.Warn("advice multiplier outside trust band, ignored", "multiplier", m)
			break
		}
		if m > e.state.LLMRiskMultiplier {
			e.log.Warn("advice would raise risk multiplier, ignored",
				"current", e.state.LLMRiskMultiplier, "proposed", m)
			break
		}
		e.state.LLMRiskMultiplier = m
	case AdvicePause:
		e.state.LLMPaused = true
	case AdviceOK:
		e.state.LLMPaused = false
	case AdviceSwitchToPaper:
		// Recorded only; execution belongs to the operator.
	}

	if e.events != nil {
		e.events.Emit(eventlog.EventLLMAdvice, "risk", map[string]interface{}{
			"action":     adv.Action,
			"reason":     adv.Reason,
			"multiplier": e.state.LLMRiskMultiplier,
			"paused":     e.state.LLMPaused,
		})
	}
}

// ResetDay discards state and starts a fresh snapshot for tradingDay.
func (e *Engine) ResetDay(tradingDay string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = NewSnapshot(tradingDay)
}

// Persist writes the snapshot through the store.
func (e *Engine) Persist() error {
	e.mu.RLock()
	snap := e.state
	e.mu.RUnlock()
	return e.store.Save(snap)
}
