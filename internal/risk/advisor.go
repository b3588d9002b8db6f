package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/cache"
	"quantumedge-supervisor/internal/circuit"
	"quantumedge-supervisor/internal/llm"
	"quantumedge-supervisor/internal/logging"
)

const advisorSystemPrompt = `You are a trading risk advisor. Given a risk state
summary, reply with a single JSON object and nothing else. Allowed keys:
action (one of "OK", "LOWER_RISK", "PAUSE", "SWITCH_TO_PAPER"),
multiplier (number, only with LOWER_RISK), reason (short string).`

// Completer is the slice of the LLM client the advisor needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	IsConfigured() bool
}

// Advisor asks the LLM for risk advice, guarded by a rate limiter, a TTL
// cache and a circuit breaker. Advice is applied through the engine's trust
// policy, never directly.
type Advisor struct {
	client   Completer
	cache    *cache.TTLCache
	limiter  *cache.RateLimiter
	breaker  *circuit.Breaker
	cacheTTL time.Duration
	log      *logging.Logger
}

// NewAdvisor wires the advisor from config.
func NewAdvisor(cfg config.LLMConfig, client Completer, ttlCache *cache.TTLCache, breaker *circuit.Breaker, log *logging.Logger) *Advisor {
	return &Advisor{
		client:   client,
		cache:    ttlCache,
		limiter:  cache.NewRateLimiter(cfg.RateLimit, time.Duration(cfg.RateWindowSec)*time.Second),
		breaker:  breaker,
		cacheTTL: time.Duration(cfg.CacheTTLSec) * time.Second,
		log:      log.WithComponent("risk-advisor"),
	}
}

// Check requests advice for the given snapshot. Returns false when the call
// was suppressed (unconfigured, rate-limited, breaker open) or failed; the
// caller keeps its current state in that case.
func (a *Advisor) Check(ctx context.Context, snap StateSnapshot) (Advice, bool) {
	if a.client == nil || !a.client.IsConfigured() {
		return Advice{}, false
	}

	key := fmt.Sprintf("risk-advice:%s:%.0f:%.0f", snap.TradingDay, snap.EquityNow, snap.DrawdownAbs())
	var cached Advice
	if a.cache != nil && a.cache.GetJSON(ctx, key, &cached) {
		return cached, true
	}

	if a.limiter != nil && !a.limiter.Allow() {
		a.log.Debug("advice call rate-limited")
		return Advice{}, false
	}
	if a.breaker != nil && !a.breaker.Allow() {
		a.log.Debug("advice call suppressed, breaker open")
		return Advice{}, false
	}

	summary, _ := json.Marshal(map[string]interface{}{
		"trading_day":        snap.TradingDay,
		"equity_start":       snap.EquityStart,
		"equity_now":         snap.EquityNow,
		"daily_loss_abs":     snap.DailyLossAbs(),
		"drawdown_abs":       snap.DrawdownAbs(),
		"realized_pnl_today": snap.RealizedPnlToday,
		"halted":             snap.Halted,
	})

	reply, err := a.client.Complete(ctx, advisorSystemPrompt, string(summary))
	if err != nil {
		if a.breaker != nil {
			a.breaker.RecordFailure()
		}
		a.log.Warn("advice call failed", "error", err)
		return Advice{}, false
	}

	var adv Advice
	if err := llm.ExtractJSON(reply, &adv); err != nil {
		if a.breaker != nil {
			a.breaker.RecordFailure()
		}
		a.log.Warn("advice reply unparseable", "error", err)
		return Advice{}, false
	}

	switch adv.Action {
	case AdviceOK, AdviceLowerRisk, AdvicePause, AdviceSwitchToPaper:
	default:
		if a.breaker != nil {
			a.breaker.RecordFailure()
		}
		a.log.Warn("advice action unknown", "action", adv.Action)
		return Advice{}, false
	}

	if a.breaker != nil {
		a.breaker.RecordSuccess()
	}
	if a.cache != nil {
		a.cache.SetJSON(ctx, key, adv, a.cacheTTL)
	}
	return adv, true
}
