package risk

// Decision codes returned by order evaluation.
const (
	CodeOK                  = "OK"
	CodeHalted              = "HALTED"
	CodeLLMPause            = "LLM_PAUSE"
	CodeInvalidOrder        = "INVALID_ORDER"
	CodeSymbolNotionalLimit = "SYMBOL_NOTIONAL_LIMIT"
	CodeLeverageLimit       = "LEVERAGE_LIMIT"
)

// Order sides and types accepted by the evaluator.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

var validOrderTypes = map[string]bool{
	"MARKET":     true,
	"LIMIT":      true,
	"STOP":       true,
	"STOP_LIMIT": true,
}

// OrderRequest is a proposed order submitted for risk evaluation.
type OrderRequest struct {
	Symbol       string   `json:"symbol"`
	Side         string   `json:"side"`
	OrderType    string   `json:"order_type"`
	Quantity     float64  `json:"quantity"`
	Price        *float64 `json:"price,omitempty"`
	Notional     *float64 `json:"notional,omitempty"`
	Leverage     *float64 `json:"leverage,omitempty"`
	IsReduceOnly bool     `json:"is_reduce_only"`
}

// Decision is the outcome of evaluating one order.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// StateSnapshot is the per-trading-day risk state. It is exclusively owned
// by the engine; the persisted copy is the durable source of truth re-read
// on startup.
type StateSnapshot struct {
	TradingDay         string  `json:"trading_day"`
	EquityStart        float64 `json:"equity_start"`
	EquityNow          float64 `json:"equity_now"`
	RealizedPnlToday   float64 `json:"realized_pnl_today"`
	MaxEquityIntraday  float64 `json:"max_equity_intraday"`
	MinEquityIntraday  float64 `json:"min_equity_intraday"`
	Halted             bool    `json:"halted"`
	HaltReason         string  `json:"halt_reason"`
	LLMRiskMultiplier  float64 `json:"llm_risk_multiplier"`
	LLMPaused          bool    `json:"llm_paused"`
	LLMLastAction      string  `json:"llm_last_action"`
	LLMLastReason      string  `json:"llm_last_reason"`
	EquityObserved     bool    `json:"equity_observed"`
}

// NewSnapshot returns a fresh snapshot for the given trading day.
func NewSnapshot(tradingDay string) StateSnapshot {
	return StateSnapshot{
		TradingDay:        tradingDay,
		LLMRiskMultiplier: 1.0,
	}
}

// DailyLossAbs is equity lost since the day's start.
func (s StateSnapshot) DailyLossAbs() float64 {
	return s.EquityStart - s.EquityNow
}

// DrawdownAbs is equity lost from the intraday peak.
func (s StateSnapshot) DrawdownAbs() float64 {
	return s.MaxEquityIntraday - s.EquityNow
}

// Advice is a trust-gated instruction from the LLM advisor.
type Advice struct {
	Action     string   `json:"action"` // OK, LOWER_RISK, PAUSE, SWITCH_TO_PAPER
	Multiplier *float64 `json:"multiplier,omitempty"`
	Reason     string   `json:"reason"`
}

// Advice actions.
const (
	AdviceOK            = "OK"
	AdviceLowerRisk     = "LOWER_RISK"
	AdvicePause         = "PAUSE"
	AdviceSwitchToPaper = "SWITCH_TO_PAPER"
)
