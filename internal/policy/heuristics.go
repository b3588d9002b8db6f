package policy

import (
	"fmt"

	"quantumedge-supervisor/config"
)

// Reason codes produced by the heuristic layer and hysteresis.
const (
	ReasonOK                = "OK"
	ReasonBotUnhealthy      = "BOT_UNHEALTHY"
	ReasonRiskEngineHalted  = "RISK_ENGINE_HALTED"
	ReasonBotRestartLoop    = "BOT_RESTART_LOOP"
	ReasonDailyLossLimit    = "DAILY_LOSS_LIMIT"
	ReasonDrawdownLimit     = "DRAWDOWN_LIMIT"
	ReasonLossStreak        = "LOSS_STREAK"
	ReasonSpreadTooWide     = "SPREAD_TOO_WIDE"
	ReasonHighVol           = "HIGH_VOL"
	ReasonHysteresisWait    = "HYSTERESIS_WAIT"
	ReasonHysteresisHold    = "HYSTERESIS_HOLD"
	ReasonHeuristicsError   = "HEURISTICS_ERROR"
)

// immediateReasons bypass hysteresis dwell; the mode switches on the tick
// that produces them.
var immediateReasons = map[string]bool{
	ReasonBotUnhealthy:     true,
	ReasonDailyLossLimit:   true,
	ReasonDrawdownLimit:    true,
	ReasonRiskEngineHalted: true,
}

// Signals is the per-tick engine input, derived from process status, risk
// snapshot and the bot status file.
type Signals struct {
	BotRunning     bool     `json:"bot_running"`
	RestartRate    *float64 `json:"restart_rate,omitempty"` // per hour
	PnlDay         float64  `json:"pnl_day"`
	DrawdownDay    float64  `json:"drawdown_day"`
	LossStreak     int      `json:"loss_streak"`
	ErrorRate      float64  `json:"error_rate"`
	SpreadBps      float64  `json:"spread_bps"`
	Volatility     float64  `json:"volatility"`
	RiskHalted     bool     `json:"risk_halted"`
	RiskHaltReason string   `json:"risk_halt_reason,omitempty"`
}

// Decision is the tagged outcome of the heuristic layer.
type Decision struct {
	Mode           string  `json:"mode"`
	ReasonCode     string  `json:"reason_code"`
	Evidence       string  `json:"evidence"`
	SizeMultiplier float64 `json:"size_multiplier"`
	AllowTrading   bool    `json:"allow_trading"`
}

// Immediate reports whether the decision's reason bypasses hysteresis.
func (d Decision) Immediate() bool {
	return immediateReasons[d.ReasonCode]
}

// ApplyHeuristics evaluates the threshold rules in strict order; the first
// match wins.
func ApplyHeuristics(sig Signals, thr config.HeuristicsConfig) Decision {
	riskOff := func(code, evidence string) Decision {
		return Decision{Mode: ModeRiskOff, ReasonCode: code, Evidence: evidence}
	}
	conservative := func(code, evidence string) Decision {
		return Decision{
			Mode:           ModeConservative,
			ReasonCode:     code,
			Evidence:       evidence,
			SizeMultiplier: thr.ConservativeSizeMultiplier,
			AllowTrading:   true,
		}
	}

	if !sig.BotRunning {
		return riskOff(ReasonBotUnhealthy, "bot process not running")
	}
	if sig.RiskHalted {
		return riskOff(ReasonRiskEngineHalted, sig.RiskHaltReason)
	}
	if sig.RestartRate != nil && thr.RestartRate > 0 && *sig.RestartRate >= thr.RestartRate {
		return riskOff(ReasonBotRestartLoop,
			fmt.Sprintf("restart rate %.2f/h >= %.2f/h", *sig.RestartRate, thr.RestartRate))
	}
	if thr.MaxDailyLoss > 0 && sig.PnlDay <= -thr.MaxDailyLoss {
		return riskOff(ReasonDailyLossLimit,
			fmt.Sprintf("pnl_day %.2f <= -%.2f", sig.PnlDay, thr.MaxDailyLoss))
	}
	if thr.MaxDrawdownAbs > 0 && sig.DrawdownDay >= thr.MaxDrawdownAbs {
		return riskOff(ReasonDrawdownLimit,
			fmt.Sprintf("drawdown_day %.2f >= %.2f", sig.DrawdownDay, thr.MaxDrawdownAbs))
	}
	if thr.LossStreak > 0 && sig.LossStreak >= thr.LossStreak {
		evidence := fmt.Sprintf("loss streak %d >= %d", sig.LossStreak, thr.LossStreak)
		if thr.LossStreakMode == "risk_off" {
			return riskOff(ReasonLossStreak, evidence)
		}
		return conservative(ReasonLossStreak, evidence)
	}
	if thr.SpreadMaxBps > 0 && sig.SpreadBps >= thr.SpreadMaxBps {
		return riskOff(ReasonSpreadTooWide,
			fmt.Sprintf("spread %.2f bps >= %.2f bps", sig.SpreadBps, thr.SpreadMaxBps))
	}
	if thr.VolatilityHi > 0 && sig.Volatility >= thr.VolatilityHi {
		return conservative(ReasonHighVol,
			fmt.Sprintf("volatility %.4f >= %.4f", sig.Volatility, thr.VolatilityHi))
	}

	return Decision{
		Mode:           ModeNormal,
		ReasonCode:     ReasonOK,
		Evidence:       "all signals nominal",
		SizeMultiplier: 1.0,
		AllowTrading:   true,
	}
}
