package telemetry

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"quantumedge-supervisor/config"
)

// Alert keys.
const (
	AlertBotRestartLoop       = "BOT_RESTART_LOOP"
	AlertErrorSpike           = "ERROR_SPIKE"
	AlertLatencySpike         = "LATENCY_SPIKE"
	AlertDrawdownLimit        = "DRAWDOWN_LIMIT"
	AlertPolicySafeModeActive = "POLICY_SAFE_MODE_ACTIVE"
)

// Severities.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

var safeModeReasonRe = regexp.MustCompile(`POLICY_(MISSING|EXPIRED|NOT_READY|MISSING_OR_EXPIRED)`)

// Alert is a threshold condition with lifecycle state.
type Alert struct {
	Key       string                 `json:"key"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	FirstSeen float64                `json:"first_seen"`
	LastSeen  float64                `json:"last_seen"`
	Active    bool                   `json:"active"`
	Evidence  map[string]interface{} `json:"evidence"`
}

// HistoryEntry is an append-only record of an alert firing.
type HistoryEntry struct {
	Key      string  `json:"key"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Ts       float64 `json:"ts"`
}

// AlertManager evaluates alert conditions on every summary update, with a
// per-key cooldown on history growth.
type AlertManager struct {
	mu        sync.Mutex
	cfg       config.AlertsConfig
	alerts    map[string]*Alert
	history   []HistoryEntry
	lastFired map[string]float64
	now       func() time.Time
}

// NewAlertManager creates an alert manager with the given thresholds.
func NewAlertManager(cfg config.AlertsConfig) *AlertManager {
	return &AlertManager{
		cfg:       cfg,
		alerts:    make(map[string]*Alert),
		lastFired: make(map[string]float64),
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (m *AlertManager) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Evaluate checks every condition against the summary, upserting active
// alerts and clearing ones whose condition no longer holds.
func (m *AlertManager) Evaluate(s Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := float64(m.now().Unix())

	m.upsert(AlertBotRestartLoop, SeverityHigh,
		m.cfg.RestartRatePerHour > 0 && s.RestartRatePerHour >= m.cfg.RestartRatePerHour,
		fmt.Sprintf("restart rate %.2f/h >= %.2f/h", s.RestartRatePerHour, m.cfg.RestartRatePerHour),
		map[string]interface{}{"restart_rate_per_hour": s.RestartRatePerHour},
		now)

	m.upsert(AlertErrorSpike, SeverityHigh,
		m.cfg.ErrorRate1m > 0 && float64(s.ErrorRate1m) >= m.cfg.ErrorRate1m,
		fmt.Sprintf("error rate %d/min >= %.0f/min", s.ErrorRate1m, m.cfg.ErrorRate1m),
		map[string]interface{}{"error_rate_1m": s.ErrorRate1m},
		now)

	m.upsert(AlertLatencySpike, SeverityMedium,
		m.cfg.LatencyP95Ms > 0 && s.LatencyMsP95 >= m.cfg.LatencyP95Ms,
		fmt.Sprintf("latency p95 %.0fms >= %.0fms", s.LatencyMsP95, m.cfg.LatencyP95Ms),
		map[string]interface{}{"latency_ms_p95": s.LatencyMsP95},
		now)

	drawdownFiring := (m.cfg.DrawdownDay > 0 && s.DrawdownDay >= m.cfg.DrawdownDay) ||
		(m.cfg.MaxDailyLoss > 0 && s.PnlDay <= -m.cfg.MaxDailyLoss)
	m.upsert(AlertDrawdownLimit, SeverityHigh, drawdownFiring,
		fmt.Sprintf("drawdown %.2f, pnl_day %.2f", s.DrawdownDay, s.PnlDay),
		map[string]interface{}{"drawdown_day": s.DrawdownDay, "pnl_day": s.PnlDay},
		now)

	m.upsert(AlertPolicySafeModeActive, SeverityMedium,
		!s.PolicyAllowTrading && safeModeReasonRe.MatchString(s.PolicyReason),
		fmt.Sprintf("policy safe mode: %s", s.PolicyReason),
		map[string]interface{}{"policy_reason": s.PolicyReason},
		now)
}

// upsert applies the firing/clearing lifecycle for one key. Caller holds
// the lock.
func (m *AlertManager) upsert(key, severity string, firing bool, message string, evidence map[string]interface{}, now float64) {
	existing := m.alerts[key]

	if !firing {
		if existing != nil && existing.Active {
			existing.Active = false
			existing.LastSeen = now
		}
		return
	}

	if existing == nil {
		existing = &Alert{Key: key, FirstSeen: now}
		m.alerts[key] = existing
	}
	if !existing.Active && existing.LastSeen != 0 {
		// Re-firing after a clear starts a new activation.
		existing.FirstSeen = now
	}
	existing.Active = true
	existing.Severity = severity
	existing.Message = message
	existing.Evidence = evidence
	existing.LastSeen = now

	if last, ok := m.lastFired[key]; !ok || now-last >= float64(m.cfg.CooldownSec) {
		m.history = append(m.history, HistoryEntry{
			Key: key, Severity: severity, Message: message, Ts: now,
		})
		m.lastFired[key] = now
	}
}

// Active returns all currently active alerts.
func (m *AlertManager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Alert
	for _, a := range m.alerts {
		if a.Active {
			out = append(out, *a)
		}
	}
	return out
}

// All returns every known alert, active or cleared.
func (m *AlertManager) All() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// History returns the append-only firing log.
func (m *AlertManager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}
