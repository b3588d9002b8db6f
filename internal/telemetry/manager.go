package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/logging"
)

// ErrEventTooLarge is returned when an ingested payload exceeds the
// configured bound; the API maps it to 413.
var ErrEventTooLarge = fmt.Errorf("event too large")

// Manager is the ingestion front of the telemetry pipeline:
// normalize -> persist -> ring -> aggregate -> alerts.
type Manager struct {
	cfg        config.TelemetryConfig
	ring       *Ring
	aggregator *Aggregator
	alerts     *AlertManager
	log        *logging.Logger
	now        func() time.Time

	persistMu sync.Mutex
}

// NewManager wires the pipeline.
func NewManager(cfg config.TelemetryConfig, alertsCfg config.AlertsConfig, log *logging.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		ring:       NewRing(cfg.MaxEventsInMemory),
		aggregator: NewAggregator(),
		alerts:     NewAlertManager(alertsCfg),
		log:        log.WithComponent("telemetry"),
		now:        time.Now,
	}
}

// MaxEventBytes is the ingestion size bound.
func (m *Manager) MaxEventBytes() int {
	return m.cfg.MaxEventSizeKB * 1024
}

// IngestRaw parses, bounds-checks and ingests one encoded event.
func (m *Manager) IngestRaw(raw []byte) error {
	if len(raw) > m.MaxEventBytes() {
		return ErrEventTooLarge
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}
	m.Ingest(ev)
	return nil
}

// Ingest normalizes and processes one event.
func (m *Manager) Ingest(ev Event) {
	ev = Normalize(ev, m.now())

	if m.cfg.PersistPath != "" {
		m.persist(ev)
	}

	m.ring.Add(ev)
	m.aggregator.Observe(ev)
	m.alerts.Evaluate(m.aggregator.Summary())
}

// persist appends the normalized event as a JSON line, best-effort.
func (m *Manager) persist(ev Event) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.cfg.PersistPath), 0755); err != nil {
		m.log.Warn("telemetry persist dir failed", "error", err)
		return
	}
	f, err := os.OpenFile(m.cfg.PersistPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		m.log.Warn("telemetry persist open failed", "error", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		m.log.Warn("telemetry persist write failed", "error", err)
	}
}

// UpdateProcessState feeds the process status into the aggregator and
// re-evaluates alerts.
func (m *Manager) UpdateProcessState(status map[string]interface{}) {
	m.aggregator.UpdateProcessState(status)
	m.alerts.Evaluate(m.aggregator.Summary())
}

// RecordPolicy folds a freshly published policy into the aggregates.
func (m *Manager) RecordPolicy(mode string, allowTrading bool, reason string) {
	m.Ingest(Event{
		Type:   TypePolicy,
		Source: "supervisor",
		Data: map[string]interface{}{
			"mode":          mode,
			"allow_trading": allowTrading,
			"reason":        reason,
		},
	})
}

// Summary returns the current aggregate snapshot.
func (m *Manager) Summary() Summary {
	return m.aggregator.Summary()
}

// Recent returns up to limit recent events.
func (m *Manager) Recent(limit int) []Event {
	return m.ring.Recent(limit)
}

// Alerts exposes the alert manager for API reads.
func (m *Manager) Alerts() *AlertManager {
	return m.alerts
}
