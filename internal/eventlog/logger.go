// Package eventlog appends structured audit events to daily JSONL files.
// Writes are best-effort: I/O errors are logged, never surfaced to callers.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quantumedge-supervisor/internal/logging"
)

// MaxRecordBytes bounds a single encoded event record. Oversized records are
// replaced by a truncation marker so the log line stream stays parseable.
const MaxRecordBytes = 32 * 1024

// Logger appends events to logs/events/events_<date>.jsonl and mirrors
// SUPERVISOR_SNAPSHOT events to logs/snapshots/snapshots_<date>.jsonl.
// File handles are re-opened per write; only one supervisor writes its own
// files so no cross-process locking is needed.
type Logger struct {
	eventsDir    string
	snapshotsDir string
	bus          *Bus
	log          *logging.Logger
}

// NewLogger creates an event logger rooted at logsDir.
func NewLogger(logsDir string, bus *Bus, log *logging.Logger) *Logger {
	return &Logger{
		eventsDir:    filepath.Join(logsDir, "events"),
		snapshotsDir: filepath.Join(logsDir, "snapshots"),
		bus:          bus,
		log:          log.WithComponent("eventlog"),
	}
}

// Append writes the event to today's file and publishes it on the bus.
func (l *Logger) Append(ev Event) {
	if ev.Ts == 0 {
		ev.Ts = float64(time.Now().UnixNano()) / 1e9
	}

	data, err := json.Marshal(ev)
	if err != nil {
		l.log.Warn("event marshal failed", "type", string(ev.Type), "error", err)
		return
	}
	if len(data) > MaxRecordBytes {
		truncated := Event{
			Ts:            ev.Ts,
			Type:          ev.Type,
			Source:        ev.Source,
			CorrelationID: ev.CorrelationID,
			Data: map[string]interface{}{
				"truncated":      true,
				"original_bytes": len(data),
			},
		}
		data, _ = json.Marshal(truncated)
		ev = truncated
	}

	day := time.Unix(int64(ev.Ts), 0).UTC().Format("2006-01-02")
	l.appendLine(l.eventsDir, fmt.Sprintf("events_%s.jsonl", day), data)

	if ev.Type == EventSupervisorSnapshot {
		l.appendLine(l.snapshotsDir, fmt.Sprintf("snapshots_%s.jsonl", day), data)
	}

	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

// Emit builds and appends an event in one call.
func (l *Logger) Emit(typ EventType, source string, data map[string]interface{}) {
	l.Append(NewEvent(typ, source, data))
}

func (l *Logger) appendLine(dir, name string, data []byte) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		l.log.Warn("event dir create failed", "dir", dir, "error", err)
		return
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.log.Warn("event file open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.log.Warn("event write failed", "path", path, "error", err)
	}
}

// ReadDay returns all events recorded on the given date (YYYY-MM-DD).
// Unparseable lines are skipped.
func (l *Logger) ReadDay(date string) ([]Event, error) {
	path := filepath.Join(l.eventsDir, fmt.Sprintf("events_%s.jsonl", date))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxRecordBytes*2)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("scan %s: %w", path, err)
	}
	return events, nil
}
