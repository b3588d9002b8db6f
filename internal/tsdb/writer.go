package tsdb

import (
	"context"
	"os"
	"sync"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/eventlog"

	"github.com/rs/zerolog"
)

// Writer batches events and ships them to the backend from a single
// background goroutine. Enqueue never blocks on I/O and never drops;
// batches are only dropped after all retries fail.
type Writer struct {
	cfg     config.TSDBConfig
	backend Backend
	log     zerolog.Logger

	mu      sync.Mutex
	buffer  []eventlog.Event
	written int64
	dropped int64
	lastErr string

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool

	sleep func(time.Duration)
}

// NewWriter builds the writer and its backend. The worker is not started
// until Start is called.
func NewWriter(cfg config.TSDBConfig) (*Writer, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	log := zerolog.New(os.Stderr).With().
		Timestamp().
		Str("component", "tsdb").
		Str("backend", backend.Name()).
		Logger()

	return &Writer{
		cfg:     cfg,
		backend: backend,
		log:     log,
		buffer:  make([]eventlog.Event, 0, cfg.BatchSize),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		sleep:   time.Sleep,
	}, nil
}

// Start launches the background worker and subscribes to the bus so every
// published event is shipped.
func (w *Writer) Start(bus *eventlog.Bus) {
	if bus != nil {
		bus.SubscribeAll(w.Enqueue)
	}
	go w.run()
}

// Enqueue appends the event to the pending batch. Flushing is signalled
// when the batch threshold is reached; the call itself never performs I/O.
func (w *Writer) Enqueue(ev eventlog.Event) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.buffer = append(w.buffer, ev)
	full := len(w.buffer) >= w.cfg.BatchSize
	w.mu.Unlock()

	if full {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
}

func (w *Writer) run() {
	defer close(w.doneCh)

	interval := time.Duration(w.cfg.FlushMS) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush()
		case <-w.flushCh:
			w.flush()
		case <-w.stopCh:
			w.flush()
			w.backend.Close()
			return
		}
	}
}

// flush takes the current batch and writes it with retries. On final
// failure the batch is logged and dropped.
func (w *Writer) flush() {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.buffer
	w.buffer = make([]eventlog.Event, 0, w.cfg.BatchSize)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			w.sleep(w.backoff(attempt - 1))
		}
		if lastErr = w.backend.WriteBatch(ctx, batch); lastErr == nil {
			w.mu.Lock()
			w.written += int64(len(batch))
			w.lastErr = ""
			w.mu.Unlock()
			return
		}
	}

	w.log.Error().
		Err(lastErr).
		Int("events", len(batch)).
		Msg("dropping batch after retries")

	w.mu.Lock()
	w.dropped += int64(len(batch))
	w.lastErr = lastErr.Error()
	w.mu.Unlock()
}

// backoff is base_backoff_ms * 2^attempt capped at max_backoff_ms.
func (w *Writer) backoff(attempt int) time.Duration {
	base := w.cfg.BaseBackoffMS
	if base <= 0 {
		base = 100
	}
	ms := base
	for i := 0; i < attempt; i++ {
		ms *= 2
		if w.cfg.MaxBackoffMS > 0 && ms >= w.cfg.MaxBackoffMS {
			ms = w.cfg.MaxBackoffMS
			break
		}
	}
	if w.cfg.MaxBackoffMS > 0 && ms > w.cfg.MaxBackoffMS {
		ms = w.cfg.MaxBackoffMS
	}
	return time.Duration(ms) * time.Millisecond
}

// Stop drains pending events and joins the worker. Safe to call once.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.doneCh
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

// Status reports backend identity, queue depth and counters for the API.
func (w *Writer) Status() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := map[string]interface{}{
		"backend":       w.backend.Name(),
		"enabled":       w.cfg.Enabled,
		"queue_depth":   len(w.buffer),
		"batch_size":    w.cfg.BatchSize,
		"written_total": w.written,
		"dropped_total": w.dropped,
		"healthy":       w.lastErr == "",
	}
	if w.lastErr != "" {
		status["last_error"] = w.lastErr
	}
	return status
}
