// Package tsdb ships supervisor events to a timeseries store through a
// background batched writer with retry and backoff.
package tsdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/eventlog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend persists one batch of events. Implementations must be safe for
// use from the single writer goroutine.
type Backend interface {
	WriteBatch(ctx context.Context, events []eventlog.Event) error
	Name() string
	Close()
}

// NewBackend builds the configured backend.
func NewBackend(cfg config.TSDBConfig) (Backend, error) {
	switch cfg.Backend {
	case "noop", "":
		return noopBackend{}, nil
	case "ilp-http":
		return newILPBackend(cfg), nil
	case "columnar-http":
		return newColumnarBackend(cfg), nil
	case "postgres":
		return newPostgresBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown tsdb backend %q", cfg.Backend)
	}
}

// noopBackend discards batches; used when TSDB shipping is disabled but the
// writer plumbing stays in place.
type noopBackend struct{}

func (noopBackend) WriteBatch(ctx context.Context, events []eventlog.Event) error { return nil }
func (noopBackend) Name() string                                                  { return "noop" }
func (noopBackend) Close()                                                        {}

// ilpBackend posts batches in influx line protocol over HTTP.
type ilpBackend struct {
	url    string
	table  string
	client *http.Client
}

func newILPBackend(cfg config.TSDBConfig) *ilpBackend {
	return &ilpBackend{
		url:    cfg.URL,
		table:  cfg.Table,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *ilpBackend) Name() string { return "ilp-http" }
func (b *ilpBackend) Close()       {}

func (b *ilpBackend) WriteBatch(ctx context.Context, events []eventlog.Event) error {
	var sb strings.Builder
	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			continue
		}
		// measurement,tag=... field=... timestamp(ns)
		fmt.Fprintf(&sb, "%s,type=%s,source=%s data=%q %d\n",
			b.table, string(ev.Type), ev.Source, string(data), int64(ev.Ts*1e9))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, strings.NewReader(sb.String()))
	if err != nil {
		return fmt.Errorf("build ilp request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ilp batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ilp endpoint status %d", resp.StatusCode)
	}
	return nil
}

// columnarBackend posts batches as a JSON column document.
type columnarBackend struct {
	url    string
	table  string
	client *http.Client
}

func newColumnarBackend(cfg config.TSDBConfig) *columnarBackend {
	return &columnarBackend{
		url:    cfg.URL,
		table:  cfg.Table,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *columnarBackend) Name() string { return "columnar-http" }
func (b *columnarBackend) Close()       {}

func (b *columnarBackend) WriteBatch(ctx context.Context, events []eventlog.Event) error {
	cols := struct {
		Table   string    `json:"table"`
		Ts      []float64 `json:"ts"`
		Types   []string  `json:"type"`
		Sources []string  `json:"source"`
		Data    []string  `json:"data"`
	}{Table: b.table}

	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			continue
		}
		cols.Ts = append(cols.Ts, ev.Ts)
		cols.Types = append(cols.Types, string(ev.Type))
		cols.Sources = append(cols.Sources, ev.Source)
		cols.Data = append(cols.Data, string(data))
	}

	body, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("marshal columnar batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build columnar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("post columnar batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("columnar endpoint status %d", resp.StatusCode)
	}
	return nil
}

// postgresBackend inserts batches into a plain table via pgx.
type postgresBackend struct {
	pool  *pgxpool.Pool
	table string
}

func newPostgresBackend(cfg config.TSDBConfig) (*postgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 4

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	b := &postgresBackend{pool: pool, table: cfg.Table}
	if err := b.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *postgresBackend) ensureSchema(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			ts DOUBLE PRECISION NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			correlation_id TEXT,
			data JSONB NOT NULL
		)`, b.table))
	if err != nil {
		return fmt.Errorf("ensure tsdb table: %w", err)
	}
	return nil
}

func (b *postgresBackend) Name() string { return "postgres" }

func (b *postgresBackend) Close() {
	b.pool.Close()
}

func (b *postgresBackend) WriteBatch(ctx context.Context, events []eventlog.Event) error {
	batch := make([][]interface{}, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			continue
		}
		batch = append(batch, []interface{}{ev.Ts, string(ev.Type), ev.Source, ev.CorrelationID, string(data)})
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tsdb tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sql := fmt.Sprintf(
		"INSERT INTO %s (ts, type, source, correlation_id, data) VALUES ($1, $2, $3, $4, $5)", b.table)
	for _, row := range batch {
		if _, err := tx.Exec(ctx, sql, row...); err != nil {
			return fmt.Errorf("insert tsdb row: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tsdb tx: %w", err)
	}
	return nil
}
