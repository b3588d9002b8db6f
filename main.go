package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/clock"
	"quantumedge-supervisor/internal/eventlog"
	"quantumedge-supervisor/internal/llm"
	"quantumedge-supervisor/internal/logging"
	"quantumedge-supervisor/internal/orchestrator"
	"quantumedge-supervisor/internal/supervisor"

	"github.com/joho/godotenv"
)

const usage = `QuantumEdge Supervisor

Usage: supervisor <command> [flags]

Commands:
  start                     Start the supervisor as a background process
  stop                      Stop the background supervisor
  restart                   Restart the background supervisor
  status                    Show supervisor and bot status
  run-foreground            Run the supervisor in the foreground
  risk-status               Show the current risk engine state
  audit [--date YYYY-MM-DD] Print the event log for a day
  llm-check                 Verify LLM connectivity
  snapshot                  Print the latest supervisor snapshot
  diag [--json]             Host and process diagnostics
  telemetry <summary|alerts|events> [--limit N]
  init-config [path]        Write a starting-point config file
`

func main() {
	// Best-effort; environment wins over .env.
	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	// init-config must work even when no valid config exists yet.
	if command == "init-config" {
		path := "config.json"
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.GenerateSampleConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", path)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	var cmdErr error
	switch command {
	case "start":
		cmdErr = withOrchestrator(cfg, func(o *orchestrator.Orchestrator) error { return o.Start() })
	case "stop":
		cmdErr = withOrchestrator(cfg, func(o *orchestrator.Orchestrator) error { return o.Stop() })
	case "restart":
		cmdErr = withOrchestrator(cfg, func(o *orchestrator.Orchestrator) error { return o.Restart() })
	case "run-foreground":
		cmdErr = runForeground(cfg)
	case "status":
		cmdErr = cmdStatus(cfg)
	case "risk-status":
		cmdErr = cmdRiskStatus(cfg)
	case "audit":
		cmdErr = cmdAudit(cfg, args)
	case "llm-check":
		cmdErr = cmdLLMCheck(cfg)
	case "snapshot":
		cmdErr = cmdSnapshot(cfg)
	case "diag":
		cmdErr = cmdDiag(cfg, args)
	case "telemetry":
		cmdErr = cmdTelemetry(cfg, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, component string) *logging.Logger {
	return logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		Component:   component,
	})
}

func withOrchestrator(cfg *config.Config, fn func(*orchestrator.Orchestrator) error) error {
	log := newLogger(cfg, "orchestrator")
	o, err := orchestrator.New(cfg, orchestrator.Options{}, log)
	if err != nil {
		return err
	}
	return fn(o)
}

// runForeground runs the supervisor until SIGINT/SIGTERM.
func runForeground(cfg *config.Config) error {
	log := newLogger(cfg, "supervisor")
	logging.SetDefault(log)

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize supervisor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return sup.Run(ctx)
}

// apiGet fetches a supervisor API path, authenticating when a token is
// configured.
func apiGet(cfg *config.Config, path string) ([]byte, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(http.MethodGet, cfg.SupervisorURL()+path, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Server.APIToken != "" {
		req.Header.Set("X-API-TOKEN", cfg.Server.APIToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supervisor unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supervisor returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func printJSON(raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func cmdStatus(cfg *config.Config) error {
	body, err := apiGet(cfg, "/api/v1/status")
	if err != nil {
		return err
	}
	return printJSON(body)
}

func cmdRiskStatus(cfg *config.Config) error {
	if body, err := apiGet(cfg, "/api/v1/status"); err == nil {
		var status struct {
			Risk json.RawMessage `json:"risk"`
		}
		if err := json.Unmarshal(body, &status); err == nil && len(status.Risk) > 0 {
			return printJSON(status.Risk)
		}
	}

	// Supervisor down: fall back to the persisted state.
	statePath := filepath.Join(cfg.Paths.RuntimeDir, "supervisor", "risk_state.json")
	raw, err := os.ReadFile(statePath)
	if err != nil {
		return fmt.Errorf("supervisor unreachable and no persisted risk state: %w", err)
	}
	fmt.Fprintln(os.Stderr, "supervisor unreachable, showing persisted state")
	return printJSON(raw)
}

func cmdAudit(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	date := fs.String("date", "", "trading day YYYY-MM-DD (default today)")
	fs.Parse(args)

	day := *date
	if day == "" {
		day = clock.TradingDay(time.Now())
	}

	log := newLogger(cfg, "audit")
	events := eventlog.NewLogger(cfg.Paths.LogsDir, nil, log)
	entries, err := events.ReadDay(day)
	if err != nil {
		return err
	}
	if entries == nil {
		fmt.Printf("no events for %s\n", day)
		return nil
	}

	for _, ev := range entries {
		line, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Println(string(line))
	}
	fmt.Fprintf(os.Stderr, "%d events on %s\n", len(entries), day)
	return nil
}

func cmdLLMCheck(cfg *config.Config) error {
	client := llm.NewClient(cfg.LLM)
	if !client.IsConfigured() {
		return fmt.Errorf("llm not configured: enable it and set an API key")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout()+5*time.Second)
	defer cancel()

	start := time.Now()
	reply, err := client.Complete(ctx, "You are a connectivity probe.", `Reply with the single word "ok".`)
	if err != nil {
		return fmt.Errorf("llm check failed: %w", err)
	}

	fmt.Printf("ok model=%s latency=%s reply=%q\n", cfg.LLM.Model, time.Since(start).Round(time.Millisecond), reply)
	return nil
}

func cmdSnapshot(cfg *config.Config) error {
	if body, err := apiGet(cfg, "/api/v1/supervisor/snapshot"); err == nil {
		return printJSON(body)
	}

	snapPath := filepath.Join(cfg.Paths.RuntimeDir, "supervisor", "last_snapshot.json")
	raw, err := os.ReadFile(snapPath)
	if err != nil {
		return fmt.Errorf("no snapshot available: %w", err)
	}
	return printJSON(raw)
}

func cmdDiag(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("diag", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	fs.Parse(args)

	log := newLogger(cfg, "diag")
	o, err := orchestrator.New(cfg, orchestrator.Options{}, log)
	if err != nil {
		return err
	}
	diag := o.Diag()

	if *asJSON {
		pretty, err := json.MarshalIndent(diag, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(pretty))
		return nil
	}

	fmt.Printf("root: %v\n", diag["root"])
	if host, ok := diag["host"].(map[string]interface{}); ok {
		fmt.Printf("host: %v %v (%v)\n", host["platform"], host["kernel"], host["hostname"])
	}
	if cpu, ok := diag["cpu_percent"]; ok {
		fmt.Printf("cpu: %.1f%% of %v cores\n", cpu, diag["cpu_count"])
	}
	if m, ok := diag["memory"].(map[string]interface{}); ok {
		fmt.Printf("memory: %v/%v MB (%.1f%%)\n", m["used_mb"], m["total_mb"], m["used_percent"])
	}
	if d, ok := diag["disk"].(map[string]interface{}); ok {
		fmt.Printf("disk: %.1f GB free (%.1f%% used)\n", d["free_gb"], d["used_percent"])
	}
	for _, st := range o.Status() {
		fmt.Printf("process %s: running=%v pid=%d api_up=%v\n", st.Name, st.Running, st.Pid, st.APIUp)
	}
	return nil
}

func cmdTelemetry(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: telemetry <summary|alerts|events> [--limit N]")
	}
	sub := args[0]

	switch sub {
	case "summary":
		body, err := apiGet(cfg, "/api/v1/telemetry/summary")
		if err != nil {
			return err
		}
		return printJSON(body)
	case "alerts":
		body, err := apiGet(cfg, "/api/v1/telemetry/alerts")
		if err != nil {
			return err
		}
		return printJSON(body)
	case "events":
		fs := flag.NewFlagSet("telemetry events", flag.ExitOnError)
		limit := fs.Int("limit", 100, "max events")
		fs.Parse(args[1:])

		body, err := apiGet(cfg, fmt.Sprintf("/api/v1/telemetry/events?limit=%d", *limit))
		if err != nil {
			return err
		}
		return printJSON(body)
	default:
		return fmt.Errorf("unknown telemetry subcommand %q", sub)
	}
}
