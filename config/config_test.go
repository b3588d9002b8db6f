package config

import (
	"os"
	"path/filepath"
	"testing"
)

func loadFrom(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUPERVISOR_CONFIG", path)
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUPERVISOR_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Policy.TTLSec < 1 {
		t.Errorf("default ttl = %d", cfg.Policy.TTLSec)
	}
	if cfg.Paths.RuntimeDir == "" || cfg.Paths.LogsDir == "" {
		t.Errorf("paths not defaulted: %+v", cfg.Paths)
	}
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := loadFrom(t, `{
		"server": {"port": 9900, "api_token": "tok"},
		"risk": {"max_daily_loss_abs": 75},
		"supervisor": {"mode": "live"}
	}`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9900 || cfg.Server.APIToken != "tok" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Risk.MaxDailyLossAbs != 75 {
		t.Errorf("risk = %+v", cfg.Risk)
	}
	if cfg.Supervisor.Mode != "live" {
		t.Errorf("mode = %q", cfg.Supervisor.Mode)
	}
}

func TestSpawnBotDefaultsTrue(t *testing.T) {
	t.Setenv("SUPERVISOR_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if !cfg.Supervisor.SpawnBot {
		t.Error("spawn_bot should default to true with no config file")
	}

	cfg, err = loadFrom(t, `{"supervisor": {"mode": "paper"}}`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Supervisor.SpawnBot {
		t.Error("spawn_bot should default to true when omitted from the file")
	}
}

func TestSpawnBotExplicitFalseSurvives(t *testing.T) {
	cfg, err := loadFrom(t, `{"supervisor": {"spawn_bot": false}}`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Supervisor.SpawnBot {
		t.Error("explicit spawn_bot=false overridden by the default")
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	if _, err := loadFrom(t, `{broken`); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUPERVISOR_PORT", "9191")
	t.Setenv("QUANTUMEDGE_SUPERVISOR_MODE", "paper")
	t.Setenv("SUPERVISOR_SPAWN_BOT", "false")
	t.Setenv("OPENAI_API_KEY", "fallback-key")
	t.Setenv("OPENAI_API_KEY_SUPERVISOR", "dedicated-key")

	cfg, err := loadFrom(t, `{"supervisor": {"spawn_bot": true}}`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port override = %d", cfg.Server.Port)
	}
	if cfg.Supervisor.Mode != "paper" {
		t.Errorf("mode override = %q", cfg.Supervisor.Mode)
	}
	if cfg.Supervisor.SpawnBot {
		t.Error("SUPERVISOR_SPAWN_BOT=false not applied")
	}
	// The supervisor-specific key wins over the shared one.
	if cfg.LLM.APIKey != "dedicated-key" {
		t.Errorf("llm key = %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad port", `{"server": {"port": 70000}}`},
		{"bad loss streak mode", `{"heuristics": {"loss_streak_mode": "panic"}}`},
		{"bad tsdb backend", `{"tsdb": {"enabled": true, "backend": "mystery"}}`},
		{"inverted multiplier band", `{"risk": {"llm_multiplier_min": 0.9, "llm_multiplier_max": 0.2}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadFrom(t, tc.content); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestSupervisorURL(t *testing.T) {
	cfg, err := loadFrom(t, `{"server": {"host": "127.0.0.1", "port": 8800}}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.SupervisorURL(); got != "http://127.0.0.1:8800" {
		t.Errorf("url = %q", got)
	}

	t.Setenv("SUPERVISOR_URL", "http://edge:9999")
	if got := cfg.SupervisorURL(); got != "http://edge:9999" {
		t.Errorf("env url = %q", got)
	}
}

func TestGenerateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("GenerateSampleConfig: %v", err)
	}

	t.Setenv("SUPERVISOR_CONFIG", path)
	if _, err := Load(); err != nil {
		t.Errorf("generated sample does not load: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := loadFrom(t, `{
		"process": {"graceful_timeout_s": 2.5, "probation_ms": 500},
		"supervisor": {"loop_interval_s": 2}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Process.GracefulTimeout().Seconds(); got != 2.5 {
		t.Errorf("graceful timeout = %v", got)
	}
	if got := cfg.Process.Probation().Milliseconds(); got != 500 {
		t.Errorf("probation = %v", got)
	}
	if got := cfg.Supervisor.LoopInterval().Seconds(); got != 2 {
		t.Errorf("loop interval = %v", got)
	}
}
