package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the full supervisor configuration. It is loaded once at startup
// from a JSON file and then overridden from the environment; components
// receive the sections they need as explicit dependencies.
type Config struct {
	Paths      PathsConfig      `json:"paths"`
	Server     ServerConfig     `json:"server"`
	Process    ProcessConfig    `json:"process"`
	Risk       RiskConfig       `json:"risk"`
	Heuristics HeuristicsConfig `json:"heuristics"`
	Hysteresis HysteresisConfig `json:"hysteresis"`
	Policy     PolicyConfig     `json:"policy"`
	LLM        LLMConfig        `json:"llm"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	Alerts     AlertsConfig     `json:"alerts"`
	TSDB       TSDBConfig       `json:"tsdb"`
	Redis      RedisConfig      `json:"redis"`
	Logging    LoggingConfig    `json:"logging"`
	Supervisor SupervisorConfig `json:"supervisor"`
}

// PathsConfig holds the directory layout shared across processes.
type PathsConfig struct {
	Root         string `json:"root"`          // QE_ROOT
	ConfigDir    string `json:"config_dir"`    // QE_CONFIG_DIR
	RuntimeDir   string `json:"runtime_dir"`   // QE_RUNTIME_DIR
	LogsDir      string `json:"logs_dir"`      // QE_LOGS_DIR
	DataDir      string `json:"data_dir"`      // QE_DATA_DIR
	ArtifactsDir string `json:"artifacts_dir"` // QE_ARTIFACTS_DIR
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	APIToken        string `json:"api_token"`        // empty disables auth
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
	ProductionMode  bool   `json:"production_mode"`
}

// ProcessConfig controls how the bot child process is spawned and supervised.
type ProcessConfig struct {
	BotCommand         []string `json:"bot_command"` // argv of the bot entrypoint
	BotConfigPath      string   `json:"bot_config_path"`
	RestartMaxAttempts int      `json:"restart_max_attempts"`
	RestartBackoffS    float64  `json:"restart_backoff_s"`
	GracefulTimeoutS   float64  `json:"graceful_timeout_s"`
	ProbationMS        int      `json:"probation_ms"` // early-exit detection window
}

// RiskConfig holds hard risk limits enforced by the risk engine.
type RiskConfig struct {
	MaxDailyLossAbs   float64 `json:"max_daily_loss_abs"`
	MaxDailyLossPct   float64 `json:"max_daily_loss_pct"`
	MaxDrawdownAbs    float64 `json:"max_drawdown_abs"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
	MaxNotional       float64 `json:"max_notional"`
	MaxLeverage       float64 `json:"max_leverage"`
	LLMMultiplierMin  float64 `json:"llm_multiplier_min"`
	LLMMultiplierMax  float64 `json:"llm_multiplier_max"`
	HeartbeatStaleSec float64 `json:"heartbeat_stale_sec"`
}

// HeuristicsConfig holds the policy heuristic thresholds.
type HeuristicsConfig struct {
	MaxDailyLoss               float64 `json:"max_daily_loss"`
	MaxDrawdownAbs             float64 `json:"max_drawdown_abs"`
	LossStreak                 int     `json:"loss_streak"`
	LossStreakMode             string  `json:"loss_streak_mode"` // conservative or risk_off
	SpreadMaxBps               float64 `json:"spread_max_bps"`
	VolatilityHi               float64 `json:"volatility_hi"`
	RestartRate                float64 `json:"restart_rate"` // restarts per hour
	ConservativeSizeMultiplier float64 `json:"conservative_size_multiplier"`
}

// HysteresisConfig controls mode dwell gating.
type HysteresisConfig struct {
	EnterCycles int `json:"enter_cycles"`
	ExitCycles  int `json:"exit_cycles"`
}

// PolicyConfig controls policy construction and publishing.
type PolicyConfig struct {
	TTLSec        int     `json:"ttl_sec"`
	TTLGraceSec   int     `json:"ttl_grace_sec"`
	CooldownSec   int     `json:"cooldown_sec"`
	EvalIntervalS float64 `json:"eval_interval_s"`
	TargetFile    string  `json:"target_file"`     // defaults to <runtime>/policy.json
	StateFile     string  `json:"state_file"`      // defaults to <runtime>/policy_state.json
	BotStatusFile string  `json:"bot_status_file"` // defaults to <runtime>/bot_status.json
}

// LLMConfig controls the optional LLM moderation and advice helpers.
type LLMConfig struct {
	Enabled          bool    `json:"enabled"`
	BaseURL          string  `json:"base_url"`
	Model            string  `json:"model"`
	APIKey           string  `json:"api_key"` // OPENAI_API_KEY_SUPERVISOR / OPENAI_API_KEY
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TimeoutS         float64 `json:"timeout_s"`
	CheckIntervalS   float64 `json:"check_interval_s"`
	CacheTTLSec      int     `json:"cache_ttl_sec"`
	RateLimit        int     `json:"rate_limit"` // calls per window
	RateWindowSec    int     `json:"rate_window_sec"`
	BreakerThreshold int     `json:"breaker_threshold"` // failures before open
	BreakerWindowSec int     `json:"breaker_window_sec"`
	BreakerOpenSec   int     `json:"breaker_open_sec"`
}

// TelemetryConfig bounds the telemetry pipeline.
type TelemetryConfig struct {
	MaxEventSizeKB    int    `json:"max_event_size_kb"`
	MaxEventsInMemory int    `json:"max_events_in_memory"`
	PersistPath       string `json:"persist_path"` // empty disables persistence
}

// AlertsConfig holds alert thresholds and cooldowns.
type AlertsConfig struct {
	RestartRatePerHour float64 `json:"restart_rate_per_hour"`
	ErrorRate1m        float64 `json:"error_rate_1m"`
	LatencyP95Ms       float64 `json:"latency_p95_ms"`
	DrawdownDay        float64 `json:"drawdown_day"`
	MaxDailyLoss       float64 `json:"max_daily_loss"`
	CooldownSec        int     `json:"cooldown_sec"`
}

// TSDBConfig configures the optional timeseries writer.
type TSDBConfig struct {
	Enabled       bool   `json:"enabled"`
	Backend       string `json:"backend"` // noop, ilp-http, columnar-http, postgres
	URL           string `json:"url"`
	Table         string `json:"table"`
	PostgresDSN   string `json:"postgres_dsn"`
	BatchSize     int    `json:"batch_size"`
	FlushMS       int    `json:"flush_ms"`
	MaxRetries    int    `json:"max_retries"`
	BaseBackoffMS int    `json:"base_backoff_ms"`
	MaxBackoffMS  int    `json:"max_backoff_ms"`
}

// RedisConfig holds the optional Redis tier for the LLM response cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level       string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"` // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
	MaxSizeMB   int    `json:"max_size_mb"` // file rotation threshold, 0 disables
}

// SupervisorConfig controls the main loop cadence and ownership.
type SupervisorConfig struct {
	SpawnBot          bool    `json:"spawn_bot"` // supervisor owns the bot lifecycle
	LoopIntervalS     float64 `json:"loop_interval_s"`
	SnapshotIntervalS float64 `json:"snapshot_interval_s"`
	SnapshotWindowMin int     `json:"snapshot_window_min"`
	Mode              string  `json:"mode"` // QUANTUMEDGE_SUPERVISOR_MODE
}

// Load reads the config file (SUPERVISOR_CONFIG or config.json), applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	path := getEnvOrDefault("SUPERVISOR_CONFIG", "config.json")

	cfg, err := loadFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		cfg = newBaseConfig()
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newBaseConfig carries the defaults that are meaningful when explicitly
// set to a zero value in the file. Unmarshalling over it keeps an omitted
// spawn_bot at true while an explicit false survives.
func newBaseConfig() *Config {
	return &Config{
		Supervisor: SupervisorConfig{SpawnBot: true},
	}
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := newBaseConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills zero values. Defaults are applied only during load.
func applyDefaults(cfg *Config) {
	if cfg.Paths.Root == "" {
		cfg.Paths.Root = "."
	}
	if cfg.Paths.RuntimeDir == "" {
		cfg.Paths.RuntimeDir = filepath.Join(cfg.Paths.Root, "runtime")
	}
	if cfg.Paths.LogsDir == "" {
		cfg.Paths.LogsDir = filepath.Join(cfg.Paths.Root, "logs")
	}
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = filepath.Join(cfg.Paths.Root, "data")
	}
	if cfg.Paths.ConfigDir == "" {
		cfg.Paths.ConfigDir = filepath.Join(cfg.Paths.Root, "config")
	}
	if cfg.Paths.ArtifactsDir == "" {
		cfg.Paths.ArtifactsDir = filepath.Join(cfg.Paths.Root, "artifacts")
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10
	}

	if cfg.Process.RestartMaxAttempts == 0 {
		cfg.Process.RestartMaxAttempts = 3
	}
	if cfg.Process.RestartBackoffS == 0 {
		cfg.Process.RestartBackoffS = 1.0
	}
	if cfg.Process.GracefulTimeoutS == 0 {
		cfg.Process.GracefulTimeoutS = 10.0
	}
	if cfg.Process.ProbationMS == 0 {
		cfg.Process.ProbationMS = 500
	}

	if cfg.Risk.MaxDailyLossAbs == 0 {
		cfg.Risk.MaxDailyLossAbs = 300.0
	}
	if cfg.Risk.MaxDailyLossPct == 0 {
		cfg.Risk.MaxDailyLossPct = 3.0
	}
	if cfg.Risk.MaxDrawdownAbs == 0 {
		cfg.Risk.MaxDrawdownAbs = 400.0
	}
	if cfg.Risk.MaxDrawdownPct == 0 {
		cfg.Risk.MaxDrawdownPct = 4.0
	}
	if cfg.Risk.MaxNotional == 0 {
		cfg.Risk.MaxNotional = 5000.0
	}
	if cfg.Risk.MaxLeverage == 0 {
		cfg.Risk.MaxLeverage = 5.0
	}
	if cfg.Risk.LLMMultiplierMin == 0 {
		cfg.Risk.LLMMultiplierMin = 0.1
	}
	if cfg.Risk.LLMMultiplierMax == 0 {
		cfg.Risk.LLMMultiplierMax = 1.0
	}
	if cfg.Risk.HeartbeatStaleSec == 0 {
		cfg.Risk.HeartbeatStaleSec = 30.0
	}

	if cfg.Heuristics.MaxDailyLoss == 0 {
		cfg.Heuristics.MaxDailyLoss = 300.0
	}
	if cfg.Heuristics.MaxDrawdownAbs == 0 {
		cfg.Heuristics.MaxDrawdownAbs = 400.0
	}
	if cfg.Heuristics.LossStreak == 0 {
		cfg.Heuristics.LossStreak = 5
	}
	if cfg.Heuristics.LossStreakMode == "" {
		cfg.Heuristics.LossStreakMode = "conservative"
	}
	if cfg.Heuristics.SpreadMaxBps == 0 {
		cfg.Heuristics.SpreadMaxBps = 25.0
	}
	if cfg.Heuristics.VolatilityHi == 0 {
		cfg.Heuristics.VolatilityHi = 0.04
	}
	if cfg.Heuristics.RestartRate == 0 {
		cfg.Heuristics.RestartRate = 4.0
	}
	if cfg.Heuristics.ConservativeSizeMultiplier == 0 {
		cfg.Heuristics.ConservativeSizeMultiplier = 0.5
	}

	if cfg.Hysteresis.EnterCycles == 0 {
		cfg.Hysteresis.EnterCycles = 2
	}
	if cfg.Hysteresis.ExitCycles == 0 {
		cfg.Hysteresis.ExitCycles = 3
	}

	if cfg.Policy.TTLSec == 0 {
		cfg.Policy.TTLSec = 30
	}
	if cfg.Policy.TTLGraceSec == 0 {
		cfg.Policy.TTLGraceSec = 5
	}
	if cfg.Policy.EvalIntervalS == 0 {
		cfg.Policy.EvalIntervalS = 10.0
	}
	if cfg.Policy.TargetFile == "" {
		cfg.Policy.TargetFile = filepath.Join(cfg.Paths.RuntimeDir, "policy.json")
	}
	if cfg.Policy.StateFile == "" {
		cfg.Policy.StateFile = filepath.Join(cfg.Paths.RuntimeDir, "policy_state.json")
	}
	if cfg.Policy.BotStatusFile == "" {
		cfg.Policy.BotStatusFile = filepath.Join(cfg.Paths.RuntimeDir, "bot_status.json")
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	if cfg.LLM.TimeoutS == 0 {
		cfg.LLM.TimeoutS = 20.0
	}
	if cfg.LLM.CheckIntervalS == 0 {
		cfg.LLM.CheckIntervalS = 300.0
	}
	if cfg.LLM.CacheTTLSec == 0 {
		cfg.LLM.CacheTTLSec = 120
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 6
	}
	if cfg.LLM.RateWindowSec == 0 {
		cfg.LLM.RateWindowSec = 60
	}
	if cfg.LLM.BreakerThreshold == 0 {
		cfg.LLM.BreakerThreshold = 3
	}
	if cfg.LLM.BreakerWindowSec == 0 {
		cfg.LLM.BreakerWindowSec = 300
	}
	if cfg.LLM.BreakerOpenSec == 0 {
		cfg.LLM.BreakerOpenSec = 600
	}

	if cfg.Telemetry.MaxEventSizeKB == 0 {
		cfg.Telemetry.MaxEventSizeKB = 32
	}
	if cfg.Telemetry.MaxEventsInMemory == 0 {
		cfg.Telemetry.MaxEventsInMemory = 5000
	}

	if cfg.Alerts.RestartRatePerHour == 0 {
		cfg.Alerts.RestartRatePerHour = 4.0
	}
	if cfg.Alerts.ErrorRate1m == 0 {
		cfg.Alerts.ErrorRate1m = 10.0
	}
	if cfg.Alerts.LatencyP95Ms == 0 {
		cfg.Alerts.LatencyP95Ms = 1500.0
	}
	if cfg.Alerts.DrawdownDay == 0 {
		cfg.Alerts.DrawdownDay = 400.0
	}
	if cfg.Alerts.MaxDailyLoss == 0 {
		cfg.Alerts.MaxDailyLoss = 300.0
	}
	if cfg.Alerts.CooldownSec == 0 {
		cfg.Alerts.CooldownSec = 300
	}

	if cfg.TSDB.Backend == "" {
		cfg.TSDB.Backend = "noop"
	}
	if cfg.TSDB.Table == "" {
		cfg.TSDB.Table = "supervisor_events"
	}
	if cfg.TSDB.BatchSize == 0 {
		cfg.TSDB.BatchSize = 200
	}
	if cfg.TSDB.FlushMS == 0 {
		cfg.TSDB.FlushMS = 2000
	}
	if cfg.TSDB.MaxRetries == 0 {
		cfg.TSDB.MaxRetries = 4
	}
	if cfg.TSDB.BaseBackoffMS == 0 {
		cfg.TSDB.BaseBackoffMS = 250
	}
	if cfg.TSDB.MaxBackoffMS == 0 {
		cfg.TSDB.MaxBackoffMS = 8000
	}

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Supervisor.LoopIntervalS == 0 {
		cfg.Supervisor.LoopIntervalS = 2.0
	}
	if cfg.Supervisor.SnapshotIntervalS == 0 {
		cfg.Supervisor.SnapshotIntervalS = 300.0
	}
	if cfg.Supervisor.SnapshotWindowMin == 0 {
		cfg.Supervisor.SnapshotWindowMin = 15
	}
}

// applyEnvOverrides applies environment variable overrides. These take
// precedence over the config file.
func applyEnvOverrides(cfg *Config) {
	cfg.Paths.Root = getEnvOrDefault("QE_ROOT", cfg.Paths.Root)
	cfg.Paths.ConfigDir = getEnvOrDefault("QE_CONFIG_DIR", cfg.Paths.ConfigDir)
	cfg.Paths.RuntimeDir = getEnvOrDefault("QE_RUNTIME_DIR", cfg.Paths.RuntimeDir)
	cfg.Paths.LogsDir = getEnvOrDefault("QE_LOGS_DIR", cfg.Paths.LogsDir)
	cfg.Paths.DataDir = getEnvOrDefault("QE_DATA_DIR", cfg.Paths.DataDir)
	cfg.Paths.ArtifactsDir = getEnvOrDefault("QE_ARTIFACTS_DIR", cfg.Paths.ArtifactsDir)

	cfg.Server.Host = getEnvOrDefault("SUPERVISOR_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("SUPERVISOR_PORT", cfg.Server.Port)
	cfg.Server.APIToken = getEnvOrDefault("SUPERVISOR_API_TOKEN", cfg.Server.APIToken)

	cfg.Process.BotConfigPath = getEnvOrDefault("QE_CONFIG_PATH", cfg.Process.BotConfigPath)

	// The supervisor-scoped key wins over the shared one.
	if v := os.Getenv("OPENAI_API_KEY_SUPERVISOR"); v != "" {
		cfg.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}

	cfg.Supervisor.Mode = getEnvOrDefault("QUANTUMEDGE_SUPERVISOR_MODE", cfg.Supervisor.Mode)
	if v := os.Getenv("SUPERVISOR_SPAWN_BOT"); v != "" {
		cfg.Supervisor.SpawnBot = v == "true" || v == "1"
	}

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.Redis.Enabled)) == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.TSDB.URL = getEnvOrDefault("TSDB_URL", cfg.TSDB.URL)
	cfg.TSDB.PostgresDSN = getEnvOrDefault("TSDB_POSTGRES_DSN", cfg.TSDB.PostgresDSN)
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Policy.TTLSec < 1 {
		return fmt.Errorf("policy.ttl_sec must be >= 1, got %d", c.Policy.TTLSec)
	}
	if m := c.Heuristics.LossStreakMode; m != "conservative" && m != "risk_off" {
		return fmt.Errorf("heuristics.loss_streak_mode must be conservative or risk_off, got %q", m)
	}
	if c.Risk.LLMMultiplierMin > c.Risk.LLMMultiplierMax {
		return fmt.Errorf("risk.llm_multiplier_min %.2f > max %.2f",
			c.Risk.LLMMultiplierMin, c.Risk.LLMMultiplierMax)
	}
	switch c.TSDB.Backend {
	case "noop", "ilp-http", "columnar-http", "postgres":
	default:
		return fmt.Errorf("tsdb.backend %q not supported", c.TSDB.Backend)
	}
	if c.Hysteresis.EnterCycles < 1 || c.Hysteresis.ExitCycles < 1 {
		return fmt.Errorf("hysteresis cycles must be >= 1")
	}
	return nil
}

// SupervisorURL returns the base URL CLI subcommands use to reach the API.
func (c *Config) SupervisorURL() string {
	if url := os.Getenv("SUPERVISOR_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// GenerateSampleConfig writes a starting-point configuration file.
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Process.BotCommand = []string{"python3", "-m", "quantumedge.bot"}
	cfg.Supervisor.SpawnBot = true
	cfg.LLM.Enabled = false
	cfg.TSDB.Enabled = false

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Durations derived from the numeric config fields.

func (p ProcessConfig) GracefulTimeout() time.Duration {
	return time.Duration(p.GracefulTimeoutS * float64(time.Second))
}

func (p ProcessConfig) RestartBackoff() time.Duration {
	return time.Duration(p.RestartBackoffS * float64(time.Second))
}

func (p ProcessConfig) Probation() time.Duration {
	return time.Duration(p.ProbationMS) * time.Millisecond
}

func (s SupervisorConfig) LoopInterval() time.Duration {
	return time.Duration(s.LoopIntervalS * float64(time.Second))
}

func (s SupervisorConfig) SnapshotInterval() time.Duration {
	return time.Duration(s.SnapshotIntervalS * float64(time.Second))
}

func (p PolicyConfig) EvalInterval() time.Duration {
	return time.Duration(p.EvalIntervalS * float64(time.Second))
}

func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutS * float64(time.Second))
}

func (l LLMConfig) CheckInterval() time.Duration {
	return time.Duration(l.CheckIntervalS * float64(time.Second))
}
