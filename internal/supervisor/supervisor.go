// Package supervisor owns the control loop: it wires every subsystem,
// ticks the process manager, evaluates and publishes policy, and keeps
// periodic snapshots.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/api"
	"quantumedge-supervisor/internal/cache"
	"quantumedge-supervisor/internal/circuit"
	"quantumedge-supervisor/internal/clock"
	"quantumedge-supervisor/internal/eventlog"
	"quantumedge-supervisor/internal/fsatomic"
	"quantumedge-supervisor/internal/heartbeat"
	"quantumedge-supervisor/internal/llm"
	"quantumedge-supervisor/internal/logging"
	"quantumedge-supervisor/internal/policy"
	"quantumedge-supervisor/internal/procman"
	"quantumedge-supervisor/internal/risk"
	"quantumedge-supervisor/internal/telemetry"
	"quantumedge-supervisor/internal/tsdb"
)

// Supervisor composes the subsystems and runs the main loop.
type Supervisor struct {
	cfg *config.Config
	log *logging.Logger

	bus        *eventlog.Bus
	events     *eventlog.Logger
	heartbeats *heartbeat.Server
	riskEngine *risk.Engine
	advisor    *risk.Advisor
	bot        *procman.Manager
	policies   *policy.Engine
	publisher  *policy.Publisher
	tele       *telemetry.Manager
	tsdbWriter *tsdb.Writer
	apiServer  *api.Server
	llmCache   *cache.TTLCache

	snapshotPath string
	tradingDay   string

	lastPolicyEval time.Time
	lastLLMCheck   time.Time
	lastSnapshot   time.Time

	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// New wires the full supervisor from config. Nothing is started; call Run.
func New(cfg *config.Config, log *logging.Logger) (*Supervisor, error) {
	bus := eventlog.NewBus()
	events := eventlog.NewLogger(cfg.Paths.LogsDir, bus, log)

	nowT := time.Now()
	day := clock.TradingDay(nowT)

	superDir := filepath.Join(cfg.Paths.RuntimeDir, "supervisor")
	riskEngine := risk.NewEngine(cfg.Risk, risk.NewStore(superDir), day, events, log)

	staleAge := time.Duration(cfg.Risk.HeartbeatStaleSec * float64(time.Second))
	heartbeats := heartbeat.NewServer(staleAge)

	bot := procman.NewManager(cfg.Process, cfg.Paths, cfg.Server, events, log)

	llmClient := llm.NewClient(cfg.LLM)
	llmCache := cache.NewTTLCacheWithRedis(cfg.Redis, log)

	advisorBreaker := circuit.New(circuit.Config{
		FailureThreshold: cfg.LLM.BreakerThreshold,
		WindowSec:        cfg.LLM.BreakerWindowSec,
		OpenSec:          cfg.LLM.BreakerOpenSec,
	})
	advisor := risk.NewAdvisor(cfg.LLM, llmClient, llmCache, advisorBreaker, log)

	moderationBreaker := circuit.New(circuit.Config{
		FailureThreshold: cfg.LLM.BreakerThreshold,
		WindowSec:        cfg.LLM.BreakerWindowSec,
		OpenSec:          cfg.LLM.BreakerOpenSec,
	})
	hysteresis := policy.NewHysteresis(cfg.Hysteresis, cfg.Policy.StateFile, log)
	policies := policy.NewEngine(cfg.Policy, cfg.Heuristics, hysteresis,
		bot, riskEngine, llmClient, moderationBreaker, cfg.LLM.Enabled, log)
	publisher := policy.NewPublisher(cfg.Policy.TargetFile, log)

	tele := telemetry.NewManager(cfg.Telemetry, cfg.Alerts, log)

	var tsdbWriter *tsdb.Writer
	if cfg.TSDB.Enabled {
		w, err := tsdb.NewWriter(cfg.TSDB)
		if err != nil {
			return nil, fmt.Errorf("tsdb writer: %w", err)
		}
		tsdbWriter = w
	}

	s := &Supervisor{
		cfg:          cfg,
		log:          log.WithComponent("supervisor"),
		bus:          bus,
		events:       events,
		heartbeats:   heartbeats,
		riskEngine:   riskEngine,
		advisor:      advisor,
		bot:          bot,
		policies:     policies,
		publisher:    publisher,
		tele:         tele,
		tsdbWriter:   tsdbWriter,
		llmCache:     llmCache,
		snapshotPath: filepath.Join(superDir, "last_snapshot.json"),
		tradingDay:   day,
		now:          time.Now,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	var tsdbStatus api.StatusReporter
	if tsdbWriter != nil {
		tsdbStatus = tsdbWriter
	}
	s.apiServer = api.NewServer(cfg.Server, cfg.Supervisor.Mode, heartbeats,
		riskEngine, bot, policies, tele, tsdbStatus, events, bus, s.loadSnapshot, log)

	return s, nil
}

// Run starts the API, the TSDB writer and the child (when owned), then
// blocks in the loop until Stop or ctx cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.doneCh)

	if err := s.apiServer.Start(); err != nil {
		return err
	}
	if s.tsdbWriter != nil {
		s.tsdbWriter.Start(s.bus)
	}

	if s.cfg.Supervisor.SpawnBot {
		if err := s.bot.Start(s.cfg.Supervisor.Mode); err != nil {
			s.log.Error("initial bot start failed", "error", err)
		}
	}

	s.log.Info("supervisor loop starting",
		"interval_s", s.cfg.Supervisor.LoopIntervalS,
		"mode", s.cfg.Supervisor.Mode)

	interval := s.cfg.Supervisor.LoopInterval()
	for {
		s.tickSafe()

		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-s.stopCh:
			return s.shutdown()
		case <-time.After(interval):
		}
	}
}

// Stop requests a clean shutdown and waits for the loop to finish.
func (s *Supervisor) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

// tickSafe runs one loop iteration; a panic in any step is logged and the
// loop keeps going.
func (s *Supervisor) tickSafe() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("loop tick panicked", "panic", fmt.Sprintf("%v", r))
		}
	}()
	s.Tick()
}

// Tick is one supervisor loop iteration. Exported for tests; production
// callers go through Run.
func (s *Supervisor) Tick() {
	now := s.now()

	s.rolloverDay(now)

	s.bot.Tick(s.cfg.Supervisor.Mode)
	s.tele.UpdateProcessState(s.bot.StatusPayload())

	if s.due(now, s.lastPolicyEval, s.cfg.Policy.EvalInterval()) {
		s.lastPolicyEval = now
		s.evaluatePolicy()
	}

	if s.cfg.LLM.Enabled && s.due(now, s.lastLLMCheck, s.cfg.LLM.CheckInterval()) {
		s.lastLLMCheck = now
		s.runLLMCheck()
	}

	if s.due(now, s.lastSnapshot, s.cfg.Supervisor.SnapshotInterval()) {
		s.lastSnapshot = now
		s.writeSnapshot(now)
	}
}

func (s *Supervisor) due(now, last time.Time, interval time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

// rolloverDay resets per-day risk state when the UTC trading day changes.
func (s *Supervisor) rolloverDay(now time.Time) {
	day := clock.TradingDay(now)
	if day == s.tradingDay {
		return
	}
	s.log.Info("trading day rollover", "from", s.tradingDay, "to", day)
	s.tradingDay = day
	s.riskEngine.ResetDay(day)
	if err := s.riskEngine.Persist(); err != nil {
		s.log.Warn("risk state persist after rollover failed", "error", err)
	}
}

func (s *Supervisor) evaluatePolicy() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LLM.Timeout()+5*time.Second)
	defer cancel()

	pol := s.policies.Evaluate(ctx)
	changed, err := s.publisher.Publish(pol)
	if err != nil {
		s.log.Warn("policy publish failed", "error", err)
		return
	}

	s.tele.RecordPolicy(pol.Mode, pol.AllowTrading, pol.Reason)
	if changed {
		s.events.Emit(eventlog.EventModeChange, "supervisor", map[string]interface{}{
			"mode":          pol.Mode,
			"allow_trading": pol.AllowTrading,
			"reason":        pol.Reason,
			"fingerprint":   s.publisher.LastFingerprint(),
		})
	}
}

// runLLMCheck asks the advisor for risk advice and applies it to the
// engine. Suppressed and failed checks are no-ops.
func (s *Supervisor) runLLMCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LLM.Timeout()+5*time.Second)
	defer cancel()

	advice, ok := s.advisor.Check(ctx, s.riskEngine.GetState())
	if !ok {
		return
	}
	s.riskEngine.ApplyAdvice(advice)
}

// writeSnapshot persists the periodic snapshot and mirrors it to the
// event log.
func (s *Supervisor) writeSnapshot(now time.Time) {
	snap := s.collectSnapshot(now)

	if err := fsatomic.WriteJSON(s.snapshotPath, snap); err != nil {
		s.log.Warn("snapshot write failed", "error", err)
		return
	}
	s.events.Emit(eventlog.EventSupervisorSnapshot, "supervisor", snap)

	if err := s.riskEngine.Persist(); err != nil {
		s.log.Warn("risk state persist failed", "error", err)
	}
}

// loadSnapshot reads the last persisted snapshot for the API.
func (s *Supervisor) loadSnapshot() (map[string]interface{}, error) {
	var snap map[string]interface{}
	if err := fsatomic.ReadJSON(s.snapshotPath, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Supervisor) shutdown() error {
	s.log.Info("supervisor shutting down")

	if s.tsdbWriter != nil {
		s.tsdbWriter.Stop()
	}

	if s.cfg.Supervisor.SpawnBot {
		if err := s.bot.Stop(); err != nil {
			s.log.Warn("bot stop during shutdown failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := s.apiServer.Shutdown(ctx); err != nil {
		s.log.Warn("api shutdown failed", "error", err)
	}

	s.llmCache.Close()
	s.log.Close()
	return nil
}
