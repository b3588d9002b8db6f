// Package procman spawns, monitors and restarts the bot child process.
package procman

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/eventlog"
	"quantumedge-supervisor/internal/fsatomic"
	"quantumedge-supervisor/internal/logging"

	gopsproc "github.com/shirou/gopsutil/v3/process"
)

// State is the lifecycle state of the managed child.
type State string

const (
	StateNeverStarted State = "NEVER_STARTED"
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateStopping     State = "STOPPING"
	StateExited       State = "EXITED"
	StateStopped      State = "STOPPED"
)

// ProcessInfo is the persisted bookkeeping for the child process. It is
// owned by the manager; consumers read via StatusPayload.
type ProcessInfo struct {
	Pid          int    `json:"pid"`
	StartTime    string `json:"start_time"`
	LastExitCode *int   `json:"last_exit_code,omitempty"`
	LastExitTime string `json:"last_exit_time,omitempty"`
	RestartCount int    `json:"restart_count"`
	Mode         string `json:"mode,omitempty"`
}

const processStateFile = "process_state.json"

// Manager owns the bot child process lifecycle.
type Manager struct {
	mu       sync.RWMutex
	cfg      config.ProcessConfig
	paths    config.PathsConfig
	super    config.ServerConfig
	state    State
	info     ProcessInfo
	cmd      *exec.Cmd
	logFile  *os.File
	exitCh   chan int
	events   *eventlog.Logger
	log      *logging.Logger
	stateDir string
}

// NewManager creates a manager. Any persisted ProcessInfo is reloaded so a
// restarted supervisor can re-adopt (or at least observe) an orphaned child.
func NewManager(cfg config.ProcessConfig, paths config.PathsConfig, super config.ServerConfig, events *eventlog.Logger, log *logging.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		paths:    paths,
		super:    super,
		state:    StateNeverStarted,
		events:   events,
		log:      log.WithComponent("procman"),
		stateDir: filepath.Join(paths.RuntimeDir, "supervisor"),
	}

	var info ProcessInfo
	if err := fsatomic.ReadJSON(m.statePath(), &info); err == nil && info.Pid > 0 {
		m.info = info
		if pidAlive(info.Pid) {
			// Orphan from a previous supervisor run; we can observe but not
			// wait on it, so liveness falls back to OS probing.
			m.state = StateRunning
			m.log.Warn("adopted running child from persisted state", "pid", info.Pid)
		} else {
			m.state = StateExited
		}
	}
	return m
}

func (m *Manager) statePath() string {
	return filepath.Join(m.stateDir, processStateFile)
}

// Start spawns the child. If it dies within the probation window the spawn
// is retried up to RestartMaxAttempts with backoff.
func (m *Manager) Start(mode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning || m.state == StateStarting {
		return nil
	}
	if len(m.cfg.BotCommand) == 0 {
		return fmt.Errorf("process.bot_command not configured")
	}

	m.state = StateStarting
	var lastErr error
	for attempt := 0; attempt <= m.cfg.RestartMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * m.cfg.RestartBackoff()
			m.log.Warn("bot start retry", "attempt", attempt, "backoff", backoff.String())
			time.Sleep(backoff)
		}
		if lastErr = m.spawnLocked(mode); lastErr == nil {
			return nil
		}
	}

	m.state = StateExited
	return fmt.Errorf("bot start failed after %d attempts: %w", m.cfg.RestartMaxAttempts+1, lastErr)
}

// spawnLocked launches the child once and watches the probation window.
// Caller holds the lock.
func (m *Manager) spawnLocked(mode string) error {
	logPath := filepath.Join(m.paths.LogsDir,
		fmt.Sprintf("bot_%s.log", time.Now().UTC().Format("20060102_150405")))
	if err := os.MkdirAll(m.paths.LogsDir, 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open bot log: %w", err)
	}

	cmd := exec.Command(m.cfg.BotCommand[0], m.cfg.BotCommand[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// Own process group so stop can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(),
		"QE_ROOT="+m.paths.Root,
		"QE_RUNTIME_DIR="+m.paths.RuntimeDir,
		"QE_LOGS_DIR="+m.paths.LogsDir,
		"QE_DATA_DIR="+m.paths.DataDir,
		fmt.Sprintf("SUPERVISOR_URL=http://%s:%d", m.super.Host, m.super.Port),
	)
	if m.cfg.BotConfigPath != "" {
		cmd.Env = append(cmd.Env, "QE_CONFIG_PATH="+m.cfg.BotConfigPath)
	}
	if mode != "" {
		cmd.Env = append(cmd.Env, "QUANTUMEDGE_SUPERVISOR_MODE="+mode)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("spawn bot: %w", err)
	}

	exitCh := make(chan int, 1)
	go func() {
		err := cmd.Wait()
		code := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else if err != nil {
			code = -1
		}
		exitCh <- code
	}()

	// Probation: a child that dies immediately is a failed start, not a
	// running bot that later crashed.
	select {
	case code := <-exitCh:
		logFile.Close()
		return fmt.Errorf("bot exited during probation with code %d (log: %s)", code, logPath)
	case <-time.After(m.cfg.Probation()):
	}

	m.cmd = cmd
	m.logFile = logFile
	m.exitCh = exitCh
	m.state = StateRunning
	m.info.Pid = cmd.Process.Pid
	m.info.StartTime = time.Now().UTC().Format(time.RFC3339)
	m.info.Mode = mode
	m.persistLocked()

	m.log.Info("bot started", "pid", m.info.Pid, "mode", mode, "log", logPath)
	if m.events != nil {
		m.events.Emit(eventlog.EventBotStart, "procman", map[string]interface{}{
			"pid": m.info.Pid, "mode": mode,
		})
	}
	return nil
}

// IsRunning reconciles child liveness without blocking. A transition to
// exited emits one ANOMALY and one BOT_STOP event, exactly once.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcileLocked()
}

func (m *Manager) reconcileLocked() bool {
	switch m.state {
	case StateRunning:
	case StateStarting:
		return true
	default:
		return false
	}

	if m.exitCh != nil {
		select {
		case code := <-m.exitCh:
			m.markExitedLocked(code, "unexpected-exit")
			return false
		default:
			return true
		}
	}

	// Adopted child without a local handle: probe the OS.
	if !pidAlive(m.info.Pid) {
		m.markExitedLocked(-1, "unexpected-exit")
		return false
	}
	return true
}

func (m *Manager) markExitedLocked(code int, reason string) {
	m.state = StateExited
	m.info.LastExitCode = &code
	m.info.LastExitTime = time.Now().UTC().Format(time.RFC3339)
	m.releaseLocked()
	m.persistLocked()

	m.log.Warn("bot exited unexpectedly", "pid", m.info.Pid, "code", code)
	if m.events != nil {
		m.events.Emit(eventlog.EventAnomaly, "procman", map[string]interface{}{
			"kind": "unexpected_exit", "pid": m.info.Pid, "exit_code": code,
		})
		m.events.Emit(eventlog.EventBotStop, "procman", map[string]interface{}{
			"pid": m.info.Pid, "reason": reason, "exit_code": code,
		})
	}
}

// Stop terminates the child gracefully, escalating to SIGKILL after the
// configured timeout. Idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning && m.state != StateStarting {
		return nil
	}
	m.state = StateStopping

	pid := m.info.Pid
	// Negative pid signals the whole process group.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		syscall.Kill(pid, syscall.SIGTERM)
	}

	exited := m.waitExitLocked(m.cfg.GracefulTimeout())
	if !exited {
		m.log.Warn("graceful stop timed out, killing", "pid", pid)
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
			syscall.Kill(pid, syscall.SIGKILL)
		}
		m.waitExitLocked(2 * time.Second)
	}

	code := 0
	if m.info.LastExitCode != nil {
		code = *m.info.LastExitCode
	}
	m.state = StateStopped
	m.info.LastExitTime = time.Now().UTC().Format(time.RFC3339)
	m.releaseLocked()
	m.persistLocked()

	m.log.Info("bot stopped", "pid", pid)
	if m.events != nil {
		m.events.Emit(eventlog.EventBotStop, "procman", map[string]interface{}{
			"pid": pid, "reason": "requested", "exit_code": code,
		})
	}
	return nil
}

func (m *Manager) waitExitLocked(timeout time.Duration) bool {
	if m.exitCh != nil {
		select {
		case code := <-m.exitCh:
			m.info.LastExitCode = &code
			return true
		case <-time.After(timeout):
			return false
		}
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !pidAlive(m.info.Pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// Restart stops then starts the child and bumps the restart counter.
func (m *Manager) Restart(mode string) error {
	if err := m.Stop(); err != nil {
		return err
	}
	m.mu.Lock()
	m.info.RestartCount++
	m.mu.Unlock()
	return m.Start(mode)
}

// Tick reconciles liveness; called from the supervisor loop.
func (m *Manager) Tick(mode string) {
	m.IsRunning()
}

// ClearInfo removes the persisted bookkeeping, for explicit operator resets.
func (m *Manager) ClearInfo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = ProcessInfo{}
	err := os.Remove(m.statePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Info returns a copy of the process bookkeeping.
func (m *Manager) Info() ProcessInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// StatusPayload returns the compact status served by the API and consumed
// by the telemetry aggregator.
func (m *Manager) StatusPayload() map[string]interface{} {
	m.mu.Lock()
	running := m.reconcileLocked()
	state := m.state
	info := m.info
	m.mu.Unlock()

	payload := map[string]interface{}{
		"state":         string(state),
		"running":       running,
		"pid":           info.Pid,
		"start_time":    info.StartTime,
		"restart_count": info.RestartCount,
		"mode":          info.Mode,
	}
	if info.LastExitCode != nil {
		payload["last_exit_code"] = *info.LastExitCode
	}
	if info.LastExitTime != "" {
		payload["last_exit_time"] = info.LastExitTime
	}
	return payload
}

func (m *Manager) releaseLocked() {
	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
	}
	m.cmd = nil
	m.exitCh = nil
}

func (m *Manager) persistLocked() {
	if err := fsatomic.WriteJSON(m.statePath(), m.info); err != nil {
		m.log.Warn("process state persist failed", "error", err)
	}
}

// pidAlive probes OS process liveness, used when no local handle exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := gopsproc.PidExists(int32(pid))
	if err != nil {
		// Conservative fallback: signal 0 probes existence without effect.
		return syscall.Kill(pid, 0) == nil
	}
	return exists
}
