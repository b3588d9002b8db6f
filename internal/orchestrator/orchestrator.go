// Package orchestrator brings the supervisor (and the optional meta agent)
// up and down as detached OS processes and reports on them.
package orchestrator

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/fsatomic"
	"quantumedge-supervisor/internal/logging"

	gopsproc "github.com/shirou/gopsutil/v3/process"
)

// ProcDef describes one managed process.
type ProcDef struct {
	Name    string
	Command []string
	Env     []string // extra KEY=VALUE pairs
	PidFile string
	LogFile string
}

// Orchestrator starts, stops and inspects the managed process set.
type Orchestrator struct {
	cfg  *config.Config
	log  *logging.Logger
	defs []ProcDef
}

// Options selects which processes the orchestrator manages.
type Options struct {
	WithMeta         bool
	NoSupervisorBot  bool
	SupervisorBinary string // defaults to the current executable
}

// New builds the orchestrator and its process definitions from config.
func New(cfg *config.Config, opts Options, log *logging.Logger) (*Orchestrator, error) {
	binary := opts.SupervisorBinary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		binary = exe
	}

	superDir := filepath.Join(cfg.Paths.RuntimeDir, "supervisor")

	superEnv := []string{}
	if opts.NoSupervisorBot {
		superEnv = append(superEnv, "SUPERVISOR_SPAWN_BOT=false")
	}

	defs := []ProcDef{{
		Name:    "supervisor",
		Command: []string{binary, "run-foreground"},
		Env:     superEnv,
		PidFile: filepath.Join(superDir, "supervisor.pid"),
		LogFile: filepath.Join(cfg.Paths.LogsDir, "supervisor.log"),
	}}

	if opts.WithMeta {
		metaConfig := os.Getenv("META_AGENT_CONFIG")
		if metaConfig == "" {
			metaConfig = filepath.Join(cfg.Paths.ConfigDir, "meta_agent.json")
		}
		defs = append(defs, ProcDef{
			Name:    "meta-agent",
			Command: []string{binary, "run-foreground"},
			Env:     []string{"SUPERVISOR_CONFIG=" + metaConfig, "SUPERVISOR_SPAWN_BOT=false"},
			PidFile: filepath.Join(superDir, "meta_agent.pid"),
			LogFile: filepath.Join(cfg.Paths.LogsDir, "meta_agent.log"),
		})
	}

	return &Orchestrator{cfg: cfg, log: log.WithComponent("orchestrator"), defs: defs}, nil
}

// Start launches every managed process that is not already running.
func (o *Orchestrator) Start() error {
	var failed []string
	for _, def := range o.defs {
		if pid, running := o.readPid(def); running {
			o.log.Info("already running", "name", def.Name, "pid", pid)
			continue
		}
		if err := o.spawn(def); err != nil {
			o.log.Error("start failed", "name", def.Name, "error", err)
			failed = append(failed, def.Name)
		}
	}
	o.saveState()
	if len(failed) > 0 {
		return fmt.Errorf("failed to start: %s", strings.Join(failed, ", "))
	}
	return nil
}

// orchestratorState is the cross-invocation record of what was started.
type orchestratorState struct {
	StartedAt string       `json:"started_at"`
	Processes []ProcStatus `json:"processes"`
}

func (o *Orchestrator) statePath() string {
	return filepath.Join(o.cfg.Paths.RuntimeDir, "orchestrator_state.json")
}

func (o *Orchestrator) saveState() {
	state := orchestratorState{
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Processes: o.Status(),
	}
	if err := fsatomic.WriteJSON(o.statePath(), state); err != nil {
		o.log.Warn("orchestrator state write failed", "error", err)
	}
}

// spawn launches one process detached in its own process group, redirects
// its output to the log file and records the pid.
func (o *Orchestrator) spawn(def ProcDef) error {
	if err := os.MkdirAll(filepath.Dir(def.PidFile), 0755); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(def.LogFile), 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	logFile, err := os.OpenFile(def.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(def.Command[0], def.Command[1:]...)
	cmd.Dir = o.cfg.Paths.Root
	cmd.Env = append(os.Environ(), def.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", def.Name, err)
	}
	pid := cmd.Process.Pid

	// Detach: the orchestrator exits, the child keeps running.
	go cmd.Wait()

	if err := os.WriteFile(def.PidFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	o.log.Info("started", "name", def.Name, "pid", pid)
	return nil
}

// Stop signals each managed process group with SIGTERM, escalating to
// SIGKILL after the graceful timeout.
func (o *Orchestrator) Stop() error {
	var failed []string
	for i := len(o.defs) - 1; i >= 0; i-- {
		def := o.defs[i]
		pid, running := o.readPid(def)
		if !running {
			o.log.Info("not running", "name", def.Name)
			os.Remove(def.PidFile)
			continue
		}
		if err := o.terminate(def, pid); err != nil {
			failed = append(failed, def.Name)
		}
	}
	o.saveState()
	if len(failed) > 0 {
		return fmt.Errorf("failed to stop: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (o *Orchestrator) terminate(def ProcDef, pid int) error {
	// Signal the whole group so bot children go down with the supervisor.
	target := -pid
	if err := syscall.Kill(target, syscall.SIGTERM); err != nil {
		target = pid
		if err := syscall.Kill(target, syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal %s: %w", def.Name, err)
		}
	}

	deadline := time.Now().Add(o.cfg.Process.GracefulTimeout())
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			os.Remove(def.PidFile)
			o.log.Info("stopped", "name", def.Name, "pid", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	o.log.Warn("graceful stop timed out, killing", "name", def.Name, "pid", pid)
	syscall.Kill(target, syscall.SIGKILL)
	os.Remove(def.PidFile)
	return nil
}

// Restart is stop followed by start.
func (o *Orchestrator) Restart() error {
	if err := o.Stop(); err != nil {
		return err
	}
	return o.Start()
}

// ProcStatus is one row of the status report.
type ProcStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Pid     int    `json:"pid,omitempty"`
	APIUp   bool   `json:"api_up"`
}

// Status reports pid liveness for every managed process and probes the
// supervisor HTTP API.
func (o *Orchestrator) Status() []ProcStatus {
	statuses := make([]ProcStatus, 0, len(o.defs))
	for _, def := range o.defs {
		pid, running := o.readPid(def)
		st := ProcStatus{Name: def.Name, Running: running}
		if running {
			st.Pid = pid
		}
		if def.Name == "supervisor" {
			st.APIUp = o.probeAPI()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (o *Orchestrator) probeAPI() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(o.cfg.SupervisorURL() + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Logs returns the last n lines of the named process log. Empty name
// means the supervisor.
func (o *Orchestrator) Logs(name string, n int) ([]string, error) {
	if name == "" {
		name = "supervisor"
	}
	for _, def := range o.defs {
		if def.Name != name {
			continue
		}
		return tailLines(def.LogFile, n)
	}
	return nil, fmt.Errorf("unknown process %q", name)
}

// readPid loads the pid file and verifies the process is alive.
func (o *Orchestrator) readPid(def ProcDef) (int, bool) {
	raw, err := os.ReadFile(def.PidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, pidAlive(pid)
}

func pidAlive(pid int) bool {
	if exists, err := gopsproc.PidExists(int32(pid)); err == nil {
		return exists
	}
	return syscall.Kill(pid, 0) == nil
}

// tailLines reads the last n lines of a file without loading all of it
// when the file is large.
func tailLines(path string, n int) ([]string, error) {
	if n <= 0 {
		n = 50
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	// Read at most 64KiB per requested line from the end.
	readSize := int64(n) * 64 * 1024
	offset := info.Size() - readSize
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && offset+int64(len(buf)) < info.Size() {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	if offset > 0 && len(lines) > 0 {
		lines = lines[1:] // first line may be partial
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
