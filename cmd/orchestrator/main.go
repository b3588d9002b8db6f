// Orchestrator CLI: brings the supervisor stack up and down as detached
// processes and reports on it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/logging"
	"quantumedge-supervisor/internal/orchestrator"

	"github.com/joho/godotenv"
)

const usage = `QuantumEdge Orchestrator

Usage: orchestrator <command> [flags]

Commands:
  start [--with-meta] [--no-supervisor-bot]   Start the supervisor stack
  stop                                        Stop all managed processes
  restart [--with-meta] [--no-supervisor-bot] Stop then start
  status                                      Show managed process status
  diag [--json]                               Host diagnostics
  logs [--name NAME] [--lines N]              Tail a process log
`

func main() {
	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	if err := run(cfg, command, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, command string, args []string) error {
	log := logging.New(&logging.Config{
		Level:     cfg.Logging.Level,
		Output:    "stderr",
		Component: "orchestrator",
	})

	switch command {
	case "start", "restart":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		withMeta := fs.Bool("with-meta", false, "also start the meta agent")
		noBot := fs.Bool("no-supervisor-bot", false, "supervisor does not spawn the bot")
		fs.Parse(args)

		o, err := orchestrator.New(cfg, orchestrator.Options{
			WithMeta:         *withMeta,
			NoSupervisorBot:  *noBot,
			SupervisorBinary: supervisorBinary(),
		}, log)
		if err != nil {
			return err
		}
		if command == "restart" {
			return o.Restart()
		}
		return o.Start()

	case "stop":
		// Include the meta agent so a stack started --with-meta goes
		// down completely.
		o, err := orchestrator.New(cfg, orchestrator.Options{
			WithMeta:         true,
			SupervisorBinary: supervisorBinary(),
		}, log)
		if err != nil {
			return err
		}
		return o.Stop()

	case "status":
		o, err := orchestrator.New(cfg, orchestrator.Options{
			WithMeta:         true,
			SupervisorBinary: supervisorBinary(),
		}, log)
		if err != nil {
			return err
		}
		for _, st := range o.Status() {
			fmt.Printf("%-12s running=%-5v pid=%-8d api_up=%v\n", st.Name, st.Running, st.Pid, st.APIUp)
		}
		return nil

	case "diag":
		fs := flag.NewFlagSet("diag", flag.ExitOnError)
		asJSON := fs.Bool("json", false, "emit JSON")
		fs.Parse(args)

		o, err := orchestrator.New(cfg, orchestrator.Options{SupervisorBinary: supervisorBinary()}, log)
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
		for key, value := range diag {
			fmt.Printf("%s: %v\n", key, value)
		}
		return nil

	case "logs":
		fs := flag.NewFlagSet("logs", flag.ExitOnError)
		name := fs.String("name", "supervisor", "process name")
		lines := fs.Int("lines", 50, "number of lines")
		fs.Parse(args)

		o, err := orchestrator.New(cfg, orchestrator.Options{
			WithMeta:         true,
			SupervisorBinary: supervisorBinary(),
		}, log)
		if err != nil {
			return err
		}
		out, err := o.Logs(*name, *lines)
		if err != nil {
			return err
		}
		for _, line := range out {
			fmt.Println(line)
		}
		return nil

	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

// supervisorBinary locates the supervisor executable: next to the
// orchestrator binary, else on PATH via the default name.
func supervisorBinary() string {
	exe, err := os.Executable()
	if err != nil {
		return "quantumedge-supervisor"
	}
	candidate := filepath.Join(filepath.Dir(exe), "quantumedge-supervisor")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return "quantumedge-supervisor"
}
