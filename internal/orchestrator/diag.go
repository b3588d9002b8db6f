package orchestrator

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Diag collects host-level diagnostics: OS, CPU load, memory and disk
// usage for the workspace root. Every probe is best-effort.
func (o *Orchestrator) Diag() map[string]interface{} {
	diag := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"root":      o.cfg.Paths.Root,
		"processes": o.Status(),
	}

	if info, err := host.Info(); err == nil {
		diag["host"] = map[string]interface{}{
			"hostname":   info.Hostname,
			"os":         info.OS,
			"platform":   info.Platform,
			"kernel":     info.KernelVersion,
			"uptime_sec": info.Uptime,
		}
	}

	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		diag["cpu_percent"] = percents[0]
	}
	if counts, err := cpu.Counts(true); err == nil {
		diag["cpu_count"] = counts
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		diag["memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_mb":      vm.Used / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	}

	if usage, err := disk.Usage(o.cfg.Paths.Root); err == nil {
		diag["disk"] = map[string]interface{}{
			"total_gb":     float64(usage.Total) / (1 << 30),
			"free_gb":      float64(usage.Free) / (1 << 30),
			"used_percent": usage.UsedPercent,
		}
	}

	return diag
}
