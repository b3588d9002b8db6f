package supervisor

import (
	"time"

	"quantumedge-supervisor/internal/clock"
)

// collectSnapshot summarizes the last snapshot window: event counts from
// the durable log plus the live state of every subsystem.
func (s *Supervisor) collectSnapshot(now time.Time) map[string]interface{} {
	windowMin := s.cfg.Supervisor.SnapshotWindowMin
	if windowMin <= 0 {
		windowMin = 15
	}
	cutoff := float64(now.Add(-time.Duration(windowMin)*time.Minute).UnixNano()) / 1e9

	counts := map[string]int{}
	total := 0
	if events, err := s.events.ReadDay(clock.TradingDay(now)); err == nil {
		for _, ev := range events {
			if ev.Ts < cutoff {
				continue
			}
			counts[string(ev.Type)]++
			total++
		}
	}

	snap := map[string]interface{}{
		"ts":           float64(now.UnixNano()) / 1e9,
		"trading_day":  s.tradingDay,
		"window_min":   windowMin,
		"event_counts": counts,
		"event_total":  total,
		"bot":          s.bot.StatusPayload(),
		"heartbeat":    s.heartbeats.Status(),
		"risk":         s.riskEngine.GetState(),
		"telemetry":    s.tele.Summary(),
		"alerts":       s.tele.Alerts().Active(),
		"mode":         s.cfg.Supervisor.Mode,
	}
	if fp := s.publisher.LastFingerprint(); fp != "" {
		snap["policy_fingerprint"] = fp
	}
	if s.tsdbWriter != nil {
		snap["tsdb"] = s.tsdbWriter.Status()
	}
	return snap
}
