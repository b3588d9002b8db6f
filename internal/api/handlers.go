package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"quantumedge-supervisor/internal/clock"
	"quantumedge-supervisor/internal/eventlog"
	"quantumedge-supervisor/internal/heartbeat"
	"quantumedge-supervisor/internal/risk"
	"quantumedge-supervisor/internal/telemetry"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime_sec": time.Since(s.started).Seconds(),
	})
}

// handleHeartbeat accepts the bot heartbeat, feeds the risk engine and
// returns the supervisor's view so the bot can act on halts immediately.
func (s *Server) handleHeartbeat(c *gin.Context) {
	var p heartbeat.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		errJSON(c, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	s.heartbeats.Update(p)
	s.riskEngine.UpdateFromHeartbeat(p)

	state := s.riskEngine.GetState()
	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"halted":      state.Halted,
		"halt_reason": state.HaltReason,
		"llm_paused":  state.LLMPaused,
		"trading_day": state.TradingDay,
	})
}

func (s *Server) handleRiskEvaluate(c *gin.Context) {
	var req risk.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, "bad_json", err.Error())
		return
	}

	decision := s.riskEngine.EvaluateOrder(req)
	c.JSON(http.StatusOK, gin.H{
		"decision": decision,
		"state":    s.riskEngine.GetState(),
	})
}

func (s *Server) handleBotStart(c *gin.Context) {
	if err := s.bot.Start(s.mode); err != nil {
		errJSON(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.bot.StatusPayload())
}

func (s *Server) handleBotStop(c *gin.Context) {
	if err := s.bot.Stop(); err != nil {
		errJSON(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.bot.StatusPayload())
}

func (s *Server) handleBotRestart(c *gin.Context) {
	if err := s.bot.Restart(s.mode); err != nil {
		errJSON(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.bot.StatusPayload())
}

func (s *Server) handleBotStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.StatusPayload())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bot":       s.bot.StatusPayload(),
		"heartbeat": s.heartbeats.Status(),
		"risk":      s.riskEngine.GetState(),
		"mode":      s.mode,
	})
}

func (s *Server) handlePolicyCurrent(c *gin.Context) {
	p, ok := s.policies.CurrentPolicy()
	if !ok {
		errJSON(c, http.StatusNotFound, "not_found", "no policy published yet")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handlePolicyDebug(c *gin.Context) {
	c.JSON(http.StatusOK, s.policies.DebugPayload())
}

func (s *Server) handleTelemetryIngest(c *gin.Context) {
	// Read one byte past the bound so oversized bodies are detected
	// without buffering arbitrary input.
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(s.tele.MaxEventBytes())+1))
	if err != nil {
		errJSON(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(raw) > s.tele.MaxEventBytes() {
		errJSON(c, http.StatusRequestEntityTooLarge, "payload_too_large")
		return
	}

	if err := s.tele.IngestRaw(raw); err != nil {
		if errors.Is(err, telemetry.ErrEventTooLarge) {
			errJSON(c, http.StatusRequestEntityTooLarge, "payload_too_large")
			return
		}
		errJSON(c, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleTelemetrySummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.tele.Summary())
}

func (s *Server) handleTelemetryEvents(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	events := s.tele.Recent(limit)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) handleTelemetryAlerts(c *gin.Context) {
	alerts := s.tele.Alerts()
	c.JSON(http.StatusOK, gin.H{
		"active":  alerts.Active(),
		"all":     alerts.All(),
		"history": alerts.History(),
	})
}

func (s *Server) handleDashboardOverview(c *gin.Context) {
	overview := gin.H{
		"bot":       s.bot.StatusPayload(),
		"heartbeat": s.heartbeats.Status(),
		"risk":      s.riskEngine.GetState(),
		"telemetry": s.tele.Summary(),
		"alerts":    s.tele.Alerts().Active(),
		"mode":      s.mode,
	}
	if p, ok := s.policies.CurrentPolicy(); ok {
		overview["policy"] = p
	}
	c.JSON(http.StatusOK, overview)
}

// handleDashboardHealth reports pass/fail checks across the stack.
func (s *Server) handleDashboardHealth(c *gin.Context) {
	state := s.riskEngine.GetState()
	summary := s.tele.Summary()

	checks := gin.H{
		"bot_running":     s.bot.IsRunning(),
		"heartbeat_fresh": !s.heartbeats.IsStale(),
		"risk_halted":     state.Halted,
		"alerts_active":   len(s.tele.Alerts().Active()),
	}
	tsdbHealthy := true
	if s.tsdbStatus != nil {
		st := s.tsdbStatus.Status()
		if h, ok := st["healthy"].(bool); ok {
			tsdbHealthy = h
		}
		checks["tsdb_healthy"] = tsdbHealthy
	}

	healthy := s.bot.IsRunning() && !s.heartbeats.IsStale() && !state.Halted && tsdbHealthy
	c.JSON(http.StatusOK, gin.H{
		"healthy":   healthy,
		"checks":    checks,
		"error_1m":  summary.ErrorRate1m,
		"restarts":  summary.Restarts,
		"policy":    summary.PolicyMode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDashboardEvents serves the durable event log filtered by type,
// newest last.
func (s *Server) handleDashboardEvents(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = clock.TradingDay(time.Now())
	}
	typeFilter := c.Query("type")
	limit := intQuery(c, "limit", 200)

	events, err := s.events.ReadDay(date)
	if err != nil {
		errJSON(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	filtered := make([]eventlog.Event, 0, len(events))
	for _, ev := range events {
		if typeFilter != "" && string(ev.Type) != typeFilter {
			continue
		}
		filtered = append(filtered, ev)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{"date": date, "events": filtered, "count": len(filtered)})
}

func (s *Server) handleSupervisorSnapshot(c *gin.Context) {
	snap, err := s.snapshot()
	if err != nil {
		errJSON(c, http.StatusNotFound, "not_found", "no snapshot available")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleTSDBStatus(c *gin.Context) {
	if s.tsdbStatus == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "backend": "none"})
		return
	}
	c.JSON(http.StatusOK, s.tsdbStatus.Status())
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
