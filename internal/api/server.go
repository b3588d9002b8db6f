// Package api serves the supervisor HTTP surface: heartbeat and risk
// evaluation for the bot, lifecycle control, telemetry ingestion and the
// read-only dashboard endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/eventlog"
	"quantumedge-supervisor/internal/heartbeat"
	"quantumedge-supervisor/internal/logging"
	"quantumedge-supervisor/internal/policy"
	"quantumedge-supervisor/internal/risk"
	"quantumedge-supervisor/internal/telemetry"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// BotController is the slice of the process manager the API needs.
type BotController interface {
	Start(mode string) error
	Stop() error
	Restart(mode string) error
	IsRunning() bool
	StatusPayload() map[string]interface{}
}

// PolicyProvider exposes the policy engine's published state.
type PolicyProvider interface {
	CurrentPolicy() (policy.Policy, bool)
	DebugPayload() map[string]interface{}
}

// StatusReporter returns a component status map, e.g. the TSDB writer.
type StatusReporter interface {
	Status() map[string]interface{}
}

// Server is the supervisor HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	mode       string

	heartbeats *heartbeat.Server
	riskEngine *risk.Engine
	bot        BotController
	policies   PolicyProvider
	tele       *telemetry.Manager
	tsdbStatus StatusReporter
	events     *eventlog.Logger
	snapshot   func() (map[string]interface{}, error)
	hub        *WSHub
	log        *logging.Logger
	started    time.Time
}

// NewServer wires routes and middleware. snapshot loads the latest periodic
// supervisor snapshot; tsdbStatus may be nil when the writer is disabled.
func NewServer(
	cfg config.ServerConfig,
	mode string,
	heartbeats *heartbeat.Server,
	riskEngine *risk.Engine,
	bot BotController,
	policies PolicyProvider,
	tele *telemetry.Manager,
	tsdbStatus StatusReporter,
	events *eventlog.Logger,
	bus *eventlog.Bus,
	snapshot func() (map[string]interface{}, error),
	log *logging.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-API-TOKEN"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		cfg:        cfg,
		mode:       mode,
		heartbeats: heartbeats,
		riskEngine: riskEngine,
		bot:        bot,
		policies:   policies,
		tele:       tele,
		tsdbStatus: tsdbStatus,
		events:     events,
		snapshot:   snapshot,
		hub:        NewWSHub(log),
		log:        log.WithComponent("api"),
		started:    time.Now(),
	}

	s.setupRoutes()

	if bus != nil {
		bus.SubscribeAll(s.hub.BroadcastEvent)
	}
	go s.hub.Run()

	return s
}

// errJSON writes the uniform error body {error, details?}.
func errJSON(c *gin.Context, status int, code string, details ...string) {
	body := gin.H{"error": code}
	if len(details) > 0 && details[0] != "" {
		body["details"] = details[0]
	}
	c.AbortWithStatusJSON(status, body)
}

// authMiddleware enforces the X-API-TOKEN header with a constant-time
// compare. No token configured means auth is disabled.
func (s *Server) authMiddleware() gin.HandlerFunc {
	token := []byte(s.cfg.APIToken)
	return func(c *gin.Context) {
		if len(token) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader("X-API-TOKEN"))
		if len(got) != len(token) || subtle.ConstantTimeCompare(got, token) != 1 {
			errJSON(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws/events", s.handleWSEvents)

	api := s.router.Group("/api/v1")
	api.Use(s.authMiddleware())
	{
		api.POST("/heartbeat", s.handleHeartbeat)
		api.POST("/risk/evaluate", s.handleRiskEvaluate)

		api.POST("/bot/start", s.handleBotStart)
		api.POST("/bot/stop", s.handleBotStop)
		api.POST("/bot/restart", s.handleBotRestart)
		api.GET("/bot/status", s.handleBotStatus)

		api.GET("/status", s.handleStatus)

		api.GET("/policy/current", s.handlePolicyCurrent)
		api.GET("/policy/debug", s.handlePolicyDebug)

		api.POST("/telemetry/ingest", s.handleTelemetryIngest)
		api.GET("/telemetry/summary", s.handleTelemetrySummary)
		api.GET("/telemetry/events", s.handleTelemetryEvents)
		api.GET("/telemetry/alerts", s.handleTelemetryAlerts)

		api.GET("/dashboard/overview", s.handleDashboardOverview)
		api.GET("/dashboard/health", s.handleDashboardHealth)
		api.GET("/dashboard/events", s.handleDashboardEvents)

		api.GET("/supervisor/snapshot", s.handleSupervisorSnapshot)
		api.GET("/tsdb/status", s.handleTSDBStatus)
	}

	s.router.NoRoute(func(c *gin.Context) {
		errJSON(c, http.StatusNotFound, "not_found")
	})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server failed", "error", err)
			errCh <- err
		}
	}()

	// Give a bind failure a moment to surface.
	select {
	case err := <-errCh:
		return fmt.Errorf("start api server on %s: %w", addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	s.log.Info("api server listening", "addr", addr)
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
