package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/eventlog"
	"quantumedge-supervisor/internal/heartbeat"
	"quantumedge-supervisor/internal/logging"
	"quantumedge-supervisor/internal/policy"
	"quantumedge-supervisor/internal/risk"
	"quantumedge-supervisor/internal/telemetry"

	"github.com/gin-gonic/gin"
)

type fakeBot struct {
	running  bool
	startErr error
}

func (f *fakeBot) Start(mode string) error   { f.running = true; return f.startErr }
func (f *fakeBot) Stop() error               { f.running = false; return nil }
func (f *fakeBot) Restart(mode string) error { f.running = true; return nil }
func (f *fakeBot) IsRunning() bool           { return f.running }
func (f *fakeBot) StatusPayload() map[string]interface{} {
	return map[string]interface{}{"running": f.running, "state": "RUNNING"}
}

type fakePolicies struct {
	current policy.Policy
	has     bool
}

func (f *fakePolicies) CurrentPolicy() (policy.Policy, bool) { return f.current, f.has }
func (f *fakePolicies) DebugPayload() map[string]interface{} {
	return map[string]interface{}{"llm_enabled": false}
}

type fakeTSDB struct{ healthy bool }

func (f *fakeTSDB) Status() map[string]interface{} {
	return map[string]interface{}{"backend": "noop", "healthy": f.healthy, "queue_depth": 0}
}

func testServer(t *testing.T, token string) (*Server, *fakeBot) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	dir := t.TempDir()

	events := eventlog.NewLogger(dir, eventlog.NewBus(), log)
	riskEngine := risk.NewEngine(config.RiskConfig{
		MaxDailyLossAbs: 50, MaxDrawdownAbs: 100, MaxNotional: 5000, MaxLeverage: 10,
	}, risk.NewStore(dir), "2026-08-24", events, log)

	tele := telemetry.NewManager(
		config.TelemetryConfig{MaxEventSizeKB: 32, MaxEventsInMemory: 100},
		config.AlertsConfig{DrawdownDay: 100, CooldownSec: 300}, log)

	bot := &fakeBot{running: true}
	srv := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 0, APIToken: token, ProductionMode: true},
		"paper",
		heartbeat.NewServer(30*time.Second),
		riskEngine,
		bot,
		&fakePolicies{current: policy.SafeDefault(float64(time.Now().Unix()), 30, "POLICY_NOT_READY"), has: true},
		tele,
		&fakeTSDB{healthy: true},
		events,
		nil,
		func() (map[string]interface{}, error) { return nil, fmt.Errorf("no snapshot") },
		log,
	)
	return srv, bot
}

func doRequest(srv *Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("X-API-TOKEN", token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestAuthRequiredWhenTokenConfigured(t *testing.T) {
	srv, _ := testServer(t, "secret")

	w := doRequest(srv, "POST", "/api/v1/telemetry/ingest", "", []byte(`{"type":"order"}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error":"unauthorized"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	w = doRequest(srv, "POST", "/api/v1/telemetry/ingest", "wrong-token", []byte(`{}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}

	w = doRequest(srv, "POST", "/api/v1/telemetry/ingest", "secret", []byte(`{"type":"order"}`))
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuthBypassWithoutToken(t *testing.T) {
	srv, _ := testServer(t, "")
	w := doRequest(srv, "GET", "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
}

func TestIngestPayloadTooLarge(t *testing.T) {
	srv, _ := testServer(t, "")

	body := make([]byte, 32*1024+1)
	w := doRequest(srv, "POST", "/api/v1/telemetry/ingest", "", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if resp["error"] != "payload_too_large" {
		t.Errorf("error = %v, want payload_too_large", resp["error"])
	}
}

func TestIngestBadJSON(t *testing.T) {
	srv, _ := testServer(t, "")
	w := doRequest(srv, "POST", "/api/v1/telemetry/ingest", "", []byte(`{broken`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error":"bad_json"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHeartbeatUpdatesRisk(t *testing.T) {
	srv, _ := testServer(t, "")

	hb := `{"ts":1700000000,"equity":1000,"pnl":0}`
	w := doRequest(srv, "POST", "/api/v1/heartbeat", "", []byte(hb))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	// Equity drop past the daily loss limit halts on the next heartbeat.
	hb = `{"ts":1700000060,"equity":940,"pnl":-60,"realized_pnl_today":-60}`
	w = doRequest(srv, "POST", "/api/v1/heartbeat", "", []byte(hb))

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["halted"] != true {
		t.Errorf("response = %v, want halted", resp)
	}
}

func TestRiskEvaluateEndpoint(t *testing.T) {
	srv, _ := testServer(t, "")

	doRequest(srv, "POST", "/api/v1/heartbeat", "", []byte(`{"ts":1700000000,"equity":1000}`))

	order := `{"symbol":"BTCUSDT","side":"BUY","order_type":"MARKET","quantity":1,"price":100}`
	w := doRequest(srv, "POST", "/api/v1/risk/evaluate", "", []byte(order))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Decision risk.Decision `json:"decision"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Decision.Allowed || resp.Decision.Code != risk.CodeOK {
		t.Errorf("decision = %+v", resp.Decision)
	}

	w = doRequest(srv, "POST", "/api/v1/risk/evaluate", "", []byte(`{bad`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed order status = %d, want 400", w.Code)
	}
}

func TestBotLifecycleEndpoints(t *testing.T) {
	srv, bot := testServer(t, "")

	w := doRequest(srv, "POST", "/api/v1/bot/stop", "", nil)
	if w.Code != http.StatusOK || bot.running {
		t.Errorf("stop: status = %d, running = %v", w.Code, bot.running)
	}

	w = doRequest(srv, "POST", "/api/v1/bot/start", "", nil)
	if w.Code != http.StatusOK || !bot.running {
		t.Errorf("start: status = %d, running = %v", w.Code, bot.running)
	}

	bot.startErr = fmt.Errorf("spawn failed")
	w = doRequest(srv, "POST", "/api/v1/bot/start", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("failed start status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error":"internal_error"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestPolicyEndpoints(t *testing.T) {
	srv, _ := testServer(t, "")

	w := doRequest(srv, "GET", "/api/v1/policy/current", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var p policy.Policy
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Mode != policy.ModeRiskOff || p.AllowTrading {
		t.Errorf("policy = %+v", p)
	}

	w = doRequest(srv, "GET", "/api/v1/policy/debug", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "llm_enabled") {
		t.Errorf("debug: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSnapshotNotFound(t *testing.T) {
	srv, _ := testServer(t, "")
	w := doRequest(srv, "GET", "/api/v1/supervisor/snapshot", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error":"not_found"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := testServer(t, "")
	w := doRequest(srv, "GET", "/api/v1/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDashboardHealth(t *testing.T) {
	srv, _ := testServer(t, "")
	w := doRequest(srv, "GET", "/api/v1/dashboard/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	// Bot running and TSDB healthy, but no heartbeat yet -> unhealthy.
	if resp["healthy"] != false {
		t.Errorf("healthy = %v, want false with stale heartbeat", resp["healthy"])
	}
}

func TestTSDBStatusEndpoint(t *testing.T) {
	srv, _ := testServer(t, "")
	w := doRequest(srv, "GET", "/api/v1/tsdb/status", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"backend":"noop"`) {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := testServer(t, "secret")
	w := doRequest(srv, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without token", w.Code)
	}
}
