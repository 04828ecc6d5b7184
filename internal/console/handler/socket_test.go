package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xela07ax/chat-control-plane/internal/console/service"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"github.com/xela07ax/chat-control-plane/internal/engine"
	"github.com/xela07ax/chat-control-plane/internal/infra/auth"
	"go.uber.org/zap"
)

// stubTransport — двойник гейтвея: команды ядра без реальных сокетов.
type stubTransport struct {
	disconnected []string
}

func (s *stubTransport) Disconnect(socketID, reason string) error {
	s.disconnected = append(s.disconnected, socketID)
	return nil
}

func (s *stubTransport) Send(socketID, event string, payload interface{}) error {
	return nil
}

type apiFixture struct {
	handler  *SocketHandler
	registry *engine.ConnectionRegistry
	limiter  *engine.RateLimiter
	breakers *engine.BreakerBank
	history  *engine.HistoryStore
	alerts   *engine.AlertEngine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	registry := engine.NewConnectionRegistry(logger)
	limiter := engine.NewRateLimiter(30, time.Minute, logger)
	breakers := engine.NewBreakerBank([]string{"database", "aiService", "retell"}, engine.BreakerSettings{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailures: 3,
	}, logger)
	alerts := engine.NewAlertEngine(logger)
	maintenance := engine.NewMaintenanceController(nil, logger)
	history := engine.NewHistoryStore(10, 100, nil, logger)
	metrics := engine.NewMetrics(nil)
	shutdown := engine.NewShutdownCoordinator(time.Millisecond, func() {}, logger)

	processor := engine.NewProcessor(
		registry, limiter, breakers, alerts, maintenance, history,
		&stubTransport{}, shutdown, metrics, logger)

	collector := engine.NewCollector(
		registry, limiter, breakers, alerts, history, metrics,
		func() int { return 0 }, func() int64 { return 0 },
		time.Minute, logger)

	admin := service.NewAdminService(processor, registry, limiter, breakers, alerts, history)
	status := service.NewStatusService(registry, breakers, limiter, alerts, maintenance, history, collector)

	return &apiFixture{
		handler:  NewSocketHandler(admin, status, logger),
		registry: registry,
		limiter:  limiter,
		breakers: breakers,
		history:  history,
		alerts:   alerts,
	}
}

func doRequest(t *testing.T, h http.HandlerFunc, method string, body interface{}, adminID string, role domain.Role) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/admin/socket", &buf)
	req = req.WithContext(auth.WithCaller(req.Context(), adminID, role))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatusBasicAndDetailed(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.registry.Register(domain.Connection{SocketID: "s1", UserID: "u1"}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/socket", nil)
	rec := httptest.NewRecorder()
	f.handler.Status(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, 1, health.ActiveConnections)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/socket?detailed=true", nil)
	rec = httptest.NewRecorder()
	f.handler.Status(rec, req)

	var detailed domain.DetailedHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	require.Len(t, detailed.Breakers, 3)
	require.Equal(t, "closed", detailed.Breakers["database"])
}

func TestStatusDegradedOnOpenBreaker(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.breakers.RecordFailure("retell"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/socket", nil)
	rec := httptest.NewRecorder()
	f.handler.Status(rec, req)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, []string{"retell"}, health.Degraded)
}

func TestActionExecuteSetRateLimit(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Action, http.MethodPost, map[string]interface{}{
		"action": "execute_command",
		"data": map[string]interface{}{
			"type": "set_rate_limit",
			"payload": map[string]interface{}{
				"userId": "u1", "maxMessages": 5, "windowMs": 60000,
			},
		},
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Command set_rate_limit executed successfully", body["message"])

	// Правило реально применено: шестое сообщение в окне отклоняется
	allowed := 0
	for i := 0; i < 6; i++ {
		if f.limiter.Allow("u1", "s1").Allowed {
			allowed++
		}
	}
	require.Equal(t, 5, allowed)

	// И команда попала в журнал аудита
	records := f.history.GetCommandHistory()
	require.Len(t, records, 1)
	require.Equal(t, domain.CmdSetRateLimit, records[0].Type)
}

func TestActionUnknownActionListsAvailable(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Action, http.MethodPost, map[string]interface{}{
		"action": "make_coffee",
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "Unknown action", body["error"])
	require.Len(t, body["availableActions"], len(availableActions))
}

func TestActionValidationRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Action, http.MethodPost, map[string]interface{}{
		"action": "execute_command",
		"data": map[string]interface{}{
			"type":    "disconnect_user",
			"payload": map[string]interface{}{},
		},
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	// Отклоненная на валидации команда не журналируется
	require.Empty(t, f.history.GetCommandHistory())
}

func TestActionForceDisconnectUnknownUser(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Action, http.MethodPost, map[string]interface{}{
		"action": "force_disconnect_user",
		"data":   map[string]interface{}{"userId": "ghost"},
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionConfigureAlert(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Action, http.MethodPost, map[string]interface{}{
		"action": "configure_alert",
		"data": map[string]interface{}{
			"metric": "active_connections", "threshold": 1000,
			"comparison": "gt", "duration": 30000, "enabled": true,
		},
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Alert configured for metric: active_connections", body["message"])

	configs := f.alerts.ListConfigs()
	require.Len(t, configs, 1)
	require.Equal(t, 30*time.Second, configs[0].Duration)
	require.Equal(t, "admin-1", configs[0].UpdatedBy)
}

func TestActionGetters(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.registry.Register(domain.Connection{SocketID: "s1", UserID: "u1"}))

	rec := doRequest(t, f.handler.Action, http.MethodPost, map[string]interface{}{
		"action": "get_connections",
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Len(t, body["data"], 1)
}

func TestConfigureBatchUpdate(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Configure, http.MethodPut, map[string]interface{}{
		"config": map[string]interface{}{
			"alerts": []map[string]interface{}{
				{"metric": "rate_limited", "threshold": 50, "comparison": "gt", "duration": 0, "enabled": true},
			},
			"maintenance": map[string]interface{}{"enabled": true, "message": "Upgrading"},
			"rateLimits": []map[string]interface{}{
				{"socketId": "s9", "maxMessages": 3, "windowMs": 10000},
			},
		},
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Configuration updated successfully", body["message"])

	require.Len(t, f.alerts.ListConfigs(), 1)
	require.Len(t, f.limiter.Rules(), 1)
	// Переключение maintenance прошло через процессор и попало в аудит
	records := f.history.GetCommandHistory()
	require.Len(t, records, 1)
	require.Equal(t, domain.CmdEnableMaintenance, records[0].Type)
}

func TestEmergencyForbiddenForAdmin(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Emergency, http.MethodDelete, map[string]interface{}{
		"action": "disconnect_all_users",
	}, "admin-1", domain.RoleAdmin)

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Super admin access required", body["error"])

	// Отказ по привилегиям не создает записи аудита
	require.Empty(t, f.history.GetCommandHistory())
}

func TestEmergencySuperAdminResetAll(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.breakers.RecordFailure("database"))
	}

	rec := doRequest(t, f.handler.Emergency, http.MethodDelete, map[string]interface{}{
		"action": "reset_all_circuit_breakers",
	}, "root", domain.RoleSuperAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "All circuit breakers reset", body["message"])
	require.Equal(t, "closed", f.breakers.States()["database"])
}

func TestEmergencyUnknownAction(t *testing.T) {
	f := newAPIFixture(t)

	rec := doRequest(t, f.handler.Emergency, http.MethodDelete, map[string]interface{}{
		"action": "self_destruct",
	}, "root", domain.RoleSuperAdmin)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Unknown emergency action", body["error"])
	require.Len(t, body["availableActions"], 3)
}
