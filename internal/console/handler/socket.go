package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/console/service"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"github.com/xela07ax/chat-control-plane/internal/infra/auth"
	"go.uber.org/zap"
)

// SocketHandler обслуживает привилегированную поверхность /api/admin/socket:
// GET — статус, POST — действия, PUT — пакетная конфигурация,
// DELETE — аварийные операции (только SUPER_ADMIN).
type SocketHandler struct {
	admin  *service.AdminService
	status *service.StatusService
	logger *zap.Logger
}

func NewSocketHandler(admin *service.AdminService, status *service.StatusService, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{
		admin:  admin,
		status: status,
		logger: logger.Named("admin-api"),
	}
}

// Закрытый набор действий POST-поверхности. Отдается клиенту при опечатке.
var availableActions = []string{
	"execute_command",
	"configure_alert",
	"set_rate_limit",
	"reset_circuit_breaker",
	"set_maintenance_mode",
	"force_disconnect_user",
	"force_disconnect_socket",
	"get_connections",
	"get_metrics_history",
	"get_command_history",
	"get_alert_configs",
}

var availableEmergencyActions = []string{
	"emergency_shutdown",
	"disconnect_all_users",
	"reset_all_circuit_breakers",
}

type actionRequest struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data"`
}

type actionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// alertConfigRequest — wire-формат конфига алерта: duration приходит в мс.
type alertConfigRequest struct {
	Metric     string  `json:"metric"`
	Threshold  float64 `json:"threshold"`
	Comparison string  `json:"comparison"`
	Duration   int64   `json:"duration"`
	Enabled    bool    `json:"enabled"`
}

func (r alertConfigRequest) toDomain() domain.AlertConfig {
	return domain.AlertConfig{
		Metric:     r.Metric,
		Threshold:  r.Threshold,
		Comparison: domain.AlertComparison(r.Comparison),
		Duration:   time.Duration(r.Duration) * time.Millisecond,
		Enabled:    r.Enabled,
	}
}

// Status — GET: базовый статус, ?detailed=true — полный, ?metrics=true — срез.
func (h *SocketHandler) Status(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("detailed") == "true":
		writeJSON(w, http.StatusOK, h.status.DetailedHealth())
	case q.Get("metrics") == "true":
		writeJSON(w, http.StatusOK, h.status.Metrics())
	default:
		writeJSON(w, http.StatusOK, h.status.Health())
	}
}

// Action — POST: диспетчер админ-действий {action, data}.
func (h *SocketHandler) Action(w http.ResponseWriter, r *http.Request) {
	adminID, role, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "Invalid request body",
		})
		return
	}

	resp := actionResponse{Success: true}

	switch req.Action {
	case "execute_command":
		var cmd struct {
			Type    domain.CommandType     `json:"type"`
			Payload map[string]interface{} `json:"payload"`
		}
		if err := decodeData(req.Data, &cmd); err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		if _, err := h.admin.ExecuteCommand(r.Context(), adminID, role, cmd.Type, cmd.Payload); err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		resp.Message = fmt.Sprintf("Command %s executed successfully", cmd.Type)

	case "configure_alert":
		var cfg alertConfigRequest
		if err := decodeData(req.Data, &cfg); err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		if err := h.admin.ConfigureAlert(adminID, cfg.toDomain()); err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		resp.Message = fmt.Sprintf("Alert configured for metric: %s", cfg.Metric)

	case "set_rate_limit":
		var pl domain.SetRateLimitPayload
		if err := decodeData(req.Data, &pl); err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		target := domain.RateLimitTarget{UserID: pl.UserID, SocketID: pl.SocketID}
		if err := h.admin.SetRateLimit(target, pl.MaxMessages, time.Duration(pl.WindowMs)*time.Millisecond); err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		resp.Message = "Rate limit configured successfully"

	case "reset_circuit_breaker":
		svc, _ := req.Data["service"].(string)
		if svc == "" {
			h.writeActionError(w, r, adminID, req.Action, domain.NewValidationError("service", "required"))
			return
		}
		if err := h.admin.ResetBreaker(svc); err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		resp.Message = fmt.Sprintf("Circuit breaker reset for %s", svc)

	case "set_maintenance_mode":
		enabled, _ := req.Data["enabled"].(bool)
		cmdType := domain.CmdDisableMaintenance
		if enabled {
			cmdType = domain.CmdEnableMaintenance
		}
		payload := map[string]interface{}{}
		if msg, ok := req.Data["message"].(string); ok {
			payload["message"] = msg
		}
		result, err := h.admin.ExecuteCommand(r.Context(), adminID, role, cmdType, payload)
		if err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		resp.Message = result.Message

	case "force_disconnect_user":
		userID, _ := req.Data["userId"].(string)
		if userID == "" {
			h.writeActionError(w, r, adminID, req.Action, domain.NewValidationError("userId", "required"))
			return
		}
		result, err := h.admin.ExecuteCommand(r.Context(), adminID, role, domain.CmdDisconnectUser, req.Data)
		if err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		resp.Message = result.Message

	case "force_disconnect_socket":
		socketID, _ := req.Data["socketId"].(string)
		if socketID == "" {
			h.writeActionError(w, r, adminID, req.Action, domain.NewValidationError("socketId", "required"))
			return
		}
		result, err := h.admin.ExecuteCommand(r.Context(), adminID, role, domain.CmdDisconnectUser, req.Data)
		if err != nil {
			h.writeActionError(w, r, adminID, req.Action, err)
			return
		}
		resp.Message = result.Message

	case "get_connections":
		resp.Data = h.admin.Connections()

	case "get_metrics_history":
		resp.Data = h.admin.MetricsHistory()

	case "get_command_history":
		resp.Data = h.admin.CommandHistory()

	case "get_alert_configs":
		resp.Data = h.admin.AlertConfigs()

	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":          false,
			"error":            "Unknown action",
			"availableActions": availableActions,
		})
		return
	}

	h.logger.Info("Admin action executed",
		zap.String("admin_id", adminID),
		zap.String("action", req.Action),
		zap.String("user_agent", r.UserAgent()),
		zap.String("ip", r.RemoteAddr))

	writeJSON(w, http.StatusOK, resp)
}

// configRequest — пакетное обновление конфигурации (PUT).
type configRequest struct {
	Config struct {
		Alerts      []alertConfigRequest         `json:"alerts"`
		Maintenance *domain.MaintenanceState     `json:"maintenance"`
		RateLimits  []domain.SetRateLimitPayload `json:"rateLimits"`
	} `json:"config"`
}

// Configure — PUT: применяет набор конфигов одним запросом.
// Применение последовательное, первая ошибка останавливает обработку.
func (h *SocketHandler) Configure(w http.ResponseWriter, r *http.Request) {
	adminID, role, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "Invalid request body",
		})
		return
	}

	for _, cfg := range req.Config.Alerts {
		if err := h.admin.ConfigureAlert(adminID, cfg.toDomain()); err != nil {
			h.writeConfigError(w, r, adminID, err)
			return
		}
	}

	if m := req.Config.Maintenance; m != nil {
		cmdType := domain.CmdDisableMaintenance
		if m.Enabled {
			cmdType = domain.CmdEnableMaintenance
		}
		payload := map[string]interface{}{"message": m.Message}
		if _, err := h.admin.ExecuteCommand(r.Context(), adminID, role, cmdType, payload); err != nil {
			h.writeConfigError(w, r, adminID, err)
			return
		}
	}

	for _, rl := range req.Config.RateLimits {
		target := domain.RateLimitTarget{UserID: rl.UserID, SocketID: rl.SocketID}
		if err := h.admin.SetRateLimit(target, rl.MaxMessages, time.Duration(rl.WindowMs)*time.Millisecond); err != nil {
			h.writeConfigError(w, r, adminID, err)
			return
		}
	}

	h.logger.Info("Admin configuration updated",
		zap.String("admin_id", adminID),
		zap.String("user_agent", r.UserAgent()),
		zap.String("ip", r.RemoteAddr))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Configuration updated successfully",
		"timestamp": time.Now().UnixMilli(),
	})
}

// Emergency — DELETE: аварийные операции. Только SUPER_ADMIN.
func (h *SocketHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	adminID, role, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "Invalid request body",
		})
		return
	}

	var (
		result domain.CommandResult
		err    error
	)

	switch req.Action {
	case "emergency_shutdown":
		result, err = h.admin.EmergencyShutdown(r.Context(), adminID, role)
	case "disconnect_all_users":
		result, err = h.admin.DisconnectAllUsers(r.Context(), adminID, role)
	case "reset_all_circuit_breakers":
		result, err = h.admin.ResetAllBreakers(r.Context(), adminID, role)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":          false,
			"error":            "Unknown emergency action",
			"availableActions": availableEmergencyActions,
		})
		return
	}

	if err != nil {
		if errors.Is(err, domain.ErrInsufficientPrivilege) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Super admin access required"})
			return
		}
		h.logger.Error("Emergency action failed",
			zap.String("admin_id", adminID),
			zap.String("action", req.Action),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "Emergency action failed",
			"message": err.Error(),
		})
		return
	}

	h.logger.Warn("Emergency action executed",
		zap.String("admin_id", adminID),
		zap.String("action", req.Action),
		zap.String("user_agent", r.UserAgent()),
		zap.String("ip", r.RemoteAddr))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   result.Message,
		"timestamp": time.Now().UnixMilli(),
	})
}

// writeActionError раскладывает ошибку действия по HTTP-кодам.
// Отказы валидации и привилегий уже попали в security-лог внутри ядра.
func (h *SocketHandler) writeActionError(w http.ResponseWriter, r *http.Request, adminID, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientPrivilege):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Super admin access required"})
	case errors.Is(err, domain.ErrUnknownAction):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Unknown command type",
			"message": err.Error(),
		})
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Invalid request",
			"message": err.Error(),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   "Not found",
			"message": err.Error(),
		})
	default:
		h.logger.Error("Admin action failed",
			zap.String("admin_id", adminID),
			zap.String("action", action),
			zap.String("user_agent", r.UserAgent()),
			zap.String("ip", r.RemoteAddr),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "Admin action failed",
			"message": err.Error(),
		})
	}
}

func (h *SocketHandler) writeConfigError(w http.ResponseWriter, r *http.Request, adminID string, err error) {
	if domain.IsValidation(err) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Configuration update failed",
			"message": err.Error(),
		})
		return
	}
	h.logger.Error("Admin configuration update failed",
		zap.String("admin_id", adminID),
		zap.String("user_agent", r.UserAgent()),
		zap.String("ip", r.RemoteAddr),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"success": false,
		"error":   "Configuration update failed",
		"message": err.Error(),
	})
}

// decodeData прогоняет opaque map через JSON в типизированную структуру.
func decodeData(data map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.NewValidationError("data", err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewValidationError("data", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
