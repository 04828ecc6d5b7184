package service

import (
	"context"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"github.com/xela07ax/chat-control-plane/internal/engine"
)

// AdminService — фасад привилегированной поверхности поверх ядра.
// Команды с аудитом идут через Processor; конфигурационные действия
// (алерты, лимиты) меняют компоненты напрямую, как и чтение данных.
type AdminService struct {
	processor *engine.Processor
	registry  *engine.ConnectionRegistry
	limiter   *engine.RateLimiter
	breakers  *engine.BreakerBank
	alerts    *engine.AlertEngine
	history   *engine.HistoryStore
}

func NewAdminService(
	processor *engine.Processor,
	registry *engine.ConnectionRegistry,
	limiter *engine.RateLimiter,
	breakers *engine.BreakerBank,
	alerts *engine.AlertEngine,
	history *engine.HistoryStore,
) *AdminService {
	return &AdminService{
		processor: processor,
		registry:  registry,
		limiter:   limiter,
		breakers:  breakers,
		alerts:    alerts,
		history:   history,
	}
}

// ExecuteCommand — типизированная команда с полным циклом валидации и аудита.
func (s *AdminService) ExecuteCommand(ctx context.Context, adminID string, role domain.Role, cmdType domain.CommandType, payload map[string]interface{}) (domain.CommandResult, error) {
	return s.processor.ExecuteCommand(ctx, adminID, role, cmdType, payload)
}

// ConfigureAlert регистрирует/обновляет пороговое правило.
func (s *AdminService) ConfigureAlert(adminID string, cfg domain.AlertConfig) error {
	cfg.UpdatedBy = adminID
	cfg.UpdatedAt = time.Now().UTC()
	return s.alerts.Configure(cfg)
}

// SetRateLimit задает индивидуальный лимит для пользователя или сокета.
func (s *AdminService) SetRateLimit(target domain.RateLimitTarget, maxMessages int, window time.Duration) error {
	if !target.Valid() {
		return domain.NewValidationError("target", "exactly one of userId/socketId must be set")
	}
	if maxMessages <= 0 {
		return domain.NewValidationError("maxMessages", "must be positive")
	}
	if window <= 0 {
		return domain.NewValidationError("windowMs", "must be positive")
	}
	return s.limiter.Configure(target, maxMessages, window)
}

// ResetBreaker сбрасывает предохранитель одной зависимости.
func (s *AdminService) ResetBreaker(service string) error {
	return s.breakers.Reset(service)
}

func (s *AdminService) Connections() []domain.Connection {
	return s.registry.ListAll()
}

func (s *AdminService) MetricsHistory() []domain.MetricsSnapshot {
	return s.history.GetMetricsHistory()
}

func (s *AdminService) CommandHistory() []domain.AdminCommand {
	return s.history.GetCommandHistory()
}

func (s *AdminService) AlertConfigs() []domain.AlertConfig {
	return s.alerts.ListConfigs()
}

// Аварийная поверхность (DELETE). Привилегии проверяет сам Processor.

func (s *AdminService) DisconnectAllUsers(ctx context.Context, adminID string, role domain.Role) (domain.CommandResult, error) {
	return s.processor.DisconnectAllUsers(ctx, adminID, role)
}

func (s *AdminService) ResetAllBreakers(ctx context.Context, adminID string, role domain.Role) (domain.CommandResult, error) {
	return s.processor.ResetAllBreakers(ctx, adminID, role)
}

func (s *AdminService) EmergencyShutdown(ctx context.Context, adminID string, role domain.Role) (domain.CommandResult, error) {
	return s.processor.EmergencyShutdown(ctx, adminID, role)
}
