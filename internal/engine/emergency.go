package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// Аварийные операции. Все требуют SUPER_ADMIN; отказ по привилегиям
// уходит в security-лог и НЕ оставляет записи в аудите команд.

func (p *Processor) requireSuperAdmin(adminID string, role domain.Role, action domain.CommandType) error {
	if role.Allows(domain.RoleSuperAdmin) {
		return nil
	}
	p.security.Warn("emergency action denied",
		zap.String("admin_id", adminID),
		zap.String("action", string(action)),
		zap.String("role", string(role)))
	return domain.ErrInsufficientPrivilege
}

// DisconnectAllUsers отключает все НЕ-админские подключения.
// Цели фиксируются снимком на момент вызова: подключившиеся позже не
// задеваются. Падение одной цели не прерывает остальных.
func (p *Processor) DisconnectAllUsers(ctx context.Context, adminID string, role domain.Role) (domain.CommandResult, error) {
	if err := p.requireSuperAdmin(adminID, role, domain.CmdDisconnectAll); err != nil {
		return domain.CommandResult{}, err
	}

	snapshot := p.registry.ListAll()
	targets := snapshot[:0]
	for _, conn := range snapshot {
		if !conn.IsAdmin {
			targets = append(targets, conn)
		}
	}

	start := time.Now()
	result := p.disconnectBatch(targets, "Emergency disconnect by admin")
	result.Message = fmt.Sprintf("Disconnected %d users", len(result.Succeeded))

	p.record(domain.AdminCommand{
		Type:       domain.CmdDisconnectAll,
		Payload:    map[string]interface{}{"targets": len(targets)},
		AdminID:    adminID,
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     result.Status,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
	})
	return result, nil
}

// ResetAllBreakers сбрасывает все предохранители разом.
func (p *Processor) ResetAllBreakers(ctx context.Context, adminID string, role domain.Role) (domain.CommandResult, error) {
	if err := p.requireSuperAdmin(adminID, role, domain.CmdResetAllBreakers); err != nil {
		return domain.CommandResult{}, err
	}

	start := time.Now()
	p.breakers.ResetAll()
	result := okResult("All circuit breakers reset")

	p.record(domain.AdminCommand{
		Type:       domain.CmdResetAllBreakers,
		Payload:    map[string]interface{}{"dependencies": p.breakers.Known()},
		AdminID:    adminID,
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     result.Status,
	})
	return result, nil
}

// EmergencyShutdown планирует асинхронную остановку и возвращается сразу.
// Успех здесь — успех ИНИЦИАЦИИ, а не завершения остановки.
func (p *Processor) EmergencyShutdown(ctx context.Context, adminID string, role domain.Role) (domain.CommandResult, error) {
	if err := p.requireSuperAdmin(adminID, role, domain.CmdEmergencyShutdown); err != nil {
		return domain.CommandResult{}, err
	}

	start := time.Now()
	correlationID := p.shutdown.Initiate(adminID)
	result := okResult("Emergency shutdown initiated")

	p.record(domain.AdminCommand{
		Type:      domain.CmdEmergencyShutdown,
		Payload:   map[string]interface{}{"correlation_id": correlationID},
		AdminID:   adminID,
		Timestamp: start,
		Status:    result.Status,
	})
	return result, nil
}
