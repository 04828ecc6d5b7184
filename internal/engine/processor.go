package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// Transport — то, что контрол-плейн умеет делать с живыми сокетами.
// Реализуется WebSocket-гейтвеем; в тестах подменяется двойником.
type Transport interface {
	// Disconnect закрывает сокет, предварительно отправив причину.
	Disconnect(socketID, reason string) error
	// Send доставляет событие одному сокету.
	Send(socketID, event string, payload interface{}) error
}

// Processor — ядро координации привилегированных операций.
// Валидация и привилегии решаются ДО любых побочных эффектов и не попадают
// в журнал аудита; исполненные команды (включая неуспешные) журналируются
// ровно один раз.
type Processor struct {
	registry    *ConnectionRegistry
	limiter     *RateLimiter
	breakers    *BreakerBank
	alerts      *AlertEngine
	maintenance *MaintenanceController
	history     *HistoryStore
	transport   Transport
	shutdown    *ShutdownCoordinator

	metrics  *Metrics
	logger   *zap.Logger
	security *zap.Logger // Отдельный лог ИБ: отказы привилегий и валидации
}

func NewProcessor(
	registry *ConnectionRegistry,
	limiter *RateLimiter,
	breakers *BreakerBank,
	alerts *AlertEngine,
	maintenance *MaintenanceController,
	history *HistoryStore,
	transport Transport,
	shutdown *ShutdownCoordinator,
	metrics *Metrics,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		registry:    registry,
		limiter:     limiter,
		breakers:    breakers,
		alerts:      alerts,
		maintenance: maintenance,
		history:     history,
		transport:   transport,
		shutdown:    shutdown,
		metrics:     metrics,
		logger:      logger.Named("processor"),
		security:    logger.Named("security"),
	}
}

// ExecuteCommand валидирует и исполняет одну админ-команду.
// Ошибка валидации/неизвестный тип — отказ без аудита (security-лог).
// Сбой исполнения — команда все равно в аудите, со статусом FAILED.
func (p *Processor) ExecuteCommand(ctx context.Context, adminID string, role domain.Role, cmdType domain.CommandType, payload map[string]interface{}) (domain.CommandResult, error) {
	if _, known := domain.KnownCommandTypes[cmdType]; !known {
		p.security.Warn("unknown command type rejected",
			zap.String("admin_id", adminID),
			zap.String("type", string(cmdType)))
		return domain.CommandResult{}, fmt.Errorf("command type %q: %w", cmdType, domain.ErrUnknownAction)
	}

	if !role.Allows(domain.RoleAdmin) {
		p.security.Warn("privilege denied",
			zap.String("admin_id", adminID),
			zap.String("type", string(cmdType)),
			zap.String("role", string(role)))
		return domain.CommandResult{}, domain.ErrInsufficientPrivilege
	}

	// Валидация payload строго по типу, до каких-либо побочных эффектов
	exec, err := p.prepare(cmdType, payload)
	if err != nil {
		p.security.Warn("command payload rejected",
			zap.String("admin_id", adminID),
			zap.String("type", string(cmdType)),
			zap.Error(err))
		return domain.CommandResult{}, err
	}

	start := time.Now()
	result, execErr := exec(ctx)

	record := domain.AdminCommand{
		Type:       cmdType,
		Payload:    payload,
		AdminID:    adminID,
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     result.Status,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
	}
	if execErr != nil {
		record.Status = domain.CommandStatusFailed
		record.Error = execErr.Error()
		result.Status = domain.CommandStatusFailed
	}
	p.record(record)

	if execErr != nil {
		return result, execErr
	}
	return result, nil
}

// executeFn — уже проверенная команда, готовая к исполнению.
type executeFn func(ctx context.Context) (domain.CommandResult, error)

// prepare декодирует opaque-payload в типизированную структуру команды
// и возвращает замыкание-исполнитель. Ошибки здесь — ValidationError.
func (p *Processor) prepare(cmdType domain.CommandType, payload map[string]interface{}) (executeFn, error) {
	switch cmdType {
	case domain.CmdDisconnectUser:
		var pl domain.DisconnectUserPayload
		if err := decodePayload(payload, &pl); err != nil {
			return nil, err
		}
		var spl domain.DisconnectSocketPayload
		if err := decodePayload(payload, &spl); err != nil {
			return nil, err
		}
		if pl.Reason == "" {
			pl.Reason = "Disconnected by admin"
		}
		// Цель задается userId (все сокеты пользователя) или socketId
		if pl.UserID != "" {
			return func(ctx context.Context) (domain.CommandResult, error) {
				return p.disconnectUser(pl.UserID, pl.Reason)
			}, nil
		}
		if spl.SocketID != "" {
			return func(ctx context.Context) (domain.CommandResult, error) {
				return p.disconnectSocket(spl.SocketID, pl.Reason)
			}, nil
		}
		return nil, domain.NewValidationError("userId", "required")

	case domain.CmdBroadcastMessage:
		var pl domain.BroadcastPayload
		if err := decodePayload(payload, &pl); err != nil {
			return nil, err
		}
		if pl.Message == "" {
			return nil, domain.NewValidationError("message", "required")
		}
		if pl.Event == "" {
			pl.Event = "announcement"
		}
		return func(ctx context.Context) (domain.CommandResult, error) {
			return p.broadcast(pl)
		}, nil

	case domain.CmdClearRoom:
		var pl domain.ClearRoomPayload
		if err := decodePayload(payload, &pl); err != nil {
			return nil, err
		}
		if pl.RoomID == "" {
			return nil, domain.NewValidationError("roomId", "required")
		}
		return func(ctx context.Context) (domain.CommandResult, error) {
			return p.clearRoom(pl.RoomID)
		}, nil

	case domain.CmdResetCircuitBreaker:
		var pl domain.ResetBreakerPayload
		if err := decodePayload(payload, &pl); err != nil {
			return nil, err
		}
		if pl.Service == "" {
			return nil, domain.NewValidationError("service", "required")
		}
		return func(ctx context.Context) (domain.CommandResult, error) {
			if err := p.breakers.Reset(pl.Service); err != nil {
				return domain.CommandResult{}, err
			}
			return okResult(fmt.Sprintf("Circuit breaker reset for %s", pl.Service)), nil
		}, nil

	case domain.CmdEnableMaintenance:
		var pl domain.MaintenancePayload
		if err := decodePayload(payload, &pl); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (domain.CommandResult, error) {
			return p.setMaintenance(ctx, true, pl.Message)
		}, nil

	case domain.CmdDisableMaintenance:
		return func(ctx context.Context) (domain.CommandResult, error) {
			return p.setMaintenance(ctx, false, "")
		}, nil

	case domain.CmdSetRateLimit:
		var pl domain.SetRateLimitPayload
		if err := decodePayload(payload, &pl); err != nil {
			return nil, err
		}
		target := domain.RateLimitTarget{UserID: pl.UserID, SocketID: pl.SocketID}
		if !target.Valid() {
			return nil, domain.NewValidationError("target", "exactly one of userId/socketId must be set")
		}
		if pl.MaxMessages <= 0 {
			return nil, domain.NewValidationError("maxMessages", "must be positive")
		}
		if pl.WindowMs <= 0 {
			return nil, domain.NewValidationError("windowMs", "must be positive")
		}
		return func(ctx context.Context) (domain.CommandResult, error) {
			if err := p.limiter.Configure(target, pl.MaxMessages, time.Duration(pl.WindowMs)*time.Millisecond); err != nil {
				return domain.CommandResult{}, err
			}
			return okResult("Rate limit configured successfully"), nil
		}, nil
	}

	return nil, fmt.Errorf("command type %q: %w", cmdType, domain.ErrUnknownAction)
}

func (p *Processor) disconnectUser(userID, reason string) (domain.CommandResult, error) {
	conns := p.registry.FindByUser(userID)
	if len(conns) == 0 {
		return domain.CommandResult{}, fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	result := p.disconnectBatch(conns, reason)
	result.Message = fmt.Sprintf("User %s disconnected", userID)
	return result, nil
}

func (p *Processor) disconnectSocket(socketID, reason string) (domain.CommandResult, error) {
	conn, ok := p.registry.Find(socketID)
	if !ok {
		return domain.CommandResult{}, fmt.Errorf("socket %q: %w", socketID, domain.ErrNotFound)
	}
	if err := p.transport.Disconnect(conn.SocketID, reason); err != nil {
		return domain.CommandResult{}, err
	}
	result := okResult(fmt.Sprintf("Socket %s disconnected", socketID))
	result.Succeeded = []string{socketID}
	return result, nil
}

// disconnectBatch обрабатывает ВЕСЬ набор целей: падение одной цели
// не прерывает остальных. Снимок целей берет вызывающий.
func (p *Processor) disconnectBatch(conns []domain.Connection, reason string) domain.CommandResult {
	result := domain.CommandResult{Status: domain.CommandStatusSuccess}
	for _, conn := range conns {
		if err := p.transport.Disconnect(conn.SocketID, reason); err != nil {
			result.Failed = append(result.Failed, domain.TargetFailure{
				Target: conn.SocketID,
				Reason: err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, conn.SocketID)
	}
	if len(result.Failed) > 0 {
		result.Status = domain.CommandStatusPartial
		if len(result.Succeeded) == 0 {
			result.Status = domain.CommandStatusFailed
		}
	}
	return result
}

func (p *Processor) broadcast(pl domain.BroadcastPayload) (domain.CommandResult, error) {
	targets := p.registry.ListAll()
	if pl.RoomID != "" {
		targets = p.registry.ListRoom(pl.RoomID)
	}

	result := domain.CommandResult{Status: domain.CommandStatusSuccess}
	for _, conn := range targets {
		if err := p.transport.Send(conn.SocketID, pl.Event, map[string]interface{}{
			"message":   pl.Message,
			"timestamp": time.Now().UTC(),
		}); err != nil {
			result.Failed = append(result.Failed, domain.TargetFailure{Target: conn.SocketID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, conn.SocketID)
	}
	if len(result.Failed) > 0 {
		result.Status = domain.CommandStatusPartial
	}
	result.Message = fmt.Sprintf("Broadcast delivered to %d connections", len(result.Succeeded))
	return result, nil
}

func (p *Processor) clearRoom(roomID string) (domain.CommandResult, error) {
	members := p.registry.ListRoom(roomID)
	result := domain.CommandResult{Status: domain.CommandStatusSuccess}
	for _, conn := range members {
		p.registry.SetRoom(conn.SocketID, "")
		if err := p.transport.Send(conn.SocketID, "room:cleared", map[string]interface{}{"roomId": roomID}); err != nil {
			result.Failed = append(result.Failed, domain.TargetFailure{Target: conn.SocketID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, conn.SocketID)
	}
	if len(result.Failed) > 0 {
		result.Status = domain.CommandStatusPartial
	}
	result.Message = fmt.Sprintf("Room %s cleared (%d participants)", roomID, len(members))
	return result, nil
}

// setMaintenance идемпотентен: повторный вызов в том же состоянии — успех.
// При включении не-админские сокеты получают уведомление.
func (p *Processor) setMaintenance(ctx context.Context, enabled bool, message string) (domain.CommandResult, error) {
	state := p.maintenance.Set(ctx, enabled, message)

	if enabled {
		for _, conn := range p.registry.ListAll() {
			if conn.IsAdmin {
				continue
			}
			// Недоставленное уведомление не делает команду неуспешной
			_ = p.transport.Send(conn.SocketID, "maintenance", map[string]interface{}{
				"enabled": true,
				"message": state.Message,
			})
		}
	}

	word := "disabled"
	if enabled {
		word = "enabled"
	}
	return okResult(fmt.Sprintf("Maintenance mode %s", word)), nil
}

// record добавляет запись аудита и обновляет метрики.
func (p *Processor) record(cmd domain.AdminCommand) {
	stored := p.history.RecordCommand(cmd)
	p.metrics.CommandsTotal.WithLabelValues(string(cmd.Type), cmd.Status).Inc()
	p.logger.Info("admin command executed",
		zap.String("command_id", stored.ID),
		zap.Uint64("seq", stored.Seq),
		zap.String("type", string(cmd.Type)),
		zap.String("admin_id", cmd.AdminID),
		zap.String("status", cmd.Status))
}

func okResult(message string) domain.CommandResult {
	return domain.CommandResult{Status: domain.CommandStatusSuccess, Message: message}
}

// decodePayload прогоняет opaque map через JSON в типизированную структуру.
func decodePayload(payload map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.NewValidationError("payload", err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewValidationError("payload", err.Error())
	}
	return nil
}
