package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"github.com/xela07ax/chat-control-plane/internal/infra"
	"go.uber.org/zap"
)

// MaintenanceController — общесистемный флаг обслуживания.
// Переключение идемпотентно: повторный enable в том же состоянии — успех,
// при этом message обновляется, если передан.
// Состояние зеркалится в Redis, чтобы соседние инстансы сошлись.
type MaintenanceController struct {
	mu    sync.RWMutex
	state domain.MaintenanceState

	rdb    *redis.Client // nil — одиночный инстанс без синхронизации
	logger *zap.Logger
}

func NewMaintenanceController(rdb *redis.Client, logger *zap.Logger) *MaintenanceController {
	return &MaintenanceController{
		rdb:    rdb,
		logger: logger.With(zap.String("mod", "maintenance")),
	}
}

// Init подтягивает состояние из Redis при старте (теплый рестарт инстанса).
func (m *MaintenanceController) Init(ctx context.Context) error {
	if m.rdb == nil {
		return nil
	}
	raw, err := m.rdb.Get(ctx, infra.RedisKeyMaintenance).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	m.applySignal(raw)
	return nil
}

// StartListener держит локальный флаг в синхроне с сигналами других инстансов.
func (m *MaintenanceController) StartListener(ctx context.Context) {
	if m.rdb == nil {
		return
	}
	ListenSignalResilient(ctx, m.rdb, m.logger, infra.RedisChanMaintenance,
		func() error { return m.Init(ctx) },
		m.applySignal,
	)
}

// Формат сигнала: "on:<message>" / "off:".
func (m *MaintenanceController) applySignal(payload string) {
	parts := strings.SplitN(payload, ":", 2)
	enabled := parts[0] == "on"
	message := ""
	if len(parts) == 2 {
		message = parts[1]
	}

	m.mu.Lock()
	m.state = domain.MaintenanceState{Enabled: enabled, Message: message}
	m.mu.Unlock()
}

// Set переключает режим. Self-transition — no-op по состоянию,
// но message обновляется, если непустой.
func (m *MaintenanceController) Set(ctx context.Context, enabled bool, message string) domain.MaintenanceState {
	m.mu.Lock()
	if message != "" || !enabled {
		m.state.Message = message
	}
	m.state.Enabled = enabled
	state := m.state
	m.mu.Unlock()

	m.logger.Info("maintenance mode toggled",
		zap.Bool("enabled", state.Enabled),
		zap.String("message", state.Message))

	if m.rdb != nil {
		val := "off:"
		if state.Enabled {
			val = "on:" + state.Message
		}
		// Потеря сигнала не фатальна: соседи догонят на reconnect-синхронизации
		if err := m.rdb.Set(ctx, infra.RedisKeyMaintenance, val, 0).Err(); err != nil {
			m.logger.Warn("maintenance state mirror failed", zap.Error(err))
		}
		if err := m.rdb.Publish(ctx, infra.RedisChanMaintenance, val).Err(); err != nil {
			m.logger.Warn("maintenance signal delivery failed", zap.Error(err))
		}
	}
	return state
}

// State возвращает текущий снимок.
func (m *MaintenanceController) State() domain.MaintenanceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
