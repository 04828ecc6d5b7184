package service

import (
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"github.com/xela07ax/chat-control-plane/internal/engine"
)

// StatusService собирает картину здоровья сервера для GET-поверхности:
// грубый up/down для проб и развернутый отчет для админки.
type StatusService struct {
	registry    *engine.ConnectionRegistry
	breakers    *engine.BreakerBank
	limiter     *engine.RateLimiter
	alerts      *engine.AlertEngine
	maintenance *engine.MaintenanceController
	history     *engine.HistoryStore
	collector   *engine.Collector

	startedAt time.Time
}

func NewStatusService(
	registry *engine.ConnectionRegistry,
	breakers *engine.BreakerBank,
	limiter *engine.RateLimiter,
	alerts *engine.AlertEngine,
	maintenance *engine.MaintenanceController,
	history *engine.HistoryStore,
	collector *engine.Collector,
) *StatusService {
	return &StatusService{
		registry:    registry,
		breakers:    breakers,
		limiter:     limiter,
		alerts:      alerts,
		maintenance: maintenance,
		history:     history,
		collector:   collector,
		startedAt:   time.Now(),
	}
}

// Health — базовый статус. "degraded", если хотя бы один предохранитель
// разомкнут; режим обслуживания деградацией не считается.
func (s *StatusService) Health() domain.HealthStatus {
	total, _ := s.registry.Count()

	var degraded []string
	for dep, state := range s.breakers.States() {
		if state == "open" {
			degraded = append(degraded, dep)
		}
	}

	status := "ok"
	if len(degraded) > 0 {
		status = "degraded"
	}

	return domain.HealthStatus{
		Status:            status,
		ActiveConnections: total,
		Maintenance:       s.maintenance.State().Enabled,
		Degraded:          degraded,
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		Timestamp:         time.Now().UTC(),
	}
}

// DetailedHealth — полный отчет: базовый статус плюс предохранители,
// правила лимитера, конфиги алертов и последний срез метрик.
func (s *StatusService) DetailedHealth() domain.DetailedHealth {
	detailed := domain.DetailedHealth{
		HealthStatus: s.Health(),
		Breakers:     s.breakers.States(),
		RateLimits:   s.limiter.Rules(),
		AlertConfigs: s.alerts.ListConfigs(),
	}
	if snap, ok := s.history.LastSnapshot(); ok {
		detailed.LastSnapshot = &snap
	}
	return detailed
}

// Metrics — свежий срез по текущему состоянию (не последний записанный).
func (s *StatusService) Metrics() domain.MetricsSnapshot {
	return s.collector.Snapshot()
}
