package engine

import (
	"context"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// Collector периодически снимает срез здоровья сервера: пишет его в
// rolling-историю, обновляет Prometheus-гейджи и скармливает значения
// алерт-движку. Один и тот же снимок виден и админ-API, и алертам —
// расхождений между "что видим" и "на что алертим" нет.
type Collector struct {
	registry *ConnectionRegistry
	limiter  *RateLimiter
	breakers *BreakerBank
	alerts   *AlertEngine
	history  *HistoryStore
	metrics  *Metrics

	// Семплеры чужих подсистем: заполненность буфера аудита и счетчик
	// входящих сообщений гейтвея
	bufferFill func() int
	inbound    func() int64

	interval time.Duration
	logger   *zap.Logger
}

func NewCollector(
	registry *ConnectionRegistry,
	limiter *RateLimiter,
	breakers *BreakerBank,
	alerts *AlertEngine,
	history *HistoryStore,
	metrics *Metrics,
	bufferFill func() int,
	inbound func() int64,
	interval time.Duration,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		registry:   registry,
		limiter:    limiter,
		breakers:   breakers,
		alerts:     alerts,
		history:    history,
		metrics:    metrics,
		bufferFill: bufferFill,
		inbound:    inbound,
		interval:   interval,
		logger:     logger.Named("collector"),
	}
}

// Snapshot строит свежий срез по текущему состоянию компонентов.
func (c *Collector) Snapshot() domain.MetricsSnapshot {
	total, admins := c.registry.Count()
	return domain.MetricsSnapshot{
		Timestamp:         time.Now().UTC(),
		ActiveConnections: total,
		AdminConnections:  admins,
		InboundMessages:   c.inbound(),
		RateLimited:       c.limiter.LimitedTotal(),
		CommandsExecuted:  c.history.CommandsTotal(),
		BreakerStates:     c.breakers.States(),
		AuditBufferFill:   c.bufferFill(),
	}
}

// Collect — один тик: снимок в историю, гейджи, оценка алертов.
func (c *Collector) Collect() {
	snap := c.Snapshot()
	c.history.RecordSnapshot(snap)

	c.metrics.ActiveConnections.Set(float64(snap.ActiveConnections))
	c.metrics.AdminConnections.Set(float64(snap.AdminConnections))
	c.metrics.AuditBufferFill.Set(float64(snap.AuditBufferFill))

	openBreakers := 0
	for _, state := range snap.BreakerStates {
		if state == "open" {
			openBreakers++
		}
	}

	fired := c.alerts.Evaluate(map[string]float64{
		"active_connections": float64(snap.ActiveConnections),
		"admin_connections":  float64(snap.AdminConnections),
		"inbound_messages":   float64(snap.InboundMessages),
		"rate_limited":       float64(snap.RateLimited),
		"commands_executed":  float64(snap.CommandsExecuted),
		"audit_buffer_fill":  float64(snap.AuditBufferFill),
		"open_breakers":      float64(openBreakers),
	})
	for _, alert := range fired {
		c.metrics.AlertsFired.WithLabelValues(alert.Metric).Inc()
	}
}

// Run крутит цикл сбора до отмены контекста.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect() // Первый срез сразу, не ждем первый тик

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("metrics collector stopped")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}
