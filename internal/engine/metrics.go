package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

type Metrics struct {
	// Traffic: живые подключения
	ActiveConnections prometheus.Gauge
	AdminConnections  prometheus.Gauge

	// Traffic: входящие сообщения гейтвея
	InboundMessages prometheus.Counter

	// Errors: отказы лимитера
	RateLimited prometheus.Counter

	// Audit: исполненные админ-команды
	CommandsTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge

	// Сработки порогов Alert Engine
	AlertsFired *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ActiveConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "chatctl_active_connections",
			Help: "Number of live realtime connections.",
		}),

		AdminConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "chatctl_admin_connections",
			Help: "Number of live admin connections.",
		}),

		InboundMessages: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "chatctl_inbound_messages_total",
			Help: "Total number of inbound gateway messages.",
		}),

		RateLimited: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "chatctl_rate_limited_total",
			Help: "Total number of messages rejected by the rate limiter.",
		}),

		CommandsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chatctl_admin_commands_total",
			Help: "Total number of executed admin commands by type and status.",
		}, []string{"type", "status"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatctl_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"dependency"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "chatctl_audit_buffer_utilization",
			Help: "Current number of records in audit buffer.",
		}),

		AlertsFired: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chatctl_alerts_fired_total",
			Help: "Total number of fired threshold alerts.",
		}, []string{"metric"}),
	}
}

// ObserveBreakerState транслирует состояние gobreaker в gauge.
func (m *Metrics) ObserveBreakerState(dependency string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(dependency).Set(v)
}
