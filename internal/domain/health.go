package domain

import "time"

// HealthStatus — грубый up/down для аптайм-проб (detailed=false).
type HealthStatus struct {
	Status            string    `json:"status"` // "ok" или "degraded"
	ActiveConnections int       `json:"active_connections"`
	Maintenance       bool      `json:"maintenance"`
	Degraded          []string  `json:"degraded,omitempty"` // Имена зависимостей с открытым предохранителем
	UptimeSeconds     int64     `json:"uptime_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}

// DetailedHealth — полная картина для админки (detailed=true).
type DetailedHealth struct {
	HealthStatus
	Breakers    map[string]string `json:"breakers"`   // dependency -> closed/open/half-open
	RateLimits  []RateLimitRule   `json:"rate_limits"`
	AlertConfigs []AlertConfig    `json:"alert_configs"`
	LastSnapshot *MetricsSnapshot `json:"last_snapshot,omitempty"`
}

// MetricsSnapshot — один срез здоровья сервера для rolling-истории.
// Счетчики кумулятивные с момента старта процесса.
type MetricsSnapshot struct {
	Timestamp         time.Time         `json:"timestamp"`
	ActiveConnections int               `json:"active_connections"`
	AdminConnections  int               `json:"admin_connections"`
	InboundMessages   int64             `json:"inbound_messages"`
	RateLimited       int64             `json:"rate_limited"`
	CommandsExecuted  int64             `json:"commands_executed"`
	BreakerStates     map[string]string `json:"breaker_states"`
	AuditBufferFill   int               `json:"audit_buffer_fill"`
}

// MaintenanceState — общесистемный singleton режима обслуживания.
type MaintenanceState struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"` // Показывается не-админским подключениям
}
