package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "chatctl"
)

// Ключи состояния
const (
	// RedisKeyMaintenance — зеркало режима обслуживания ("on:<message>" / "off:").
	RedisKeyMaintenance     = RedisNamespace + ":maintenance:state"
	RedisKeyLockMaintenance = RedisNamespace + ":lock:warmup:maintenance"
)

// Каналы Pub/Sub (события между инстансами)
const (
	// RedisChanMaintenance — трансляция переключений режима обслуживания.
	RedisChanMaintenance = RedisNamespace + ":maintenance-signal"
	// RedisChanDisconnect — принудительные отключения ("socket:<id>:<reason>" / "user:<id>:<reason>").
	RedisChanDisconnect = RedisNamespace + ":disconnect-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
