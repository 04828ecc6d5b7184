package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// RateLimiter — скользящее окно по таймстемпам на цель (userId или socketId).
// Выбран журнал таймстемпов, а не token bucket: контракт требует строгой
// границы "не более maxMessages в ЛЮБОМ интервале длины window".
// Лимитер сам никого не отключает — решение за вызывающим.
type RateLimiter struct {
	mu    sync.Mutex
	rules map[string]domain.RateLimitRule // key -> правило
	hits  map[string][]time.Time          // key -> таймстемпы в окне

	defaultMax    int
	defaultWindow time.Duration

	limited atomic.Int64 // Счетчик отказов для метрик

	logger *zap.Logger
	nowFn  func() time.Time // Подменяется в тестах
}

func NewRateLimiter(defaultMax int, defaultWindow time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		rules:         make(map[string]domain.RateLimitRule),
		hits:          make(map[string][]time.Time),
		defaultMax:    defaultMax,
		defaultWindow: defaultWindow,
		logger:        logger.With(zap.String("mod", "ratelimit")),
		nowFn:         time.Now,
	}
}

// Configure заменяет существующее правило для цели (last-write-wins).
func (l *RateLimiter) Configure(target domain.RateLimitTarget, maxMessages int, window time.Duration) error {
	if !target.Valid() {
		return domain.NewValidationError("target", "exactly one of userId/socketId must be set")
	}
	if maxMessages <= 0 {
		return domain.NewValidationError("maxMessages", "must be positive")
	}
	if window <= 0 {
		return domain.NewValidationError("windowMs", "must be positive")
	}

	rule := domain.RateLimitRule{
		Target:      target,
		MaxMessages: maxMessages,
		Window:      window,
		UpdatedAt:   l.nowFn(),
	}

	l.mu.Lock()
	l.rules[target.Key()] = rule
	// Счетчики старого правила сбрасываем: новое окно — новый бюджет
	delete(l.hits, target.Key())
	l.mu.Unlock()

	l.logger.Info("rate limit configured",
		zap.String("target", target.Key()),
		zap.Int("max_messages", maxMessages),
		zap.Duration("window", window))
	return nil
}

// CheckAndConsume вызывается на каждом входящем сообщении цели.
// Гарантия: в любом интервале длины window не более maxMessages allowed.
func (l *RateLimiter) CheckAndConsume(target domain.RateLimitTarget) domain.RateDecision {
	key := target.Key()
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	max, window := l.defaultMax, l.defaultWindow
	if rule, ok := l.rules[key]; ok {
		max, window = rule.MaxMessages, rule.Window
	}

	// Вычищаем таймстемпы, выпавшие из окна
	stamps := l.hits[key]
	valid := stamps[:0]
	for _, t := range stamps {
		if now.Sub(t) < window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= max {
		l.hits[key] = valid
		l.limited.Add(1)
		// Самый старый таймстемп освободит слот первым
		retryAfter := window - now.Sub(valid[0])
		return domain.RateDecision{Allowed: false, RetryAfter: retryAfter}
	}

	l.hits[key] = append(valid, now)
	return domain.RateDecision{Allowed: true}
}

// Allow — проверка для входящего сообщения подключения.
// Приоритет правил: socket-scoped > user-scoped > дефолт (по сокету).
func (l *RateLimiter) Allow(userID, socketID string) domain.RateDecision {
	socketTarget := domain.RateLimitTarget{SocketID: socketID}
	userTarget := domain.RateLimitTarget{UserID: userID}

	l.mu.Lock()
	_, hasSocketRule := l.rules[socketTarget.Key()]
	_, hasUserRule := l.rules[userTarget.Key()]
	l.mu.Unlock()

	switch {
	case hasSocketRule:
		return l.CheckAndConsume(socketTarget)
	case hasUserRule && userID != "":
		return l.CheckAndConsume(userTarget)
	default:
		return l.CheckAndConsume(socketTarget)
	}
}

// DropSocketRule удаляет socket-scoped правило и счетчики при дисконнекте.
// User-scoped правила переживают реконнекты и остаются нетронутыми.
func (l *RateLimiter) DropSocketRule(socketID string) {
	key := domain.RateLimitTarget{SocketID: socketID}.Key()
	l.mu.Lock()
	delete(l.rules, key)
	delete(l.hits, key)
	l.mu.Unlock()
}

// Rules возвращает снимок активных правил (для detailed health).
func (l *RateLimiter) Rules() []domain.RateLimitRule {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.RateLimitRule, 0, len(l.rules))
	for _, r := range l.rules {
		out = append(out, r)
	}
	return out
}

// LimitedTotal — кумулятивное число отказов (для метрик/снапшотов).
func (l *RateLimiter) LimitedTotal() int64 {
	return l.limited.Load()
}
