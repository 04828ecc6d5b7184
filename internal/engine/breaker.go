package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// BreakerSettings — тюнинг предохранителей (общий для всех зависимостей).
type BreakerSettings struct {
	MaxRequests         uint32        // Пробные запросы в half-open
	Interval            time.Duration // Окно сброса счетчиков в closed
	Timeout             time.Duration // Время до перехода open -> half-open
	ConsecutiveFailures uint32        // Порог открытия
}

// BreakerBank — по одному предохранителю на каждую именованную зависимость.
// Набор имен закрыт и задается при старте: reset по неизвестному имени —
// явная ошибка, а не тихий no-op.
type BreakerBank struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	settings BreakerSettings
	logger   *zap.Logger

	// Уведомление о смене состояния (метрики). Может быть nil.
	onStateChange func(dependency string, state gobreaker.State)
}

func NewBreakerBank(dependencies []string, settings BreakerSettings, logger *zap.Logger) *BreakerBank {
	b := &BreakerBank{
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(dependencies)),
		settings: settings,
		logger:   logger.With(zap.String("mod", "breakers")),
	}
	for _, name := range dependencies {
		b.breakers[name] = b.newBreaker(name)
	}
	return b
}

// OnStateChange подключает наблюдателя (прометеевский gauge). До старта трафика.
func (b *BreakerBank) OnStateChange(fn func(dependency string, state gobreaker.State)) {
	b.onStateChange = fn
}

func (b *BreakerBank) newBreaker(name string) *gobreaker.CircuitBreaker {
	threshold := b.settings.ConsecutiveFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: b.settings.MaxRequests,
		Interval:    b.settings.Interval,
		Timeout:     b.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(depName string, from, to gobreaker.State) {
			b.logger.Warn("breaker state change",
				zap.String("dependency", depName),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if b.onStateChange != nil {
				b.onStateChange(depName, to)
			}
		},
	})
}

func (b *BreakerBank) get(name string) (*gobreaker.CircuitBreaker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cb, ok := b.breakers[name]
	if !ok {
		return nil, fmt.Errorf("breaker %q: %w", name, domain.ErrNotFound)
	}
	return cb, nil
}

// Call исполняет операцию под защитой предохранителя зависимости.
// В open — мгновенный отказ ErrBreakerOpen без вызова операции.
func (b *BreakerBank) Call(ctx context.Context, name string, op func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	cb, err := b.get(name)
	if err != nil {
		return nil, err
	}

	res, err := cb.Execute(func() (interface{}, error) {
		return op(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", name, domain.ErrBreakerOpen)
		}
		return nil, err
	}
	return res, nil
}

// RecordSuccess / RecordFailure прогоняют результат внешнего вызова через
// машину состояний, когда сама операция исполнялась вне банка.
func (b *BreakerBank) RecordSuccess(name string) error {
	cb, err := b.get(name)
	if err != nil {
		return err
	}
	_, _ = cb.Execute(func() (interface{}, error) { return nil, nil })
	return nil
}

var errRecordedFailure = errors.New("recorded failure")

func (b *BreakerBank) RecordFailure(name string) error {
	cb, err := b.get(name)
	if err != nil {
		return err
	}
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errRecordedFailure })
	return nil
}

// Reset принудительно возвращает предохранитель в closed, минуя пробу.
// gobreaker не умеет форсированный сброс, поэтому инстанс просто заменяется
// свежим с теми же настройками. Единственный переход в обход штатной логики;
// всегда проходит через Admin Command Processor и попадает в аудит.
func (b *BreakerBank) Reset(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.breakers[name]; !ok {
		return fmt.Errorf("breaker %q: %w", name, domain.ErrNotFound)
	}
	b.breakers[name] = b.newBreaker(name)
	b.logger.Info("breaker force-reset to closed", zap.String("dependency", name))

	if b.onStateChange != nil {
		b.onStateChange(name, gobreaker.StateClosed)
	}
	return nil
}

// ResetAll сбрасывает все предохранители под одной блокировкой:
// наблюдатель не увидит частично сброшенного банка.
func (b *BreakerBank) ResetAll() {
	b.mu.Lock()
	for name := range b.breakers {
		b.breakers[name] = b.newBreaker(name)
		if b.onStateChange != nil {
			b.onStateChange(name, gobreaker.StateClosed)
		}
	}
	b.mu.Unlock()
	b.logger.Info("all breakers force-reset to closed")
}

// Known возвращает закрытый набор имен зависимостей.
func (b *BreakerBank) Known() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.breakers))
	for name := range b.breakers {
		out = append(out, name)
	}
	return out
}

// States — dependency -> closed/half-open/open (для detailed health).
func (b *BreakerBank) States() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.breakers))
	for name, cb := range b.breakers {
		out[name] = cb.State().String()
	}
	return out
}
