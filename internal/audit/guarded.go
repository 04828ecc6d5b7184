package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"github.com/xela07ax/chat-control-plane/internal/engine"
	"golang.org/x/time/rate"
)

// GuardedStorage оборачивает сток аудита в Reliability-слой:
// лимитер + ретраи + предохранитель зависимости "database".
// Состояние предохранителя видно админам в detailed health и сбрасывается
// через reset_circuit_breaker.
type GuardedStorage struct {
	next     StorageInterface
	breakers *engine.BreakerBank
	limiter  *rate.Limiter
}

func NewGuardedStorage(next StorageInterface, breakers *engine.BreakerBank) *GuardedStorage {
	return &GuardedStorage{
		next:     next,
		breakers: breakers,
		// Потолок на частоту batch-записей, защита самой БД
		limiter: rate.NewLimiter(rate.Limit(50), 10),
	}
}

func (g *GuardedStorage) WriteBatch(ctx context.Context, records []domain.AdminCommand) (err error) {
	// 1. Rate Limiter
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("audit write throttled: %w", err)
	}

	// 2. Circuit Breaker + Retry
	_, err = g.breakers.Call(ctx, "database", func(ctx context.Context) (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.DelayType(retry.BackOffDelay),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return g.next.WriteBatch(tCtx, records)
		})
		return nil, retryErr
	})
	return err
}
