package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

func newTestBank() *BreakerBank {
	return NewBreakerBank([]string{"database", "aiService", "retell"}, BreakerSettings{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 3,
	}, zap.NewNop())
}

func TestBreakerUnknownDependency(t *testing.T) {
	b := newTestBank()

	require.ErrorIs(t, b.Reset("ghost"), domain.ErrNotFound)
	require.ErrorIs(t, b.RecordFailure("ghost"), domain.ErrNotFound)

	_, err := b.Call(context.Background(), "ghost", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBank()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure("database"))
	}
	require.Equal(t, "open", b.States()["database"])

	// В open операция не вызывается вовсе
	called := false
	_, err := b.Call(context.Background(), "database", func(ctx context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, domain.ErrBreakerOpen)
	require.False(t, called)

	// Соседние предохранители не задеты
	require.Equal(t, "closed", b.States()["aiService"])
}

func TestBreakerSuccessInterruptsStreak(t *testing.T) {
	b := newTestBank()

	require.NoError(t, b.RecordFailure("database"))
	require.NoError(t, b.RecordFailure("database"))
	require.NoError(t, b.RecordSuccess("database"))
	require.NoError(t, b.RecordFailure("database"))
	require.NoError(t, b.RecordFailure("database"))

	// Серия прервана успехом: порог из 3 подряд не достигнут
	require.Equal(t, "closed", b.States()["database"])
}

func TestBreakerForceReset(t *testing.T) {
	b := newTestBank()

	var observed []gobreaker.State
	b.OnStateChange(func(dep string, state gobreaker.State) {
		if dep == "database" {
			observed = append(observed, state)
		}
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure("database"))
	}
	require.Equal(t, "open", b.States()["database"])

	require.NoError(t, b.Reset("database"))
	require.Equal(t, "closed", b.States()["database"])

	// Сброшенный предохранитель снова пропускает вызовы
	res, err := b.Call(context.Background(), "database", func(ctx context.Context) (interface{}, error) {
		return "pong", nil
	})
	require.NoError(t, err)
	require.Equal(t, "pong", res)

	require.Equal(t, gobreaker.StateClosed, observed[len(observed)-1])
}

func TestBreakerResetAll(t *testing.T) {
	b := newTestBank()

	for _, dep := range []string{"database", "aiService", "retell"} {
		for i := 0; i < 3; i++ {
			require.NoError(t, b.RecordFailure(dep))
		}
	}

	b.ResetAll()
	for dep, state := range b.States() {
		require.Equal(t, "closed", state, "dependency %s", dep)
	}
}

func TestBreakerCallPropagatesOpError(t *testing.T) {
	b := newTestBank()

	opErr := errors.New("downstream timeout")
	_, err := b.Call(context.Background(), "retell", func(ctx context.Context) (interface{}, error) {
		return nil, opErr
	})
	require.ErrorIs(t, err, opErr)
	require.NotErrorIs(t, err, domain.ErrBreakerOpen)
}
