package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

func newTestAlerts() (*AlertEngine, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := NewAlertEngine(zap.NewNop())
	e.nowFn = clock.Now
	return e, clock
}

func TestAlertConfigureValidation(t *testing.T) {
	e, _ := newTestAlerts()

	err := e.Configure(domain.AlertConfig{Metric: "", Comparison: domain.CompareGT})
	require.True(t, domain.IsValidation(err))

	err = e.Configure(domain.AlertConfig{Metric: "x", Comparison: "gte"})
	require.True(t, domain.IsValidation(err))

	err = e.Configure(domain.AlertConfig{Metric: "x", Comparison: domain.CompareGT, Duration: -time.Second})
	require.True(t, domain.IsValidation(err))
}

func TestAlertEdgeTriggered(t *testing.T) {
	e, clock := newTestAlerts()

	require.NoError(t, e.Configure(domain.AlertConfig{
		Metric:     "active_connections",
		Threshold:  10,
		Comparison: domain.CompareGT,
		Duration:   30 * time.Second,
		Enabled:    true,
	}))

	// Пробой начался, но длительность еще не выдержана
	require.Empty(t, e.Evaluate(map[string]float64{"active_connections": 15}))

	clock.Advance(30 * time.Second)
	fired := e.Evaluate(map[string]float64{"active_connections": 15})
	require.Len(t, fired, 1)
	require.Equal(t, "active_connections", fired[0].Metric)
	require.Equal(t, float64(15), fired[0].Value)

	// Пробой продолжается — повторной сработки нет
	clock.Advance(30 * time.Second)
	require.Empty(t, e.Evaluate(map[string]float64{"active_connections": 20}))

	// Возврат в норму перевзводит правило
	require.Empty(t, e.Evaluate(map[string]float64{"active_connections": 5}))

	require.Empty(t, e.Evaluate(map[string]float64{"active_connections": 15}))
	clock.Advance(30 * time.Second)
	require.Len(t, e.Evaluate(map[string]float64{"active_connections": 15}), 1)
}

func TestAlertZeroDurationFiresImmediately(t *testing.T) {
	e, _ := newTestAlerts()

	require.NoError(t, e.Configure(domain.AlertConfig{
		Metric:     "rate_limited",
		Threshold:  100,
		Comparison: domain.CompareGT,
		Enabled:    true,
	}))

	require.Len(t, e.Evaluate(map[string]float64{"rate_limited": 150}), 1)
	require.Empty(t, e.Evaluate(map[string]float64{"rate_limited": 151}))
}

func TestAlertDisabledConfigDoesNotFire(t *testing.T) {
	e, _ := newTestAlerts()

	require.NoError(t, e.Configure(domain.AlertConfig{
		Metric:     "rate_limited",
		Threshold:  1,
		Comparison: domain.CompareGT,
		Enabled:    false,
	}))

	require.Empty(t, e.Evaluate(map[string]float64{"rate_limited": 100}))
}

func TestAlertReconfigureResetsBreach(t *testing.T) {
	e, clock := newTestAlerts()

	cfg := domain.AlertConfig{
		Metric:     "inbound_messages",
		Threshold:  10,
		Comparison: domain.CompareGT,
		Duration:   time.Minute,
		Enabled:    true,
	}
	require.NoError(t, e.Configure(cfg))
	require.Empty(t, e.Evaluate(map[string]float64{"inbound_messages": 50}))
	clock.Advance(50 * time.Second)

	// Upsert посреди пробоя: отсчет длительности начинается заново
	require.NoError(t, e.Configure(cfg))
	clock.Advance(20 * time.Second)
	require.Empty(t, e.Evaluate(map[string]float64{"inbound_messages": 50}))

	clock.Advance(time.Minute)
	require.Len(t, e.Evaluate(map[string]float64{"inbound_messages": 50}), 1)
}

func TestAlertComparisonModes(t *testing.T) {
	e, _ := newTestAlerts()

	require.NoError(t, e.Configure(domain.AlertConfig{
		Metric: "lt_metric", Threshold: 5, Comparison: domain.CompareLT, Enabled: true,
	}))
	require.NoError(t, e.Configure(domain.AlertConfig{
		Metric: "eq_metric", Threshold: 0, Comparison: domain.CompareEQ, Enabled: true,
	}))

	fired := e.Evaluate(map[string]float64{"lt_metric": 3, "eq_metric": 0})
	require.Len(t, fired, 2)

	// Значение строго на пороге — не пробой для lt
	require.Empty(t, e.Evaluate(map[string]float64{"lt_metric": 5, "eq_metric": 1}))
}

func TestAlertListConfigsSorted(t *testing.T) {
	e, _ := newTestAlerts()

	for _, m := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, e.Configure(domain.AlertConfig{
			Metric: m, Comparison: domain.CompareGT, Enabled: true,
		}))
	}

	configs := e.ListConfigs()
	require.Len(t, configs, 3)
	require.Equal(t, "alpha", configs[0].Metric)
	require.Equal(t, "mid", configs[1].Metric)
	require.Equal(t, "zeta", configs[2].Metric)
}
