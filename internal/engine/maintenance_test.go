package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMaintenanceToggle(t *testing.T) {
	m := NewMaintenanceController(nil, zap.NewNop())
	ctx := context.Background()

	require.False(t, m.State().Enabled)

	state := m.Set(ctx, true, "Scheduled upgrade")
	require.True(t, state.Enabled)
	require.Equal(t, "Scheduled upgrade", state.Message)

	// Идемпотентность: повторный enable без сообщения сохраняет старое
	state = m.Set(ctx, true, "")
	require.True(t, state.Enabled)
	require.Equal(t, "Scheduled upgrade", state.Message)

	// Новое сообщение перекрывает старое
	state = m.Set(ctx, true, "Almost done")
	require.Equal(t, "Almost done", state.Message)

	state = m.Set(ctx, false, "")
	require.False(t, state.Enabled)
	require.Empty(t, state.Message)
}

func TestMaintenanceApplySignal(t *testing.T) {
	m := NewMaintenanceController(nil, zap.NewNop())

	m.applySignal("on:Database migration in progress")
	require.True(t, m.State().Enabled)
	require.Equal(t, "Database migration in progress", m.State().Message)

	m.applySignal("off:")
	require.False(t, m.State().Enabled)
}

func TestMaintenanceInitWithoutRedis(t *testing.T) {
	m := NewMaintenanceController(nil, zap.NewNop())
	require.NoError(t, m.Init(context.Background()))
}
