package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

func TestRegistryDuplicateSocketID(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())

	require.NoError(t, r.Register(domain.Connection{SocketID: "s1", UserID: "u1"}))

	// Дубликат не должен затереть существующую запись
	err := r.Register(domain.Connection{SocketID: "s1", UserID: "u2"})
	require.ErrorIs(t, err, domain.ErrDuplicateID)

	conn, ok := r.Find("s1")
	require.True(t, ok)
	require.Equal(t, "u1", conn.UserID)

	total, _ := r.Count()
	require.Equal(t, 1, total)
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())

	var hookCalls int
	r.OnUnregister(func(conn domain.Connection) { hookCalls++ })

	require.NoError(t, r.Register(domain.Connection{SocketID: "s1", UserID: "u1"}))

	r.Unregister("s1")
	r.Unregister("s1") // Повторный вызов — no-op
	r.Unregister("ghost")

	require.Equal(t, 1, hookCalls)
	_, ok := r.Find("s1")
	require.False(t, ok)
	require.Empty(t, r.FindByUser("u1"))
}

func TestRegistryFindByUser(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())

	require.NoError(t, r.Register(domain.Connection{SocketID: "s1", UserID: "u1"}))
	require.NoError(t, r.Register(domain.Connection{SocketID: "s2", UserID: "u1"}))
	require.NoError(t, r.Register(domain.Connection{SocketID: "s3", UserID: "u2"}))

	require.Len(t, r.FindByUser("u1"), 2)
	require.Len(t, r.FindByUser("u2"), 1)
	require.Nil(t, r.FindByUser("nobody"))

	r.Unregister("s2")
	require.Len(t, r.FindByUser("u1"), 1)
}

func TestRegistryRoomsAndCount(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())

	require.NoError(t, r.Register(domain.Connection{SocketID: "s1", UserID: "u1", IsAdmin: true}))
	require.NoError(t, r.Register(domain.Connection{SocketID: "s2", UserID: "u2", RoomID: "lobby"}))
	require.NoError(t, r.Register(domain.Connection{SocketID: "s3", UserID: "u3"}))

	r.SetRoom("s3", "lobby")
	require.Len(t, r.ListRoom("lobby"), 2)

	r.SetRoom("s3", "") // Выход из комнаты
	require.Len(t, r.ListRoom("lobby"), 1)

	total, admins := r.Count()
	require.Equal(t, 3, total)
	require.Equal(t, 1, admins)
	require.True(t, r.IsAdmin("s1"))
	require.False(t, r.IsAdmin("s2"))
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	require.NoError(t, r.Register(domain.Connection{SocketID: "s1", UserID: "u1"}))

	snapshot := r.ListAll()
	require.NoError(t, r.Register(domain.Connection{SocketID: "s2", UserID: "u2"}))

	// Подключения после снимка в нем не видны
	require.Len(t, snapshot, 1)
	require.Len(t, r.ListAll(), 2)
}
