package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// captureArchive собирает все вытесненные в архив записи.
type captureArchive struct {
	records []domain.AdminCommand
}

func (a *captureArchive) Log(cmd domain.AdminCommand) {
	a.records = append(a.records, cmd)
}

func TestHistoryCommandTrimKeepsArchive(t *testing.T) {
	archive := &captureArchive{}
	h := NewHistoryStore(10, 3, archive, zap.NewNop())

	for i := 0; i < 5; i++ {
		h.RecordCommand(domain.AdminCommand{
			Type:    domain.CmdBroadcastMessage,
			AdminID: "admin-1",
			Status:  domain.CommandStatusSuccess,
		})
	}

	// Горячий хвост ограничен, но ни одна запись не потеряна: архив полный
	require.Len(t, h.GetCommandHistory(), 3)
	require.Len(t, archive.records, 5)
	require.Equal(t, int64(5), h.CommandsTotal())

	// Хвост содержит самые свежие записи
	tail := h.GetCommandHistory()
	require.Equal(t, uint64(3), tail[0].Seq)
	require.Equal(t, uint64(5), tail[2].Seq)
}

func TestHistorySeqMonotonic(t *testing.T) {
	h := NewHistoryStore(10, 10, nil, zap.NewNop())

	var last uint64
	for i := 0; i < 20; i++ {
		stored := h.RecordCommand(domain.AdminCommand{Type: domain.CmdClearRoom})
		require.Greater(t, stored.Seq, last)
		require.NotEmpty(t, stored.ID)
		last = stored.Seq
	}
}

func TestHistorySnapshotRing(t *testing.T) {
	h := NewHistoryStore(3, 10, nil, zap.NewNop())

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.RecordSnapshot(domain.MetricsSnapshot{
			Timestamp:         base.Add(time.Duration(i) * time.Minute),
			ActiveConnections: i,
		})
	}

	snaps := h.GetMetricsHistory()
	require.Len(t, snaps, 3)
	require.Equal(t, 2, snaps[0].ActiveConnections)
	require.Equal(t, 4, snaps[2].ActiveConnections)

	last, ok := h.LastSnapshot()
	require.True(t, ok)
	require.Equal(t, 4, last.ActiveConnections)
}

func TestHistoryLastSnapshotEmpty(t *testing.T) {
	h := NewHistoryStore(3, 10, nil, zap.NewNop())
	_, ok := h.LastSnapshot()
	require.False(t, ok)
}
