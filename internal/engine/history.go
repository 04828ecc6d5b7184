package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// CommandArchive — внешний сток для вытесняемых записей аудита
// (асинхронный батч-писатель в Postgres). Политика вытеснения явная:
// сначала архив, потом trim — записи не теряются молча.
type CommandArchive interface {
	Log(cmd domain.AdminCommand)
}

// HistoryStore — rolling-буфер срезов метрик + append-only журнал команд.
// Порядок записей журнала фиксируется атомарным Seq и после вставки
// не меняется.
type HistoryStore struct {
	mu        sync.RWMutex
	snapshots []domain.MetricsSnapshot
	commands  []domain.AdminCommand

	maxSnapshots int
	maxCommands  int // Размер горячего хвоста в памяти; старое уходит в архив

	seq     atomic.Uint64
	total   atomic.Int64
	archive CommandArchive // Может быть nil (без персистентности)
	logger  *zap.Logger
}

func NewHistoryStore(maxSnapshots, maxCommands int, archive CommandArchive, logger *zap.Logger) *HistoryStore {
	return &HistoryStore{
		snapshots:    make([]domain.MetricsSnapshot, 0, maxSnapshots),
		commands:     make([]domain.AdminCommand, 0, maxCommands),
		maxSnapshots: maxSnapshots,
		maxCommands:  maxCommands,
		archive:      archive,
		logger:       logger.With(zap.String("mod", "history")),
	}
}

// RecordSnapshot добавляет срез, вытесняя самый старый за пределами retention.
func (h *HistoryStore) RecordSnapshot(s domain.MetricsSnapshot) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	h.mu.Lock()
	h.snapshots = append(h.snapshots, s)
	if len(h.snapshots) > h.maxSnapshots {
		h.snapshots = h.snapshots[len(h.snapshots)-h.maxSnapshots:]
	}
	h.mu.Unlock()
}

// RecordCommand присваивает записи ID/Seq и добавляет ее в журнал.
// Каждая запись сразу уходит в архив, поэтому trim хвоста безопасен.
func (h *HistoryStore) RecordCommand(cmd domain.AdminCommand) domain.AdminCommand {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	cmd.Seq = h.seq.Add(1)
	h.total.Add(1)

	if h.archive != nil {
		h.archive.Log(cmd)
	}

	h.mu.Lock()
	h.commands = append(h.commands, cmd)
	if len(h.commands) > h.maxCommands {
		h.commands = h.commands[len(h.commands)-h.maxCommands:]
	}
	h.mu.Unlock()

	return cmd
}

// GetMetricsHistory возвращает копию буфера срезов (старые -> новые).
func (h *HistoryStore) GetMetricsHistory() []domain.MetricsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.MetricsSnapshot, len(h.snapshots))
	copy(out, h.snapshots)
	return out
}

// GetCommandHistory возвращает копию горячего хвоста журнала команд.
func (h *HistoryStore) GetCommandHistory() []domain.AdminCommand {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.AdminCommand, len(h.commands))
	copy(out, h.commands)
	return out
}

// LastSnapshot — последний срез, если есть.
func (h *HistoryStore) LastSnapshot() (domain.MetricsSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.snapshots) == 0 {
		return domain.MetricsSnapshot{}, false
	}
	return h.snapshots[len(h.snapshots)-1], true
}

// CommandsTotal — кумулятивное число исполненных команд (для метрик).
func (h *HistoryStore) CommandsTotal() int64 {
	return h.total.Load()
}
