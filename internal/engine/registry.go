package engine

import (
	"sync"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// ConnectionRegistry — единственный источник правды о живых сокетах.
// Никакой другой компонент не ведет собственный учет liveness.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	conns  map[string]domain.Connection // socketID -> connection
	byUser map[string]map[string]struct{}
	logger *zap.Logger

	// Хук вызывается после успешного Unregister (например, чтобы
	// сбросить socket-scoped правила лимитера). Без блокировки registry.
	onUnregister func(conn domain.Connection)
}

func NewConnectionRegistry(logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[string]domain.Connection),
		byUser: make(map[string]map[string]struct{}),
		logger: logger.With(zap.String("mod", "registry")),
	}
}

// OnUnregister регистрирует хук очистки. Вызывать до старта трафика.
func (r *ConnectionRegistry) OnUnregister(fn func(conn domain.Connection)) {
	r.onUnregister = fn
}

// Register добавляет новое подключение.
// Дубликат socketID — ошибка без какой-либо мутации состояния.
func (r *ConnectionRegistry) Register(conn domain.Connection) error {
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = time.Now()
	}
	if conn.LastActivityAt.IsZero() {
		conn.LastActivityAt = conn.ConnectedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.SocketID]; exists {
		return domain.ErrDuplicateID
	}

	r.conns[conn.SocketID] = conn
	if conn.UserID != "" {
		set, ok := r.byUser[conn.UserID]
		if !ok {
			set = make(map[string]struct{})
			r.byUser[conn.UserID] = set
		}
		set[conn.SocketID] = struct{}{}
	}

	r.logger.Debug("connection registered",
		zap.String("socket_id", conn.SocketID),
		zap.String("user_id", conn.UserID),
		zap.Bool("is_admin", conn.IsAdmin))
	return nil
}

// Unregister удаляет подключение. Идемпотентен: отсутствие сокета — no-op.
func (r *ConnectionRegistry) Unregister(socketID string) {
	r.mu.Lock()
	conn, ok := r.conns[socketID]
	if ok {
		delete(r.conns, socketID)
		if conn.UserID != "" {
			set := r.byUser[conn.UserID]
			delete(set, socketID)
			if len(set) == 0 {
				delete(r.byUser, conn.UserID)
			}
		}
	}
	r.mu.Unlock()

	if ok && r.onUnregister != nil {
		r.onUnregister(conn)
	}
}

// Find возвращает not-found вместо паники/ошибки.
func (r *ConnectionRegistry) Find(socketID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[socketID]
	return conn, ok
}

// FindByUser возвращает все живые сокеты пользователя.
func (r *ConnectionRegistry) FindByUser(userID string) []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]domain.Connection, 0, len(ids))
	for id := range ids {
		out = append(out, r.conns[id])
	}
	return out
}

// ListAll возвращает копию-снимок. Подключения, пришедшие после снимка,
// не видны вызывающему — на этом держится консистентность bulk-операций.
func (r *ConnectionRegistry) ListAll() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// ListRoom возвращает снимок участников комнаты.
func (r *ConnectionRegistry) ListRoom(roomID string) []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Connection
	for _, c := range r.conns {
		if c.RoomID == roomID {
			out = append(out, c)
		}
	}
	return out
}

// IsAdmin — проверка для исключения админ-сессий из массовых операций.
func (r *ConnectionRegistry) IsAdmin(socketID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[socketID].IsAdmin
}

// Touch обновляет lastActivity на входящем сообщении.
func (r *ConnectionRegistry) Touch(socketID string) {
	r.mu.Lock()
	if conn, ok := r.conns[socketID]; ok {
		conn.LastActivityAt = time.Now()
		r.conns[socketID] = conn
	}
	r.mu.Unlock()
}

// SetRoom фиксирует вход/выход из комнаты (пустая строка — выход).
func (r *ConnectionRegistry) SetRoom(socketID, roomID string) {
	r.mu.Lock()
	if conn, ok := r.conns[socketID]; ok {
		conn.RoomID = roomID
		r.conns[socketID] = conn
	}
	r.mu.Unlock()
}

// Count возвращает (все, админские) — для метрик.
func (r *ConnectionRegistry) Count() (total, admins int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.IsAdmin {
			admins++
		}
	}
	return len(r.conns), admins
}
