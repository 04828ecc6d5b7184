package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"github.com/xela07ax/chat-control-plane/internal/engine"
	"github.com/xela07ax/chat-control-plane/internal/infra"
	"github.com/xela07ax/chat-control-plane/internal/infra/auth"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

// envelope — wire-формат сообщений гейтвея в обе стороны.
type envelope struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// client — одно живое подключение. Писать в gorilla-сокет может только
// одна горутина за раз, отсюда sendMu.
type client struct {
	socketID string
	conn     *websocket.Conn
	sendMu   sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Gateway — WebSocket-вход чат-сервера. Регистрирует подключения в реестре,
// пропускает входящие через лимитер и исполняет команды контрол-плейна
// (Disconnect/Send) на живых сокетах. Реализует engine.Transport.
type Gateway struct {
	upgrader    websocket.Upgrader
	registry    *engine.ConnectionRegistry
	limiter     *engine.RateLimiter
	maintenance *engine.MaintenanceController
	validator   auth.TokenValidator
	metrics     *engine.Metrics
	logger      *zap.Logger
	rdb         *redis.Client // nil — одиночный инстанс

	mu      sync.RWMutex
	clients map[string]*client

	inbound atomic.Int64
}

func NewGateway(
	registry *engine.ConnectionRegistry,
	limiter *engine.RateLimiter,
	maintenance *engine.MaintenanceController,
	validator auth.TokenValidator,
	metrics *engine.Metrics,
	rdb *redis.Client,
	logger *zap.Logger,
) *Gateway {
	g := &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Браузерные клиенты ходят с разных origin, пускаем всех:
			// доступ решает токен, а не Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry:    registry,
		limiter:     limiter,
		maintenance: maintenance,
		validator:   validator,
		metrics:     metrics,
		logger:      logger.Named("gateway"),
		rdb:         rdb,
		clients:     make(map[string]*client),
	}

	// Socket-scoped правила лимитера живут не дольше самого сокета
	registry.OnUnregister(func(conn domain.Connection) {
		limiter.DropSocketRule(conn.SocketID)
	})

	return g
}

// ServeHTTP — рукопожатие нового подключения.
// Токен опционален: без него подключение анонимное, с валидным токеном и
// ролью ADMIN+ — админское (переживает режим обслуживания).
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, isAdmin := g.identify(r)

	if state := g.maintenance.State(); state.Enabled && !isAdmin {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "maintenance",
			"message": state.Message,
		})
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}

	socketID := uuid.New().String()
	now := time.Now().UTC()
	record := domain.Connection{
		SocketID:       socketID,
		UserID:         userID,
		IsAdmin:        isAdmin,
		RoomID:         r.URL.Query().Get("room"),
		ConnectedAt:    now,
		LastActivityAt: now,
	}
	if err := g.registry.Register(record); err != nil {
		g.logger.Error("register failed", zap.String("socket_id", socketID), zap.Error(err))
		conn.Close()
		return
	}

	cl := &client{socketID: socketID, conn: conn}
	g.mu.Lock()
	g.clients[socketID] = cl
	g.mu.Unlock()

	g.logger.Info("connection established",
		zap.String("socket_id", socketID),
		zap.String("user_id", userID),
		zap.Bool("is_admin", isAdmin))

	// Клиенту сразу сообщаем его socketID
	_ = cl.writeJSON(envelope{
		Event:     "connected",
		Data:      map[string]interface{}{"socketId": socketID},
		Timestamp: now.UnixMilli(),
	})

	go g.pinger(cl)
	go g.readLoop(cl, record)
}

// identify извлекает личность из токена (query или заголовок).
func (g *Gateway) identify(r *http.Request) (userID string, isAdmin bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if token != "" && g.validator != nil {
		if claims, err := g.validator.VerifyToken(token); err == nil {
			return claims.UserID, claims.Role.Allows(domain.RoleAdmin)
		}
		g.logger.Warn("gateway token rejected", zap.String("remote_addr", r.RemoteAddr))
	}

	if id := r.URL.Query().Get("userId"); id != "" {
		return id, false
	}
	return "anon-" + uuid.New().String()[:8], false
}

func (g *Gateway) readLoop(cl *client, record domain.Connection) {
	defer g.drop(cl.socketID)

	cl.conn.SetReadLimit(maxMsgSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg envelope
		if err := cl.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("read error", zap.String("socket_id", cl.socketID), zap.Error(err))
			}
			return
		}

		g.registry.Touch(cl.socketID)
		g.inbound.Add(1)
		g.metrics.InboundMessages.Inc()

		// Вступление в комнату лимитом не облагается
		if msg.Event == "room:join" {
			if data, ok := msg.Data.(map[string]interface{}); ok {
				if roomID, ok := data["roomId"].(string); ok {
					g.registry.SetRoom(cl.socketID, roomID)
					record.RoomID = roomID
				}
			}
			continue
		}

		decision := g.limiter.Allow(record.UserID, cl.socketID)
		if !decision.Allowed {
			g.metrics.RateLimited.Inc()
			_ = cl.writeJSON(envelope{
				Event: "error",
				Data: map[string]interface{}{
					"message":    "Too many messages. Please slow down.",
					"retryAfter": decision.RetryAfter.Milliseconds(),
				},
				Timestamp: time.Now().UnixMilli(),
			})
			continue
		}

		g.fanOut(cl.socketID, record.UserID, msg)
	}
}

// fanOut раздает сообщение участникам комнаты отправителя (кроме него самого).
func (g *Gateway) fanOut(fromSocket, fromUser string, msg envelope) {
	conn, ok := g.registry.Find(fromSocket)
	if !ok || conn.RoomID == "" {
		return
	}

	out := envelope{
		Event: msg.Event,
		Data: map[string]interface{}{
			"from":   fromUser,
			"roomId": conn.RoomID,
			"body":   msg.Data,
		},
		Timestamp: time.Now().UnixMilli(),
	}

	for _, member := range g.registry.ListRoom(conn.RoomID) {
		if member.SocketID == fromSocket {
			continue
		}
		if err := g.Send(member.SocketID, out.Event, out.Data); err != nil {
			g.logger.Debug("fan-out delivery failed",
				zap.String("socket_id", member.SocketID), zap.Error(err))
		}
	}
}

func (g *Gateway) pinger(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		cl.sendMu.Lock()
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := cl.conn.WriteMessage(websocket.PingMessage, nil)
		cl.sendMu.Unlock()
		if err != nil {
			return
		}
	}
}

// drop снимает подключение с учета и закрывает сокет.
func (g *Gateway) drop(socketID string) {
	g.mu.Lock()
	cl, ok := g.clients[socketID]
	delete(g.clients, socketID)
	g.mu.Unlock()

	if ok {
		cl.conn.Close()
	}
	g.registry.Unregister(socketID)
}

// Send реализует engine.Transport: доставка события одному сокету.
func (g *Gateway) Send(socketID, event string, payload interface{}) error {
	g.mu.RLock()
	cl, ok := g.clients[socketID]
	g.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	return cl.writeJSON(envelope{
		Event:     event,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Disconnect реализует engine.Transport: причина уходит клиенту ДО закрытия.
func (g *Gateway) Disconnect(socketID, reason string) error {
	g.mu.RLock()
	cl, ok := g.clients[socketID]
	g.mu.RUnlock()
	if !ok {
		// Сокет может жить на другом инстансе — транслируем сигнал
		if g.rdb != nil {
			return g.rdb.Publish(context.Background(),
				infra.RedisChanDisconnect, "socket:"+socketID+":"+reason).Err()
		}
		return domain.ErrNotFound
	}

	_ = cl.writeJSON(envelope{
		Event:     "disconnect",
		Data:      map[string]interface{}{"reason": reason},
		Timestamp: time.Now().UnixMilli(),
	})

	cl.sendMu.Lock()
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = cl.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	cl.sendMu.Unlock()

	g.drop(socketID)
	return nil
}

// StartDisconnectListener слушает сигналы принудительных отключений
// с других инстансов ("socket:<id>:<reason>" / "user:<id>:<reason>").
func (g *Gateway) StartDisconnectListener(ctx context.Context) {
	if g.rdb == nil {
		return
	}
	go engine.ListenSignalResilient(ctx, g.rdb, g.logger, infra.RedisChanDisconnect,
		func() error { return nil },
		func(payload string) {
			parts := strings.SplitN(payload, ":", 3)
			if len(parts) != 3 {
				g.logger.Warn("malformed disconnect signal", zap.String("payload", payload))
				return
			}
			scope, id, reason := parts[0], parts[1], parts[2]
			switch scope {
			case "socket":
				g.mu.RLock()
				_, local := g.clients[id]
				g.mu.RUnlock()
				if local {
					_ = g.Disconnect(id, reason)
				}
			case "user":
				for _, conn := range g.registry.FindByUser(id) {
					_ = g.Disconnect(conn.SocketID, reason)
				}
			}
		})
}

// InboundTotal — кумулятивный счетчик входящих сообщений (для снапшотов).
func (g *Gateway) InboundTotal() int64 {
	return g.inbound.Load()
}

// CloseAll аккуратно закрывает все подключения (graceful shutdown).
func (g *Gateway) CloseAll(reason string) {
	g.mu.RLock()
	ids := make([]string, 0, len(g.clients))
	for id := range g.clients {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	for _, id := range ids {
		_ = g.Disconnect(id, reason)
	}
}
