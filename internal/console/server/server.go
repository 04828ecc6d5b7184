package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/chat-control-plane/internal/console/handler"
	"github.com/xela07ax/chat-control-plane/internal/infra"
	"github.com/xela07ax/chat-control-plane/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler   *handler.AuthHandler   // /auth/token
	socketHandler *handler.SocketHandler // /api/admin/socket
	auditHandler  *handler.AuditHandler  // /api/admin/audit (архив)

	// Гейтвей чата подключается отдельным хендлером на /ws
	gatewayHandler http.Handler
}

// NewConsoleServer инициализирует сервер контрол-плейна со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	socketH *handler.SocketHandler,
	auditH *handler.AuditHandler,
	gatewayH http.Handler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("admin-api"),
		cfg:            cfg,
		authValidator:  validator,
		authHandler:    authH,
		socketHandler:  socketH,
		auditHandler:   auditH,
		gatewayHandler: gatewayH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга (аптайм-пробы без авторизации)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// WebSocket-гейтвей чата: авторизация внутри рукопожатия
		if s.gatewayHandler != nil {
			r.Handle("/ws", s.gatewayHandler)
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен с ролью ADMIN+) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Статус, действия, конфигурация, аварийные операции
		r.Route("/api/admin/socket", func(r chi.Router) {
			r.Get("/", s.socketHandler.Status)       // Статус и метрики
			r.Post("/", s.socketHandler.Action)      // Диспетчер действий
			r.Put("/", s.socketHandler.Configure)    // Пакетная конфигурация
			r.Delete("/", s.socketHandler.Emergency) // Только SUPER_ADMIN
		})

		// Архив команд из PostgreSQL (горячий хвост отдает POST get_command_history)
		r.Get("/api/admin/audit", s.auditHandler.GetCommands)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
