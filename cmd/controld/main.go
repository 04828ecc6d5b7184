package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/chat-control-plane/internal/audit"
	"github.com/xela07ax/chat-control-plane/internal/console/handler"
	"github.com/xela07ax/chat-control-plane/internal/console/server"
	"github.com/xela07ax/chat-control-plane/internal/console/service"
	"github.com/xela07ax/chat-control-plane/internal/engine"
	"github.com/xela07ax/chat-control-plane/internal/infra"
	"github.com/xela07ax/chat-control-plane/internal/infra/auth"
	"github.com/xela07ax/chat-control-plane/internal/repository/postgres"
	"github.com/xela07ax/chat-control-plane/internal/transport"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		logger.Info("redis addr is empty: running single-instance, no cross-node sync")
	}

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required (audit archive and admin accounts)")
	}
	pgRepo := postgres.NewCommandRepo(cfg.Database.URL)
	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := pgRepo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// Ключи RS256: публичный — проверка, приватный — выпуск токенов
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// 4. Ядро контрол-плейна
	registry := engine.NewConnectionRegistry(logger)
	limiter := engine.NewRateLimiter(cfg.Engine.DefaultRateLimit, cfg.Engine.DefaultRateWindow, logger)

	breakers := engine.NewBreakerBank(cfg.Engine.Dependencies, engine.BreakerSettings{
		MaxRequests:         cfg.Engine.CBMaxRequests,
		Interval:            cfg.Engine.CBInterval,
		Timeout:             cfg.Engine.CBTimeout,
		ConsecutiveFailures: cfg.Engine.CBConsecutiveFailures,
	}, logger)
	breakers.OnStateChange(metrics.ObserveBreakerState)

	alerts := engine.NewAlertEngine(logger)

	maintenance := engine.NewMaintenanceController(rdb, logger)
	if err := maintenance.Init(appCtx); err != nil {
		logger.Warn("maintenance warmup failed, starting with mode off", zap.Error(err))
	}
	go maintenance.StartListener(appCtx)

	// 5. Аудит-пайплайн: канал -> батчер -> guarded Postgres
	guarded := audit.NewGuardedStorage(pgRepo, breakers)
	recorder := audit.NewRecorder(guarded, logger,
		cfg.Engine.AuditBufferSize, cfg.Engine.AuditBatchSize, cfg.Engine.AuditFlushInterval)
	recorder.Start()

	history := engine.NewHistoryStore(
		cfg.Engine.MetricsHistorySize, cfg.Engine.CommandHistorySize, recorder, logger)

	// 6. Гейтвей и процессор команд
	validator := auth.NewBaseValidator(pubKey)
	gateway := transport.NewGateway(registry, limiter, maintenance, validator, metrics, rdb, logger)
	gateway.StartDisconnectListener(appCtx)

	// Аварийная остановка: тот же teardown, что и по SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	shutdown := engine.NewShutdownCoordinator(cfg.Engine.ShutdownDelay, func() {
		stop <- syscall.SIGTERM
	}, logger)

	processor := engine.NewProcessor(
		registry, limiter, breakers, alerts, maintenance, history,
		gateway, shutdown, metrics, logger)

	// Периодический сбор срезов: история, гейджи, оценка алертов
	collector := engine.NewCollector(
		registry, limiter, breakers, alerts, history, metrics,
		recorder.BufferFill, gateway.InboundTotal,
		cfg.Engine.SnapshotInterval, logger)
	go collector.Run(appCtx)

	// 7. Слои API (Dependency Injection)
	authService := service.NewAuthService(pgRepo, privKey, cfg.Auth.TokenTTL)
	adminService := service.NewAdminService(processor, registry, limiter, breakers, alerts, history)
	statusService := service.NewStatusService(registry, breakers, limiter, alerts, maintenance, history, collector)
	auditService := service.NewAuditService(pgRepo)

	srvHandler := server.NewConsoleServer(
		cfg, logger, validator,
		handler.NewAuthHandler(authService),
		handler.NewSocketHandler(adminService, statusService, logger),
		handler.NewAuditHandler(auditService),
		gateway,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("control plane started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал (или аварийную остановку от админа)
	logger.Info("control plane stopping...")

	// Порядок важен: сначала перестаем принимать запросы, потом гасим
	// подключения, в конце дописываем аудит (drain).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	gateway.CloseAll("Server shutting down")
	cancel()
	recorder.Stop()

	logger.Info("control plane exited properly")
}
