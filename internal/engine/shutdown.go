package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShutdownCoordinator — явный фоновый воркер аварийной остановки вместо
// "голого таймера". Инициатор сразу получает correlation ID; сам teardown
// идет асинхронно и отмене не подлежит.
type ShutdownCoordinator struct {
	once   sync.Once
	mu     sync.Mutex
	id     string
	delay  time.Duration
	stopFn func()
	logger *zap.Logger
}

func NewShutdownCoordinator(delay time.Duration, stopFn func(), logger *zap.Logger) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		delay:  delay,
		stopFn: stopFn,
		logger: logger.With(zap.String("mod", "shutdown")),
	}
}

// Initiate запускает остановку ровно один раз. Повторные вызовы получают
// correlation ID уже идущей остановки.
func (s *ShutdownCoordinator) Initiate(adminID string) string {
	s.once.Do(func() {
		s.mu.Lock()
		s.id = uuid.New().String()
		s.mu.Unlock()

		s.logger.Warn("emergency shutdown scheduled",
			zap.String("correlation_id", s.id),
			zap.String("admin_id", adminID),
			zap.Duration("delay", s.delay))

		go func() {
			// Короткая пауза, чтобы ответ инициатору успел уйти
			time.Sleep(s.delay)
			s.stopFn()
		}()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Initiated сообщает, была ли остановка уже запущена.
func (s *ShutdownCoordinator) Initiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id != ""
}
