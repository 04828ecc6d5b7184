package audit

/*
Файл recorder.go реализует асинхронный сток журнала админ-команд.

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал между Admin Command Processor
  и писателем — задержки БД не влияют на время ответа админ-API.
- Batching & Efficiency: накопление записей в памяти и пакетная запись
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью (Final Flush) — записи аудита не теряются на рестарте.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться записи
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []domain.AdminCommand) error
}

type Recorder struct {
	ch     chan domain.AdminCommand // Буфер для асинхронности
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// Защита от Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewRecorder(repo StorageInterface, logger *zap.Logger, bufferSize, batchSize int, flushInterval time.Duration) *Recorder {
	return &Recorder{
		ch:            make(chan domain.AdminCommand, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (r *Recorder) Stop() {
	atomic.StoreInt32(&r.isClosed, 1)

	// Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	r.logger.Info("stopping audit recorder: closing channel and flushing buffer...")
	close(r.ch)
	r.wg.Wait()
	r.logger.Info("audit recorder stopped gracefully")
}

// Log реализует engine.CommandArchive.
func (r *Recorder) Log(cmd domain.AdminCommand) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&r.isClosed) == 1 {
		r.logger.Warn("audit record dropped: recorder is stopping", zap.String("id", cmd.ID))
		return
	}

	// Стратегия Load Shedding: при переполнении пишем хотя бы в лог,
	// чтобы след административного действия не пропал бесследно
	select {
	case r.ch <- cmd:
	default:
		r.logger.Error("audit_buffer_overflow",
			zap.String("command_id", cmd.ID),
			zap.String("type", string(cmd.Type)),
			zap.String("admin_id", cmd.AdminID))
	}
}

// BufferFill — текущая заполненность буфера (для метрик backpressure).
func (r *Recorder) BufferFill() int {
	return len(r.ch)
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]domain.AdminCommand, 0, r.batchSize)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к этому моменту может быть закрыт
			if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
				r.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case cmd, ok := <-r.ch:
			if !ok {
				// Канал закрыт в Stop(): воркер сначала вычитал остатки
				// очереди, теперь финальный сброс и выход.
				flush()
				r.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, cmd)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
