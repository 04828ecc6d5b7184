package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// AlertEngine оценивает пороговые правила по живым метрикам.
// Сработка edge-triggered: один Alert на один непрерывный пробой,
// сколько бы тиков оценки ни прошло, пока метрика за порогом.
type AlertEngine struct {
	mu      sync.Mutex
	configs map[string]domain.AlertConfig // keyed by metric, last-write-wins
	state   map[string]*breachState
	logger  *zap.Logger
	nowFn   func() time.Time

	// Куда отдавать сработки (broadcast админам, лог и т.д.). Может быть nil.
	onAlert func(domain.Alert)
}

type breachState struct {
	since time.Time // Нулевое время — пробоя нет
	fired bool
}

func NewAlertEngine(logger *zap.Logger) *AlertEngine {
	return &AlertEngine{
		configs: make(map[string]domain.AlertConfig),
		state:   make(map[string]*breachState),
		logger:  logger.With(zap.String("mod", "alerts")),
		nowFn:   time.Now,
	}
}

func (e *AlertEngine) OnAlert(fn func(domain.Alert)) {
	e.onAlert = fn
}

// Configure — upsert по имени метрики. Новый конфиг обнуляет накопленное
// состояние пробоя: правило поменялось, отсчет длительности — заново.
func (e *AlertEngine) Configure(cfg domain.AlertConfig) error {
	if cfg.Metric == "" {
		return domain.NewValidationError("metric", "must not be empty")
	}
	switch cfg.Comparison {
	case domain.CompareGT, domain.CompareLT, domain.CompareEQ:
	default:
		return domain.NewValidationError("comparison", "must be one of gt/lt/eq")
	}
	if cfg.Duration < 0 {
		return domain.NewValidationError("duration", "must not be negative")
	}

	cfg.UpdatedAt = e.nowFn()

	e.mu.Lock()
	e.configs[cfg.Metric] = cfg
	delete(e.state, cfg.Metric)
	e.mu.Unlock()

	e.logger.Info("alert configured",
		zap.String("metric", cfg.Metric),
		zap.Float64("threshold", cfg.Threshold),
		zap.String("comparison", string(cfg.Comparison)),
		zap.Duration("duration", cfg.Duration),
		zap.Bool("enabled", cfg.Enabled))
	return nil
}

// Evaluate прогоняет все включенные правила по срезу метрик.
// Возвращает сработавшие на этом тике алерты.
func (e *AlertEngine) Evaluate(values map[string]float64) []domain.Alert {
	now := e.nowFn()

	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []domain.Alert
	for metric, cfg := range e.configs {
		if !cfg.Enabled {
			continue
		}
		value, ok := values[metric]
		if !ok {
			continue
		}

		st := e.state[metric]
		if st == nil {
			st = &breachState{}
			e.state[metric] = st
		}

		if !breached(value, cfg) {
			// Метрика вернулась в норму — следующий пробой снова вооружен
			st.since = time.Time{}
			st.fired = false
			continue
		}

		if st.since.IsZero() {
			st.since = now
		}
		if st.fired || now.Sub(st.since) < cfg.Duration {
			continue
		}

		st.fired = true
		alert := domain.Alert{
			Metric:     metric,
			Value:      value,
			Threshold:  cfg.Threshold,
			Comparison: cfg.Comparison,
			FiredAt:    now,
		}
		fired = append(fired, alert)

		e.logger.Warn("alert fired",
			zap.String("metric", metric),
			zap.Float64("value", value),
			zap.Float64("threshold", cfg.Threshold))
		if e.onAlert != nil {
			e.onAlert(alert)
		}
	}
	return fired
}

func breached(value float64, cfg domain.AlertConfig) bool {
	switch cfg.Comparison {
	case domain.CompareGT:
		return value > cfg.Threshold
	case domain.CompareLT:
		return value < cfg.Threshold
	case domain.CompareEQ:
		return value == cfg.Threshold
	}
	return false
}

// ListConfigs возвращает снимок конфигов, отсортированный по метрике.
func (e *AlertEngine) ListConfigs() []domain.AlertConfig {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.AlertConfig, 0, len(e.configs))
	for _, cfg := range e.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}
