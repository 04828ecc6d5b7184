package domain

import "time"

type AlertComparison string

const (
	CompareGT AlertComparison = "gt"
	CompareLT AlertComparison = "lt"
	CompareEQ AlertComparison = "eq"
)

// AlertConfig — пользовательское пороговое правило.
// На одну метрику — максимум один активный конфиг (last-write-wins по имени).
// Конфиги не удаляются, только выключаются через Enabled=false.
type AlertConfig struct {
	Metric     string          `json:"metric"`
	Threshold  float64         `json:"threshold"`
	Comparison AlertComparison `json:"comparison"`
	Duration   time.Duration   `json:"duration"` // Сколько условие должно держаться до срабатывания
	Enabled    bool            `json:"enabled"`

	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Alert — сработка правила. Edge-triggered: одна сработка на один
// непрерывный пробой порога, а не на каждый тик оценки.
type Alert struct {
	Metric     string          `json:"metric"`
	Value      float64         `json:"value"`
	Threshold  float64         `json:"threshold"`
	Comparison AlertComparison `json:"comparison"`
	FiredAt    time.Time       `json:"fired_at"`
}
