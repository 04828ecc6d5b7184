package domain

import "time"

// RateLimitTarget — адресат правила: либо пользователь, либо сокет.
// Ровно одно из двух полей должно быть заполнено.
type RateLimitTarget struct {
	UserID   string `json:"userId,omitempty"`
	SocketID string `json:"socketId,omitempty"`
}

// Key дает стабильный ключ для внутренних счетчиков.
func (t RateLimitTarget) Key() string {
	if t.UserID != "" {
		return "user:" + t.UserID
	}
	return "socket:" + t.SocketID
}

// Valid проверяет инвариант "ровно одна из userId/socketId".
func (t RateLimitTarget) Valid() bool {
	return (t.UserID != "") != (t.SocketID != "")
}

// RateLimitRule — бюджет сообщений для цели.
// Правило по socketId умирает вместе с сокетом; правило по userId
// переживает реконнекты.
type RateLimitRule struct {
	Target      RateLimitTarget `json:"target"`
	MaxMessages int             `json:"max_messages"`
	Window      time.Duration   `json:"window"`

	UpdatedAt time.Time `json:"updated_at"`
}

// RateDecision — результат CheckAndConsume.
type RateDecision struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // Подсказка при отказе
}
