package domain

import "time"

// Connection — одна живая realtime-сессия (WebSocket).
// Registry — единственный источник правды о том, жив ли сокет.
type Connection struct {
	SocketID string `json:"socket_id"` // Уникальный ID, выдается транспортом при коннекте
	UserID   string `json:"user_id"`   // Появляется после аутентификации (может быть пустым)
	IsAdmin  bool   `json:"is_admin"`  // Админ-сессии исключаются из массовых операций
	RoomID   string `json:"room_id"`   // Текущая комната (conversation), если есть

	ConnectedAt    time.Time `json:"connected_at"`
	LastActivityAt time.Time `json:"last_activity_at"` // Обновляется на каждом входящем сообщении
}
