package domain

import "time"

// CommandType — закрытый набор привилегированных операций.
type CommandType string

const (
	CmdDisconnectUser      CommandType = "disconnect_user"
	CmdBroadcastMessage    CommandType = "broadcast_message"
	CmdClearRoom           CommandType = "clear_room"
	CmdResetCircuitBreaker CommandType = "reset_circuit_breaker"
	CmdEnableMaintenance   CommandType = "enable_maintenance"
	CmdDisableMaintenance  CommandType = "disable_maintenance"
	CmdSetRateLimit        CommandType = "set_rate_limit"
)

// Аварийные операции (DELETE surface). Требуют SUPER_ADMIN и не
// принимаются через execute_command, но журналируются тем же аудитом.
const (
	CmdDisconnectAll     CommandType = "disconnect_all_users"
	CmdResetAllBreakers  CommandType = "reset_all_circuit_breakers"
	CmdEmergencyShutdown CommandType = "emergency_shutdown"
)

// KnownCommandTypes используется валидатором для быстрой проверки типа.
var KnownCommandTypes = map[CommandType]struct{}{
	CmdDisconnectUser:      {},
	CmdBroadcastMessage:    {},
	CmdClearRoom:           {},
	CmdResetCircuitBreaker: {},
	CmdEnableMaintenance:   {},
	CmdDisableMaintenance:  {},
	CmdSetRateLimit:        {},
}

// Статусы исполнения команды в журнале аудита.
const (
	CommandStatusSuccess = "SUCCESS"
	CommandStatusPartial = "PARTIAL" // Часть целей batch-операции отвалилась
	CommandStatusFailed  = "FAILED"
)

// AdminCommand — неизменяемая запись аудита об исполненной команде.
// Записывается ровно один раз на каждую исполненную (даже частично) команду.
// Отклоненные на валидации запросы сюда не попадают — это security-лог.
type AdminCommand struct {
	ID      string                 `json:"id"`       // UUID записи
	Seq     uint64                 `json:"seq"`      // Монотонный порядковый номер в рамках процесса
	Type    CommandType            `json:"type"`     //
	Payload map[string]interface{} `json:"payload"`  // Исходный payload как пришел от админа
	AdminID string                 `json:"admin_id"` // Кто исполнил

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`

	// Итог
	Status    string          `json:"status"` // SUCCESS / PARTIAL / FAILED
	Error     string          `json:"error,omitempty"`
	Succeeded []string        `json:"succeeded,omitempty"` // ID целей для batch-операций
	Failed    []TargetFailure `json:"failed,omitempty"`
}

// TargetFailure — исход по одной цели внутри batch-операции.
// Падение одной цели не прерывает обработку остальных.
type TargetFailure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// CommandResult возвращается вызывающему после исполнения.
type CommandResult struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Succeeded []string        `json:"succeeded,omitempty"`
	Failed    []TargetFailure `json:"failed,omitempty"`
}

// Типизированные payload'ы (sum type вместо ручного разбора map).
// Декодируются из Payload строго по Type, лишние поля игнорируются.

type DisconnectUserPayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type DisconnectSocketPayload struct {
	SocketID string `json:"socketId"`
	Reason   string `json:"reason"`
}

type BroadcastPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	RoomID  string `json:"roomId"` // Пустой — broadcast всем
}

type ClearRoomPayload struct {
	RoomID string `json:"roomId"`
}

type ResetBreakerPayload struct {
	Service string `json:"service"`
}

type MaintenancePayload struct {
	Message string `json:"message"`
}

type SetRateLimitPayload struct {
	UserID      string `json:"userId"`
	SocketID    string `json:"socketId"`
	MaxMessages int    `json:"maxMessages"`
	WindowMs    int64  `json:"windowMs"`
}
