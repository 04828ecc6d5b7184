package domain

import (
	"errors"
	"fmt"
)

// Таксономия ошибок контрол-плейна. Ошибки валидации и привилегий
// решаются на границе и никогда не попадают в журнал аудита команд.
var (
	ErrDuplicateID           = errors.New("connection id already registered")
	ErrNotFound              = errors.New("target not found")
	ErrInsufficientPrivilege = errors.New("super admin access required")
	ErrUnknownAction         = errors.New("unknown action")
	ErrBreakerOpen           = errors.New("circuit breaker is open")
)

// ValidationError — некорректный payload для запрошенного типа команды.
// Отбрасывается до любых побочных эффектов.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation сообщает, является ли ошибка отказом валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DownstreamError — внутренний сбой компонента (registry, breaker bank и т.д.).
// Такие сбои ВСЕГДА записываются в аудит как неуспешная команда.
type DownstreamError struct {
	Component string
	Err       error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream %s: %v", e.Component, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }
