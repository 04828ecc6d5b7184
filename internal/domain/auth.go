package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role — уровень привилегий админа. Обычные команды требуют ADMIN,
// аварийные (emergency surface) — только SUPER_ADMIN.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Allows проверяет, достаточно ли текущей роли для требуемой.
func (r Role) Allows(required Role) bool {
	if required == RoleSuperAdmin {
		return r == RoleSuperAdmin
	}
	return r == RoleAdmin || r == RoleSuperAdmin
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Никогда не отправляем на фронт
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
