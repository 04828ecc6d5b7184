package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, который должны реализовать и гейтвей, и API
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Типизированные ключи контекста вместо «голых» строк: защита от коллизий
// с чужими middleware.
type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// CallerFromContext достает личность админа, положенную middleware.
func CallerFromContext(ctx context.Context) (userID string, role domain.Role, ok bool) {
	userID, ok = ctx.Value(ctxKeyUserID).(string)
	if !ok {
		return "", "", false
	}
	role, ok = ctx.Value(ctxKeyRole).(domain.Role)
	return userID, role, ok
}

// WithCaller кладет личность в контекст напрямую (для тестов хендлеров).
func WithCaller(ctx context.Context, userID string, role domain.Role) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID, userID)
	return context.WithValue(ctx, ctxKeyRole, role)
}

// NewMiddleware закрывает привилегированные маршруты: без валидного токена
// с ролью ADMIN или выше запрос не проходит.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure",
					zap.Error(err),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("path", r.URL.Path))
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			if !claims.Role.Allows(domain.RoleAdmin) {
				logger.Warn("admin access denied",
					zap.String("user_id", claims.UserID),
					zap.String("role", string(claims.Role)),
					zap.String("path", r.URL.Path))
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}

			// Прокидываем данные в контекст
			ctx := WithCaller(r.Context(), claims.UserID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
