package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/chat-control-plane/internal/domain"
	"go.uber.org/zap"
)

func signToken(t *testing.T, key *rsa.PrivateKey, userID string, role domain.Role, ttl time.Duration) string {
	t.Helper()
	claims := &domain.CustomClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func newAuthFixture(t *testing.T) (*rsa.PrivateKey, http.Handler, *int, *domain.CustomClaims) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	validator := NewBaseValidator(&key.PublicKey)

	calls := 0
	seen := &domain.CustomClaims{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		userID, role, ok := CallerFromContext(r.Context())
		require.True(t, ok)
		seen.UserID = userID
		seen.Role = role
	})

	return key, NewMiddleware(validator, zap.NewNop())(next), &calls, seen
}

func TestMiddlewarePassesValidAdminToken(t *testing.T) {
	key, h, calls, seen := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/socket", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "admin-1", domain.RoleSuperAdmin, time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, *calls)
	require.Equal(t, "admin-1", seen.UserID)
	require.Equal(t, domain.RoleSuperAdmin, seen.Role)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	_, h, calls, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/socket", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 0, *calls)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	key, h, calls, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/socket", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "admin-1", domain.RoleAdmin, -time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 0, *calls)
}

func TestMiddlewareRejectsForeignSignature(t *testing.T) {
	_, h, calls, _ := newAuthFixture(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/socket", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, otherKey, "admin-1", domain.RoleAdmin, time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 0, *calls)
}

func TestMiddlewareRejectsNonAdminRole(t *testing.T) {
	key, h, calls, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/socket", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "user-1", "VIEWER", time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 0, *calls)
}

func TestRoleAllows(t *testing.T) {
	require.True(t, domain.RoleAdmin.Allows(domain.RoleAdmin))
	require.False(t, domain.RoleAdmin.Allows(domain.RoleSuperAdmin))
	require.True(t, domain.RoleSuperAdmin.Allows(domain.RoleAdmin))
	require.True(t, domain.RoleSuperAdmin.Allows(domain.RoleSuperAdmin))
	require.False(t, domain.Role("VIEWER").Allows(domain.RoleAdmin))
}
