package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/swirly-orders/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key", "swirly-idp", 15*time.Minute)
}

func okHandler(captured **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := GetUserFromContext(r.Context()); ok && captured != nil {
			*captured = claims
		}
		w.WriteHeader(http.StatusOK)
	})
}

// ============================================
// AuthMiddleware Tests
// ============================================

func TestAuthMiddleware_ValidToken_Header(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.IssueToken("user-123", "test@example.com", auth.RoleCustomer)
	require.NoError(t, err)

	var captured *auth.Claims
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(okHandler(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-123", captured.UserID)
}

func TestAuthMiddleware_ValidToken_Query(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.IssueToken("user-123", "test@example.com", auth.RoleCustomer)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me/orders/stream?access_token="+token, nil)
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_MissingAndInvalid(t *testing.T) {
	mw := AuthMiddleware(newTestJWTService())

	rec := httptest.NewRecorder()
	mw(okHandler(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec = httptest.NewRecorder()
	mw(okHandler(nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

// ============================================
// OptionalAuthMiddleware Tests
// ============================================

func TestOptionalAuthMiddleware(t *testing.T) {
	jwtService := newTestJWTService()
	mw := OptionalAuthMiddleware(jwtService)

	var captured *auth.Claims
	rec := httptest.NewRecorder()
	mw(okHandler(&captured)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ORD-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, captured)

	req := httptest.NewRequest(http.MethodGet, "/orders/ORD-1", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	mw(okHandler(&captured)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, captured)
}

// ============================================
// RequireRole Tests
// ============================================

func TestRequireRole(t *testing.T) {
	jwtService := newTestJWTService()
	chain := func() http.Handler {
		return AuthMiddleware(jwtService)(RequireRole(auth.RoleAdmin)(okHandler(nil)))
	}

	admin, _, err := jwtService.IssueToken("admin-1", "ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	customer, _, err := jwtService.IssueToken("user-1", "c@example.com", auth.RoleCustomer)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ORD-1/advance", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	chain().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/orders/ORD-1/advance", nil)
	req.Header.Set("Authorization", "Bearer "+customer)
	rec = httptest.NewRecorder()
	chain().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	RequireRole(auth.RoleAdmin)(okHandler(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================
// DeviceID Tests
// ============================================

func TestDeviceID(t *testing.T) {
	var got string
	h := DeviceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetDeviceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/me/orders", nil)
	req.Header.Set(DeviceHeader, " dev-42 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "dev-42", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me/orders", nil))
	assert.Empty(t, got)
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestLogger(okHandler(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

// ============================================
// Identity Tests
// ============================================

func TestRequireIdentityAndUser(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.IssueToken("user-7", "u7@example.com", auth.RoleCustomer)
	require.NoError(t, err)

	var seen Identity
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	})
	identity := DeviceID(OptionalAuthMiddleware(jwtService)(RequireIdentity(capture)))
	user := DeviceID(OptionalAuthMiddleware(jwtService)(RequireUser(capture)))

	rec := httptest.NewRecorder()
	identity.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), DeviceHeader)

	req := httptest.NewRequest(http.MethodGet, "/me/orders", nil)
	req.Header.Set(DeviceHeader, "dev-9")
	rec = httptest.NewRecorder()
	identity.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev-9", seen.DeviceID)
	assert.Empty(t, seen.UserID())

	rec = httptest.NewRecorder()
	user.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	user.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", seen.UserID())
	assert.Equal(t, "dev-9", seen.DeviceID)
}
