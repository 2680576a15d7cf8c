package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/swirly-orders/internal/auth"
)

// DeviceHeader correlates guest orders with a browser.
const DeviceHeader = "X-Device-ID"

// Identity is whoever is calling: a verified user, a guest device, both or neither.
type Identity struct {
	Claims   *auth.Claims
	DeviceID string
}

// UserID is empty for guests.
func (id Identity) UserID() string {
	if id.Claims == nil {
		return ""
	}
	return id.Claims.UserID
}

func (id Identity) Anonymous() bool { return id.UserID() == "" && id.DeviceID == "" }

type identityKey struct{}

// IdentityFromContext returns the caller identity gathered by the middlewares in this package.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func withIdentity(r *http.Request, update func(*Identity)) *http.Request {
	id := IdentityFromContext(r.Context())
	update(&id)
	return r.WithContext(context.WithValue(r.Context(), identityKey{}, id))
}

func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	c := IdentityFromContext(ctx).Claims
	return c, c != nil
}

func GetUserID(ctx context.Context) string { return IdentityFromContext(ctx).UserID() }

func GetDeviceID(ctx context.Context) string { return IdentityFromContext(ctx).DeviceID }

// ExtractToken returns the bearer token of r. EventSource clients cannot set
// headers, so the access_token query parameter is accepted too.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

func authenticate(jwtService *auth.JWTService, r *http.Request) (*auth.Claims, string) {
	token := ExtractToken(r)
	if token == "" {
		return nil, "unauthorized"
	}
	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		log.WithError(err).WithField("path", r.URL.Path).Debug("token rejected")
		return nil, "invalid token"
	}
	return claims, ""
}

// AuthMiddleware rejects requests without a valid identity token.
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, reason := authenticate(jwtService, r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, reason)
				return
			}
			next.ServeHTTP(w, withIdentity(r, func(id *Identity) { id.Claims = claims }))
		})
	}
}

// OptionalAuthMiddleware attaches the token's claims when a valid one is
// present and serves the request as a guest otherwise.
func OptionalAuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, _ := authenticate(jwtService, r); claims != nil {
				r = withIdentity(r, func(id *Identity) { id.Claims = claims })
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits verified users holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			switch {
			case !ok:
				writeError(w, http.StatusUnauthorized, "unauthorized")
			case !allowed[claims.Role]:
				writeError(w, http.StatusForbidden, "forbidden")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireUser admits verified users only.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity admits verified users and guests that sent a device ID.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()).Anonymous() {
			writeError(w, http.StatusUnauthorized, "sign in or send "+DeviceHeader)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// DeviceID records the X-Device-ID header as the guest identity.
func DeviceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if device := strings.TrimSpace(r.Header.Get(DeviceHeader)); device != "" {
			r = withIdentity(r, func(id *Identity) { id.DeviceID = device })
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
