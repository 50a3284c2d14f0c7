package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Role is the access class granted by an API key.
type Role int

const (
	RoleNone Role = iota
	RolePublic
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RolePublic:
		return "public"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Keys are the configured API keys. An empty set disables the check it
// guards, which keeps local development keyless.
type Keys struct {
	Public []string
	Admin  []string
}

// Role resolves a presented key. Admin wins when a key is in both sets.
func (k Keys) Role(given string) Role {
	switch {
	case hasKey(given, k.Admin):
		return RoleAdmin
	case hasKey(given, k.Public):
		return RolePublic
	default:
		return RoleNone
	}
}

func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func hasKey(given string, set []string) bool {
	if given == "" {
		return false
	}
	found := 0
	for _, k := range set {
		// scan the whole set so timing doesn't leak which key matched
		found |= subtle.ConstantTimeCompare([]byte(k), []byte(given))
	}
	return found == 1
}

type roleKey struct{}

// RoleFrom returns the role stored by RequireAny or RequireAdmin.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func require(enabled bool, keys Keys, allow func(Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := keys.Role(readAuth(r))
			switch {
			case role == RoleNone:
				deny(w, http.StatusUnauthorized, "unauthorized")
			case !allow(role):
				deny(w, http.StatusForbidden, "forbidden")
			default:
				ctx := context.WithValue(r.Context(), roleKey{}, role)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// RequireAny allows requests that present either a public or admin key.
// If no keys are configured, it allows all requests (handy for local dev).
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	return require(len(keys.Public) > 0 || len(keys.Admin) > 0, keys, func(Role) bool { return true })
}

// RequireAdmin only permits requests that present an admin key.
// If no admin keys are configured, it allows all requests (dev).
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	return require(len(keys.Admin) > 0, keys, func(r Role) bool { return r == RoleAdmin })
}
