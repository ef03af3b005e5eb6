package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Keys holds the configured API keys. Public keys may read the endpoint list,
// policy and event stream; admin keys may also change them.
type Keys struct {
	Public []string
	Admin  []string
}

type access int

const (
	accessNone access = iota
	accessRead
	accessAdmin
)

func (k Keys) grant(given string) access {
	switch {
	case given == "":
		return accessNone
	case matches(given, k.Admin):
		return accessAdmin
	case matches(given, k.Public):
		return accessRead
	default:
		return accessNone
	}
}

func matches(given string, set []string) bool {
	found := false
	for _, k := range set {
		if subtle.ConstantTimeCompare([]byte(k), []byte(given)) == 1 {
			found = true
		}
	}
	return found
}

// presentedKey reads a bearer token or X-API-Key header. The api_key query
// parameter is read only on websocket upgrades.
func presentedKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	if websocket.IsWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("api_key"))
	}
	return ""
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// guard admits requests granted at least min. When disabled every request
// passes.
func guard(keys Keys, min access, enabled bool, status int, msg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keys.grant(presentedKey(r)) < min {
				deny(w, status, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny guards read-only routes: a public or admin key is enough.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Public) > 0 || len(keys.Admin) > 0
	return guard(keys, accessRead, enabled, http.StatusUnauthorized, "unauthorized")
}

// RequireAdmin guards mutating routes: endpoint edits, interval changes,
// check-now and state import/export.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	return guard(keys, accessAdmin, len(keys.Admin) > 0, http.StatusForbidden, "forbidden")
}
