// Package identity authenticates honeypot API callers and validates the
// session ids they send.
package identity

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"regexp"
	"strings"
)

const (
	// APIKeyHeader carries the shared API key.
	APIKeyHeader = "X-API-Key"
	// APIKeyQueryParam is accepted for websocket clients that cannot set headers.
	APIKeyQueryParam = "api_key"
)

type contextKey int

const (
	clientIDKey contextKey = iota
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ClientIDFromContext returns the caller identity used for rate limiting.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}

// WithClientID stores a caller identity in ctx.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// SanitizeSessionID trims id and reports whether it is a usable session key.
func SanitizeSessionID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// ValidAPIKey compares got against want in constant time. An empty want
// rejects everything.
func ValidAPIKey(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get(APIKeyQueryParam)
}

// Middleware rejects requests without the shared API key and records the
// caller's IP as its client id.
func Middleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ValidAPIKey(apiKeyFromRequest(r), apiKey) {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"invalid or missing API key"}`, http.StatusUnauthorized)
				return
			}
			ctx := WithClientID(r.Context(), IPFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
