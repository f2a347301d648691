package webhook

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenHeader carries the shared webhook token when the query string cannot
const TokenHeader = "X-Webhook-Token"

// VerifyToken compares the provided token with the expected one in constant time.
// An empty expected token disables the check.
func VerifyToken(provided, expected string) bool {
	if expected == "" {
		return true
	}
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// tokenFromRequest reads ?token= first, then the X-Webhook-Token header
func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get(TokenHeader))
}
