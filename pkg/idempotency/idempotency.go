// Package idempotency carries client-supplied idempotency keys over HTTP.
package idempotency

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the request header carrying the key.
const Header = "Idempotency-Key"

// maxLen bounds keys accepted from clients.
const maxLen = 128

// Key returns the trimmed key of r, or "" when absent or longer than 128 bytes.
func Key(r *http.Request) string {
	k := strings.TrimSpace(r.Header.Get(Header))
	if len(k) > maxLen {
		return ""
	}
	return k
}

// Set attaches key to an outgoing request when non-empty.
func Set(r *http.Request, key string) {
	if key != "" {
		r.Header.Set(Header, key)
	}
}

// New returns a fresh random key.
func New() string {
	return uuid.NewString()
}
