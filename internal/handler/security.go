package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "api_key"

// SecurityHandler authenticates admin requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	auth *auth.Authenticator
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{auth: auth.NewAuthenticator(apikeys, pepper)}
}

// Authenticate rejects requests without a valid API key and stores the key
// identity in the request context.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := zctx.With(auth.WithKey(r.Context(), info), zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated keys that lack scope.
func (s *SecurityHandler) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.KeyFrom(r.Context())
			if !ok || !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
