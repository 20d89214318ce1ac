package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/storefront/pkg/idempotency"
)

// SessionCookie names the anonymous shopper cookie.
const SessionCookie = "sid"

type ownerKey struct{}

// OwnerFrom returns the shopper identity stored by Identity.
func OwnerFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ownerKey{}).(string)
	return v, ok && v != ""
}

// Identity resolves the shopper of a request. A bearer JWT signed with
// Secret identifies a signed-in shopper by its subject; otherwise an
// anonymous sid cookie is used, issued on first visit.
type Identity struct {
	Secret       []byte
	SecureCookie bool
	CookieTTL    time.Duration

	newSID func() string
}

// Middleware rejects invalid bearer tokens and stores the owner key
// ("user:<sub>" or "anon:<sid>") in the request context.
func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var owner string
		if raw, ok := bearer(r); ok {
			sub, err := i.subject(raw)
			if err != nil {
				zctx.From(r.Context()).Debug("Rejected bearer token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			owner = "user:" + sub
		} else {
			owner = "anon:" + i.sid(w, r)
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (i *Identity) subject(raw string) (string, error) {
	if len(i.Secret) == 0 {
		return "", errors.New("bearer tokens are not accepted")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errors.Wrap(err, "parse token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func (i *Identity) sid(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && validSID(c.Value) {
		return c.Value
	}
	newSID := i.newSID
	if newSID == nil {
		newSID = idempotency.New
	}
	sid := newSID()
	ttl := i.CookieTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   i.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func validSID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, c := range s {
		if !(c == '-' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
