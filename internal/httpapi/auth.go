package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

type ctxKey string

const ctxKeyRole ctxKey = "flowkernel_role"

// Authenticator validates either a Bearer JWT (HMAC, shared secret) or
// an X-API-Key header against a configured set of static keys. A zero
// Authenticator (no secret, no keys) rejects every request; construct
// with NoAuth() to disable authentication entirely.
type Authenticator struct {
	jwtSecret []byte
	apiKeys   map[string]string // key -> role
	disabled  bool
}

// NewAuthenticator builds an Authenticator that accepts jwtSecret-signed
// bearer tokens (HS256) and any of apiKeys (key -> role).
func NewAuthenticator(jwtSecret string, apiKeys map[string]string) *Authenticator {
	return &Authenticator{jwtSecret: []byte(jwtSecret), apiKeys: apiKeys}
}

// NoAuth returns an Authenticator that lets every request through.
func NoAuth() *Authenticator { return &Authenticator{disabled: true} }

// Middleware enforces authentication per the configured mode, storing
// the resolved role (from an API key, or the JWT "role" claim) in the
// request context for downstream handlers.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.disabled {
			next.ServeHTTP(w, r)
			return
		}
		role, err := a.authenticate(r)
		if err != nil {
			writeError(w, kernelerr.New(kernelerr.Authentication, "%s", err.Error()))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (string, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		role, ok := a.apiKeys[key]
		if !ok {
			return "", errAuth("unknown API key")
		}
		return role, nil
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		raw := strings.TrimPrefix(authz, "Bearer ")
		if len(a.jwtSecret) == 0 {
			return "", errAuth("bearer auth not configured")
		}
		tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, a.jwtSecret), jwt.WithValidate(true))
		if err != nil {
			return "", errAuth("invalid bearer token: " + err.Error())
		}
		role, _ := tok.Get("role")
		if r, ok := role.(string); ok {
			return r, nil
		}
		return "", nil
	}
	return "", errAuth("missing Authorization or X-API-Key header")
}

type authErr string

func (e authErr) Error() string { return string(e) }
func errAuth(msg string) error  { return authErr(msg) }

// roleFromContext returns the authenticated role, if any.
func roleFromContext(ctx context.Context) string {
	r, _ := ctx.Value(ctxKeyRole).(string)
	return r
}
