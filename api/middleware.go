package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/jmcleod/lockbox/internal/uuid"
	"github.com/jmcleod/lockbox/vault"
)

type contextKey int

const (
	sessionKey contextKey = iota
	tokenKey
	requestIDKey
)

const authScheme = "Session"

// requestID tags every request with an opaque id, echoed back in the
// X-Request-ID header and attached to log lines.
func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware authenticates the "Authorization: Session <token>" header,
// validates the session (refreshing its last-used timestamp), and stores
// the session and token on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		session, err := a.sessions.Validate(r.Context(), token)
		if err != nil {
			mapError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, authScheme) || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func sessionFromContext(ctx context.Context) *vault.Session {
	session, _ := ctx.Value(sessionKey).(*vault.Session)
	return session
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
