package api

import (
	"net/http"
	"time"

	"github.com/jmcleod/lockbox/internal/util"
	"github.com/jmcleod/lockbox/vault"
)

// Register handles POST /auth/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}

	if _, err := a.gate.Register(r.Context(), req.Email, req.Password); err != nil {
		mapError(w, err)
		return
	}

	uid := vault.UserID(req.Email)
	a.logger.Info("user registered", "request_id", requestIDFromContext(r.Context()), "user_id", uid)
	writeJSON(w, http.StatusCreated, RegisterResponse{UserID: uid})
}

// Login handles POST /auth/login. A successful login returns the session
// token both in the response body and in the Session header.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Email == "" || req.Password == "" {
		mapError(w, vault.ErrMissingCredentials)
		return
	}

	// The rate-limit key is the derived user id, not the email itself, so
	// limiter state never holds raw addresses.
	accountID := vault.UserID(req.Email)
	if blocked, retryAfter := a.rateLimiter.check(accountID); blocked {
		a.logger.Warn("login rate limited", "request_id", requestIDFromContext(r.Context()), "user_id", accountID)
		writeRateLimited(w, retryAfter)
		return
	}

	token, session, err := a.gate.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.rateLimiter.recordFailure(accountID)
		mapError(w, err)
		return
	}
	a.rateLimiter.recordSuccess(accountID)

	a.logger.Info("login", "request_id", requestIDFromContext(r.Context()), "user_id", session.UserID)
	w.Header().Set("Session", token)
	writeJSON(w, http.StatusOK, LoginResponse{
		SessionID: token,
		ExpiresIn: int64(a.sessions.TTL() / time.Second),
	})
}

// Logout handles POST /auth/logout. Logging out an absent or already
// expired session succeeds.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := sessionToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return
	}
	if err := a.gate.Logout(r.Context(), token); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionStatus handles GET /auth/session. It is a read-only probe: it
// reports validity without refreshing last_used_at or deleting expired
// sessions.
func (a *API) SessionStatus(w http.ResponseWriter, r *http.Request) {
	token, ok := sessionToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	session, err := a.sessions.Get(r.Context(), token)
	if err != nil || session.Expired(time.Now().UTC()) {
		writeJSON(w, http.StatusUnauthorized, SessionStatusResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, SessionStatusResponse{
		Valid:     true,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}

// ChangePassword handles POST /auth/change-password. The caller's session
// is rebound to the new key, so the same token keeps working afterwards.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ChangePasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}

	session := sessionFromContext(r.Context())
	oldKey, err := session.KeyBytes()
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(oldKey)

	updated, err := a.rekeyer.ChangePassword(r.Context(), session.UserID, oldKey, req.NewPassword, tokenFromContext(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}

	a.logger.Info("password changed", "request_id", requestIDFromContext(r.Context()),
		"user_id", session.UserID, "records_updated", updated)
	writeJSON(w, http.StatusOK, ChangePasswordResponse{RecordsUpdated: updated})
}
