package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/lockbox/internal/util"
)

// CreatePassword handles POST /passwords.
func (a *API) CreatePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreatePasswordRequest](w, r, maxItemBodySize)
	if !ok {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	session := sessionFromContext(r.Context())
	key, err := session.KeyBytes()
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(key)

	if err := a.creds.Create(r.Context(), session.UserID, req.ID, req.Password, key, session.KeyEpoch); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PasswordResponse{ID: req.ID, Password: req.Password})
}

// GetPassword handles GET /passwords/{pid}.
func (a *API) GetPassword(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")
	session := sessionFromContext(r.Context())
	key, err := session.KeyBytes()
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(key)

	plaintext, err := a.creds.Read(r.Context(), session.UserID, pid, key)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PasswordResponse{ID: pid, Password: plaintext})
}

// ListPasswords handles GET /passwords. It decrypts every record for the
// authenticated user.
func (a *API) ListPasswords(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	key, err := session.KeyBytes()
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(key)

	entries, err := a.creds.ReadAll(r.Context(), session.UserID, key)
	if err != nil {
		mapError(w, err)
		return
	}

	passwords := make([]PasswordResponse, 0, len(entries))
	for _, entry := range entries {
		passwords = append(passwords, PasswordResponse{ID: entry.PlainID, Password: entry.Plaintext})
	}
	writeJSON(w, http.StatusOK, ListPasswordsResponse{Passwords: passwords})
}

// UpdatePassword handles PUT /passwords/{pid}.
func (a *API) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")
	req, ok := decodeJSON[UpdatePasswordRequest](w, r, maxItemBodySize)
	if !ok {
		return
	}

	session := sessionFromContext(r.Context())
	key, err := session.KeyBytes()
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(key)

	if err := a.creds.Update(r.Context(), session.UserID, pid, req.Password, key, session.KeyEpoch); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PasswordResponse{ID: pid, Password: req.Password})
}

// RenamePassword handles POST /passwords/{pid}/rename. The stored secret
// is moved, not re-encrypted.
func (a *API) RenamePassword(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")
	req, ok := decodeJSON[RenamePasswordRequest](w, r, maxItemBodySize)
	if !ok {
		return
	}
	if req.NewID == "" {
		writeError(w, http.StatusBadRequest, "new_id is required")
		return
	}

	session := sessionFromContext(r.Context())
	if err := a.creds.Rename(r.Context(), session.UserID, pid, req.NewID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePassword handles DELETE /passwords/{pid}. Deleting an absent
// record succeeds.
func (a *API) DeletePassword(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")
	session := sessionFromContext(r.Context())
	if err := a.creds.Delete(r.Context(), session.UserID, pid); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
