package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/lockbox/crypto"
	"github.com/jmcleod/lockbox/vault"
)

const (
	maxAuthBodySize = 16 << 10
	maxItemBodySize = 64 << 10
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrMissingCredentials),
		errors.Is(err, vault.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, vault.ErrNoSession),
		errors.Is(err, vault.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, vault.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, vault.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, vault.ErrUserExists):
		writeError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, vault.ErrDuplicateRecord):
		writeError(w, http.StatusConflict, "record already exists")
	case errors.Is(err, crypto.ErrDecryptionFailed):
		writeError(w, http.StatusConflict, "decryption failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads and decodes a JSON request body into T, enforcing a
// size cap. On failure it writes a 400 response and returns ok=false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}
