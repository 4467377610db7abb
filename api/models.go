package api

// RegisterRequest is the JSON body for POST /auth/register.
// ConfirmPassword is optional; when present it must match Password.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

// RegisterResponse is returned from POST /auth/register.
type RegisterResponse struct {
	UserID string `json:"user_id"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /auth/login. ExpiresIn is the
// session lifetime in seconds.
type LoginResponse struct {
	SessionID string `json:"session_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// SessionStatusResponse is returned from GET /auth/session.
type SessionStatusResponse struct {
	Valid     bool   `json:"valid"`
	UserID    string `json:"user_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// ChangePasswordRequest is the JSON body for POST /auth/change-password.
type ChangePasswordRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

// ChangePasswordResponse is returned from POST /auth/change-password.
type ChangePasswordResponse struct {
	RecordsUpdated int `json:"records_updated"`
}

// CreatePasswordRequest is the JSON body for POST /passwords.
type CreatePasswordRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// UpdatePasswordRequest is the JSON body for PUT /passwords/{pid}.
type UpdatePasswordRequest struct {
	Password string `json:"password"`
}

// RenamePasswordRequest is the JSON body for POST /passwords/{pid}/rename.
type RenamePasswordRequest struct {
	NewID string `json:"new_id"`
}

// PasswordResponse is one decrypted credential.
type PasswordResponse struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// ListPasswordsResponse is returned from GET /passwords.
type ListPasswordsResponse struct {
	Passwords []PasswordResponse `json:"passwords"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
