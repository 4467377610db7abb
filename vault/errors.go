package vault

import "errors"

var (
	// ErrValidation indicates malformed input (empty pID, mismatched
	// confirm password).
	ErrValidation = errors.New("invalid input")

	// ErrUserExists indicates a registration attempt for an email that is
	// already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates no user exists for the given email or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrCannotCreateUser indicates the user record could not be persisted.
	ErrCannotCreateUser = errors.New("unable to create user")
	// ErrWrongPassword indicates the password did not match the stored hash.
	ErrWrongPassword = errors.New("wrong password")
	// ErrMissingCredentials indicates the login input was incomplete.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrNoSession indicates the session token does not resolve to a session.
	ErrNoSession = errors.New("no session")
	// ErrSessionExpired indicates the session existed but its expiry has
	// passed; the session has been deleted.
	ErrSessionExpired = errors.New("session expired")

	// ErrRecordNotFound indicates no credential record exists for the pID.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateRecord indicates a credential record already exists for
	// the pID.
	ErrDuplicateRecord = errors.New("record already exists")
)
