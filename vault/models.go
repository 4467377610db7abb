// Package vault implements the core of the password-manager backend: user
// registration and login, short-lived sessions caching a password-derived
// key, envelope-encrypted credential records, and the re-key sweep that a
// master-password change triggers.
package vault

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/jmcleod/lockbox/crypto"
	"github.com/jmcleod/lockbox/internal/util"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// User is the persistent account record at users/{uid}.
//
// PasswordHash is a bcrypt hash; it is mutated only by a password change.
// KDFSalt and KDFParams reproduce the login key derivation, and KeyEpoch
// counts password changes so records sealed under a previous key are
// distinguishable from migrated ones.
type User struct {
	Email        string           `json:"email"`
	PasswordHash string           `json:"password_hash"`
	KDFSalt      string           `json:"kdf_salt"`
	KDFParams    crypto.KDFParams `json:"kdf_params"`
	KeyEpoch     uint64           `json:"key_epoch"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Salt returns the user's decoded KDF salt.
func (u *User) Salt() ([]byte, error) {
	salt, err := util.B64Decode(u.KDFSalt)
	if err != nil {
		return nil, fmt.Errorf("decoding KDF salt: %w", err)
	}
	return salt, nil
}

// Session is the server-side record at sessions/{sid} binding an opaque
// token to a cached derived key and an absolute expiry. The key field is
// the only place a derived key is ever persisted.
type Session struct {
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"`
	KeyEpoch   uint64    `json:"key_epoch"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// KeyBytes returns the cached derived key. Callers should wipe the returned
// slice when done.
func (s *Session) KeyBytes() ([]byte, error) {
	key, err := util.B64Decode(s.Key)
	if err != nil {
		return nil, fmt.Errorf("decoding session key: %w", err)
	}
	return key, nil
}

// Expired reports whether the session's absolute expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Record is one envelope-encrypted credential at
// data/{uid}/passwords/{rid}. PlainID is the user-chosen identifier the
// record id was hashed from; KeyEpoch is the user key epoch the envelope
// was last sealed under.
type Record struct {
	PlainID  string          `json:"plain_id"`
	Envelope crypto.Envelope `json:"envelope"`
	KeyEpoch uint64          `json:"key_epoch"`
}

// Entry is one decrypted credential returned by ReadAll.
type Entry struct {
	RecordID  string
	PlainID   string
	Plaintext string
}

// UserID derives the opaque user id from an email address. The email is
// case-folded and NFKD-normalized first so address capitalization does not
// split accounts.
func UserID(email string) string {
	normalized := strings.ToLower(util.Normalize(strings.TrimSpace(email)))
	sum := sha256.Sum256([]byte(normalized))
	return util.B64Encode(sum[:])
}

// RecordID derives the deterministic record id from a user-chosen pID. It
// is a function of the pID alone — not the user — so equal pIDs collide
// across users and are scoped by storage path instead. The pID is hashed
// byte-for-byte: "site" and "site " are distinct records.
func RecordID(pID string) string {
	sum := sha256.Sum256([]byte(pID))
	return util.B64Encode(sum[:])
}

const (
	usersPrefix    = "users/"
	sessionsPrefix = "sessions/"
	dataPrefix     = "data/"
)

func userPath(uid string) string {
	return usersPrefix + uid
}

func sessionPath(sid string) string {
	return sessionsPrefix + sid
}

func recordPrefix(uid string) string {
	return dataPrefix + uid + "/passwords/"
}

func recordPath(uid, rid string) string {
	return recordPrefix(uid) + rid
}
