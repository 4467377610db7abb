package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/lockbox/crypto"
	"github.com/jmcleod/lockbox/internal/util"
	"github.com/jmcleod/lockbox/storage"
)

// Rekeyer coordinates a master-password change: new hash, new salt, new
// derived key, and a sweep re-encrypting every credential record under the
// new key.
//
// The sweep is not transactional across records. Each record carries the
// key epoch it was sealed under, and the user's epoch is bumped before the
// sweep starts, so a re-run of a half-finished change skips records that
// are already migrated instead of corrupting them. Calling ChangePassword
// again with the same new password resumes the interrupted sweep: the
// stored hash already matches, so the current epoch and persisted salt are
// reused rather than bumped, and only the stragglers are re-encrypted.
type Rekeyer struct {
	store    storage.Store
	creds    *CredentialStore
	sessions *SessionManager
	hashCost int
	logger   *slog.Logger
}

// RekeyOption configures a Rekeyer.
type RekeyOption func(*Rekeyer)

// WithRekeyHashCost overrides the bcrypt cost factor for the new hash.
func WithRekeyHashCost(cost int) RekeyOption {
	return func(r *Rekeyer) {
		r.hashCost = cost
	}
}

// WithRekeyLogger sets the structured logger for sweep progress.
func WithRekeyLogger(logger *slog.Logger) RekeyOption {
	return func(r *Rekeyer) {
		r.logger = logger.With("component", "rekey")
	}
}

// NewRekeyer creates a Rekeyer over the given collaborators.
func NewRekeyer(store storage.Store, creds *CredentialStore, sessions *SessionManager, opts ...RekeyOption) *Rekeyer {
	r := &Rekeyer{
		store:    store,
		creds:    creds,
		sessions: sessions,
		hashCost: DefaultHashCost,
		logger:   slog.Default().With("component", "rekey"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ChangePassword re-derives a key under newPassword, persists the new hash
// and salt, re-encrypts every credential record from oldKey to the new
// key, and — when sessionID is non-empty — rebinds that session so the
// caller stays logged in. It returns the number of records re-encrypted.
//
// On partial failure the count reflects what completed; completed
// re-encryptions are not rolled back.
func (r *Rekeyer) ChangePassword(ctx context.Context, userID string, oldKey []byte, newPassword, sessionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if newPassword == "" {
		return 0, fmt.Errorf("%w: new password must not be empty", ErrValidation)
	}

	user, err := loadUser(r.store, userID)
	if err != nil {
		return 0, err
	}

	var newKey []byte
	var newEpoch uint64

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(util.Normalize(newPassword))) == nil {
		// The stored hash already matches: this is a resumed change that
		// was interrupted mid-sweep. Re-derive the key from the persisted
		// salt and keep the current epoch so migrated records are skipped
		// and only stragglers are re-encrypted.
		salt, err := user.Salt()
		if err != nil {
			return 0, err
		}
		newKey, err = crypto.DeriveKey(newPassword, salt, user.KDFParams)
		if err != nil {
			return 0, err
		}
		newEpoch = user.KeyEpoch
	} else {
		newHash, err := bcrypt.GenerateFromPassword([]byte(util.Normalize(newPassword)), r.hashCost)
		if err != nil {
			return 0, fmt.Errorf("hashing new password: %w", err)
		}
		newSalt, err := crypto.NewSalt()
		if err != nil {
			return 0, err
		}
		newParams := crypto.DefaultKDFParams()
		newKey, err = crypto.DeriveKey(newPassword, newSalt, newParams)
		if err != nil {
			return 0, err
		}
		newEpoch = user.KeyEpoch + 1

		// The user record is rewritten first: once the new hash is live,
		// only the new password can log in, and the epoch bump marks
		// every still-old-keyed record as pending migration.
		err = r.store.Update(userPath(userID), func(doc []byte) ([]byte, error) {
			var u User
			if err := json.Unmarshal(doc, &u); err != nil {
				return nil, fmt.Errorf("decoding user: %w", err)
			}
			u.PasswordHash = string(newHash)
			u.KDFSalt = util.B64Encode(newSalt)
			u.KDFParams = newParams
			u.KeyEpoch = newEpoch
			return json.Marshal(u)
		})
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("updating user record: %w", err)
		}
	}
	defer util.WipeBytes(newKey)

	updated, err := r.reencryptAll(ctx, userID, oldKey, newKey, newEpoch)
	if err != nil {
		return updated, err
	}

	if sessionID != "" {
		if err := r.sessions.RebindKey(ctx, sessionID, newKey, newEpoch); err != nil {
			return updated, fmt.Errorf("rebinding session key: %w", err)
		}
	}

	r.logger.Info("password changed", "records_updated", updated)
	return updated, nil
}

func (r *Rekeyer) reencryptAll(ctx context.Context, userID string, oldKey, newKey []byte, newEpoch uint64) (int, error) {
	prefix := recordPrefix(userID)
	paths, err := r.store.List(prefix)
	if err != nil {
		return 0, fmt.Errorf("listing records: %w", err)
	}

	updated := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		rid := strings.TrimPrefix(path, prefix)

		migrated, err := r.reencryptOne(path, oldKey, newKey, newEpoch)
		if err != nil {
			return updated, fmt.Errorf("re-encrypting record %s: %w", rid, err)
		}
		if migrated {
			updated++
		}
	}
	return updated, nil
}

// reencryptOne migrates a single record to the new epoch inside one atomic
// read-modify-write. Records already at the new epoch are skipped, which
// makes a retried change-password safe: a migrated record is never opened
// with the old key again.
func (r *Rekeyer) reencryptOne(path string, oldKey, newKey []byte, newEpoch uint64) (bool, error) {
	migrated := false
	err := r.store.Update(path, func(doc []byte) ([]byte, error) {
		var record Record
		if err := json.Unmarshal(doc, &record); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		if record.KeyEpoch >= newEpoch {
			return doc, nil
		}

		plaintext, err := crypto.Open(record.Envelope, oldKey)
		if err != nil {
			return nil, err
		}
		env, err := crypto.Seal(plaintext, newKey)
		if err != nil {
			return nil, err
		}
		record.Envelope = env
		record.KeyEpoch = newEpoch
		migrated = true
		return json.Marshal(record)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil // deleted concurrently
	}
	return migrated, err
}
