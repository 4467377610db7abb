package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmcleod/lockbox/crypto"
	"github.com/jmcleod/lockbox/storage"
)

// CredentialStore owns the lifecycle of envelope-encrypted credential
// records under data/{uid}/passwords/. Every operation takes the caller's
// session key; the store itself never derives or caches key material.
type CredentialStore struct {
	store storage.Store
}

// NewCredentialStore creates a CredentialStore over the given store.
func NewCredentialStore(store storage.Store) *CredentialStore {
	return &CredentialStore{store: store}
}

// Create seals plaintext under key and persists a new record for pID.
// Returns ErrDuplicateRecord if a record already exists for this pID under
// this user.
func (c *CredentialStore) Create(ctx context.Context, userID, pID, plaintext string, key []byte, keyEpoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePID(pID); err != nil {
		return err
	}

	env, err := crypto.Seal(plaintext, key)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(Record{PlainID: pID, Envelope: env, KeyEpoch: keyEpoch})
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	err = c.store.SetIfAbsent(recordPath(userID, RecordID(pID)), doc)
	if errors.Is(err, storage.ErrExists) {
		return fmt.Errorf("%q: %w", pID, ErrDuplicateRecord)
	}
	return err
}

// Read decrypts and returns the plaintext stored for pID. A wrong key
// surfaces as crypto.ErrDecryptionFailed, distinct from ErrRecordNotFound.
func (c *CredentialStore) Read(ctx context.Context, userID, pID string, key []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validatePID(pID); err != nil {
		return "", err
	}

	record, err := c.load(userID, RecordID(pID))
	if err != nil {
		return "", err
	}
	return crypto.Open(record.Envelope, key)
}

// ReadAll decrypts every record for the user. It fails fast on the first
// decryption failure: the user has one key per epoch, so a single failure
// means the key is wrong for every record, not just one.
func (c *CredentialStore) ReadAll(ctx context.Context, userID string, key []byte) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := recordPrefix(userID)
	paths, err := c.store.List(prefix)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rid := strings.TrimPrefix(path, prefix)
		record, err := c.load(userID, rid)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				continue // deleted concurrently
			}
			return nil, err
		}
		plaintext, err := crypto.Open(record.Envelope, key)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", record.PlainID, err)
		}
		entries = append(entries, Entry{RecordID: rid, PlainID: record.PlainID, Plaintext: plaintext})
	}
	return entries, nil
}

// Update re-seals the record for pID with a new plaintext. The identifier
// is unchanged; only the envelope (and its epoch) is rewritten.
func (c *CredentialStore) Update(ctx context.Context, userID, pID, newPlaintext string, key []byte, keyEpoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePID(pID); err != nil {
		return err
	}

	env, err := crypto.Seal(newPlaintext, key)
	if err != nil {
		return err
	}

	err = c.store.Update(recordPath(userID, RecordID(pID)), func(doc []byte) ([]byte, error) {
		var record Record
		if err := json.Unmarshal(doc, &record); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		record.Envelope = env
		record.KeyEpoch = keyEpoch
		return json.Marshal(record)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%q: %w", pID, ErrRecordNotFound)
	}
	return err
}

// Rename moves the record for pID to newPID. The envelope is copied
// unchanged — renaming never re-encrypts — to a new record id, and the old
// record is deleted afterwards. An existing record at the destination is
// never overwritten.
func (c *CredentialStore) Rename(ctx context.Context, userID, pID, newPID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePID(pID); err != nil {
		return err
	}
	if err := validatePID(newPID); err != nil {
		return err
	}

	record, err := c.load(userID, RecordID(pID))
	if err != nil {
		return err
	}

	record.PlainID = newPID
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	err = c.store.SetIfAbsent(recordPath(userID, RecordID(newPID)), doc)
	if errors.Is(err, storage.ErrExists) {
		return fmt.Errorf("%q: %w", newPID, ErrDuplicateRecord)
	}
	if err != nil {
		return err
	}
	return c.store.Delete(recordPath(userID, RecordID(pID)))
}

// Delete removes the record for pID. Deleting an absent record is not an
// error; delete-delete races are harmless.
func (c *CredentialStore) Delete(ctx context.Context, userID, pID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePID(pID); err != nil {
		return err
	}
	return c.store.Delete(recordPath(userID, RecordID(pID)))
}

func (c *CredentialStore) load(userID, rid string) (*Record, error) {
	doc, err := c.store.Get(recordPath(userID, rid))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &record, nil
}

func validatePID(pID string) error {
	if pID == "" {
		return fmt.Errorf("%w: pID must not be empty", ErrValidation)
	}
	return nil
}
