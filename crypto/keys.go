// Package crypto implements the two primitives every secret in this system
// passes through: slow key derivation from a master password, and
// authenticated envelope encryption under the derived key.
package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jmcleod/lockbox/internal/util"
)

const (
	// KeySize is the size of every derived symmetric key.
	KeySize = util.AESKeySize
	// SaltSize is the size of the per-user KDF salt.
	SaltSize = 32
	// MinIterations is the floor for the PBKDF2 iteration count.
	MinIterations = 100_000
)

// KDFParams pins the derivation parameters a key was produced with. They are
// persisted alongside the user's salt so login re-derivation is reproducible
// even after the defaults change.
type KDFParams struct {
	Iterations int `json:"iterations"`
	KeyLen     int `json:"key_len"`
}

// DefaultKDFParams returns the parameters used for newly registered users.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Iterations: MinIterations,
		KeyLen:     KeySize,
	}
}

// NewSalt generates a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	return util.RandomBytes(SaltSize)
}

// DeriveKey derives a 256-bit symmetric key from a master password with
// PBKDF2-SHA256. The password is NFKD-normalized before hashing. Given equal
// password, salt, and params the result is identical across processes — the
// key is re-derived from scratch on every login, never persisted outside a
// session record.
//
// The derived key is used exclusively for AEAD encryption; it is never
// reused as a MAC or signing key.
func DeriveKey(masterPassword string, salt []byte, params KDFParams) ([]byte, error) {
	if masterPassword == "" {
		return nil, fmt.Errorf("%w: empty password", ErrKeyDerivation)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrKeyDerivation)
	}
	if params.Iterations < MinIterations {
		return nil, fmt.Errorf("%w: iteration count %d below minimum %d", ErrKeyDerivation, params.Iterations, MinIterations)
	}
	if params.KeyLen != KeySize {
		return nil, fmt.Errorf("%w: key length must be %d bytes", ErrKeyDerivation, KeySize)
	}

	normalized := util.Normalize(masterPassword)
	return pbkdf2.Key([]byte(normalized), salt, params.Iterations, params.KeyLen, sha256.New), nil
}
