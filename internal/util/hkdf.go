package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFKeyLength is the size of every derived key, matching AESKeySize.
const HKDFKeyLength = 32

// HKDF expands seed into a 32-byte key bound to salt and the given info
// label (RFC 5869 extract-and-expand, SHA-256). Distinct labels yield
// independent keys from the same seed, which is how an operator-supplied
// secret becomes the session seal key without being used directly.
func HKDF(seed, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, seed, salt, info)
	key := make([]byte, HKDFKeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}
