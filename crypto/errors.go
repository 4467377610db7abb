package crypto

import "errors"

var (
	// ErrDecryptionFailed indicates an envelope could not be authenticated —
	// wrong key, corrupted ciphertext, or a tampered nonce. It is never
	// returned alongside plaintext.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrKeyDerivation indicates the key derivation input was unusable.
	ErrKeyDerivation = errors.New("key derivation failed")
)
