package crypto

import (
	"fmt"

	"github.com/jmcleod/lockbox/internal/util"
)

// Envelope is one sealed plaintext: an AES-256-GCM ciphertext and the nonce
// it was sealed with, both as unpadded URL-safe base64 so the pair is safe
// to store and transport as-is.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// Seal encrypts plaintext under key. Every call draws a fresh random nonce;
// nonce reuse under the same key never happens.
func Seal(plaintext string, key []byte) (Envelope, error) {
	nonce, cipherText, err := util.SealAESGCM([]byte(plaintext), key, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("sealing envelope: %w", err)
	}
	return Envelope{
		Ciphertext: util.B64Encode(cipherText),
		Nonce:      util.B64Encode(nonce),
	}, nil
}

// Open decrypts an envelope under key. A failed authentication tag — wrong
// key, corrupted ciphertext, truncated nonce — returns ErrDecryptionFailed,
// never garbage plaintext.
func Open(env Envelope, key []byte) (string, error) {
	cipherText, err := util.B64Decode(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext encoding", ErrDecryptionFailed)
	}
	nonce, err := util.B64Decode(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: malformed nonce encoding", ErrDecryptionFailed)
	}

	plainText, err := util.OpenAESGCM(nonce, cipherText, key, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plainText), nil
}
