package util

import (
	"bytes"
	"testing"
)

func TestAES(t *testing.T) {
	key, _ := RandomBytes(AESKeySize)
	plainText := []byte("hello world")
	aad := []byte("context")

	t.Run("SealOpenWithAAD", func(t *testing.T) {
		nonce, cipherText, err := SealAESGCM(plainText, key, aad)
		if err != nil {
			t.Fatalf("SealAESGCM failed: %v", err)
		}
		if len(nonce) != NonceSize {
			t.Errorf("expected %d-byte nonce, got %d", NonceSize, len(nonce))
		}

		decrypted, err := OpenAESGCM(nonce, cipherText, key, aad)
		if err != nil {
			t.Fatalf("OpenAESGCM failed: %v", err)
		}

		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		nonce, cipherText, _ := SealAESGCM(plainText, key, aad)
		_, err := OpenAESGCM(nonce, cipherText, key, []byte("wrong context"))
		if err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		nonce, cipherText, _ := SealAESGCM(plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		_, err := OpenAESGCM(nonce, cipherText, key, aad)
		if err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("TamperNonce", func(t *testing.T) {
		nonce, cipherText, _ := SealAESGCM(plainText, key, aad)
		nonce[0] ^= 0xFF
		_, err := OpenAESGCM(nonce, cipherText, key, aad)
		if err == nil {
			t.Error("expected error with tampered nonce, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		_, _, err := SealAESGCM(plainText, []byte("too short"), aad)
		if err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})

	t.Run("RejectTruncatedNonce", func(t *testing.T) {
		nonce, cipherText, _ := SealAESGCM(plainText, key, aad)
		_, err := OpenAESGCM(nonce[:8], cipherText, key, aad)
		if err == nil {
			t.Error("expected error with truncated nonce, got nil")
		}
	})
}

func TestB64RoundTrip(t *testing.T) {
	b, err := RandomBytes(33)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	s := B64Encode(b)
	decoded, err := B64Decode(s)
	if err != nil {
		t.Fatalf("B64Decode failed: %v", err)
	}
	if !bytes.Equal(b, decoded) {
		t.Error("base64url round trip mismatch")
	}
}

func TestRandomToken(t *testing.T) {
	t1, err := RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken failed: %v", err)
	}
	t2, _ := RandomToken(32)
	if t1 == t2 {
		t.Error("tokens should be unique")
	}
	if len(t1) != 43 { // 32 bytes, unpadded base64url
		t.Errorf("unexpected token length %d", len(t1))
	}
}

func TestNormalize(t *testing.T) {
	// U+212B (angstrom sign) normalizes to the same bytes as U+00C5 does.
	if Normalize("Å") != Normalize("Å") {
		t.Error("NFKD should unify equivalent code points")
	}
}

func TestHKDF(t *testing.T) {
	seed := []byte("seed material")
	salt := []byte("salt")
	info := []byte("lockbox:test:v1")

	k1, err := HKDF(seed, salt, info)
	if err != nil {
		t.Fatalf("HKDF failed: %v", err)
	}
	k2, _ := HKDF(seed, salt, info)
	if !bytes.Equal(k1, k2) {
		t.Error("HKDF should be deterministic")
	}

	k3, _ := HKDF(seed, salt, []byte("other info"))
	if bytes.Equal(k1, k3) {
		t.Error("HKDF should differ for different info")
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	WipeBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not wiped", i)
		}
	}
}
