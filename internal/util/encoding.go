package util

import (
	"encoding/base64"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD normalization so that visually identical passwords
// typed on different platforms derive the same key.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// B64Encode encodes bytes as unpadded URL-safe base64, the representation
// used for every identifier and envelope field that crosses a storage or
// transport boundary.
func B64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func B64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
