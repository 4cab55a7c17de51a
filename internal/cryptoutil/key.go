// Package cryptoutil decodes the symmetric keys SafePost reads from config.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyBytes returns the key material a configured key stands for. An
// even-length hex string of at least 64 characters decodes to its bytes;
// anything else is used verbatim.
func KeyBytes(key string) []byte {
	if len(key) >= 64 && len(key)%2 == 0 {
		if b, err := hex.DecodeString(key); err == nil {
			return b
		}
	}
	return []byte(key)
}

// ValidAESKey reports whether key yields exactly 32 bytes of key material.
func ValidAESKey(key string) bool {
	return len(KeyBytes(key)) == 32
}

// DeriveKey expands secret into 32 bytes of key material bound to info with
// HKDF-SHA256 and returns them hex-encoded. Equal inputs give equal keys.
func DeriveKey(secret, info string) string {
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), []byte("safepost"), []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF-SHA256 can produce up to 8160 bytes.
		panic(err)
	}
	return hex.EncodeToString(out)
}
