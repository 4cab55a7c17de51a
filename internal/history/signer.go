package history

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Aafreen2203/SafePostAI/internal/cryptoutil"
)

const signaturePrefix = "hmac-sha256:"

// ErrWeakSigningKey is returned when the signing key is shorter than 32 bytes.
var ErrWeakSigningKey = errors.New("signing key must be at least 32 bytes")

// Signer produces HMAC-SHA256 signatures over scan records.
type Signer struct {
	key []byte
}

// NewSigner accepts either 32+ raw bytes or an even-length hex string of 64+
// characters.
func NewSigner(key string) (*Signer, error) {
	b := cryptoutil.KeyBytes(key)
	if len(b) < 32 {
		return nil, fmt.Errorf("%w (got %d)", ErrWeakSigningKey, len(b))
	}
	return &Signer{key: b}, nil
}

// Sign returns "hmac-sha256:<hex>" for data.
func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches data.
func (s *Signer) Verify(data []byte, signature string) bool {
	return hmac.Equal([]byte(s.Sign(data)), []byte(signature))
}
