package password

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

const minSecretKeyBytes = 32

// ErrSecretKeyTooShort is returned by NewSecretHasher for keys under 32 bytes.
var ErrSecretKeyTooShort = errors.New("refresh hash key must be at least 32 bytes")

// SecretHasher derives deterministic lookup digests for high-entropy refresh
// secrets. It is a keyed HMAC-SHA256, not a password hash.
type SecretHasher struct {
	key []byte
}

// NewSecretHasher copies key and returns a hasher bound to it.
func NewSecretHasher(key []byte) (*SecretHasher, error) {
	if len(key) < minSecretKeyBytes {
		return nil, ErrSecretKeyTooShort
	}

	k := make([]byte, len(key))
	copy(k, key)
	return &SecretHasher{key: k}, nil
}

// Hash returns the lowercase hex HMAC-SHA256 of secret.
func (h *SecretHasher) Hash(secret string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
