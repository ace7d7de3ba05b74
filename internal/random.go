package internal

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

const refreshSecretSize = 32

// NewRecordID returns a random UUIDv4 for a refresh record.
func NewRecordID() string {
	return uuid.NewString()
}

// NewFamilyID returns a random UUIDv4 naming a new rotation lineage.
func NewFamilyID() string {
	return uuid.NewString()
}

// NewRefreshSecret returns 32 random bytes encoded as unpadded base64url.
func NewRefreshSecret() (string, error) {
	var secret [refreshSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// ValidRefreshSecret reports whether s decodes to exactly 32 bytes.
func ValidRefreshSecret(s string) bool {
	if len(s) != base64.RawURLEncoding.EncodedLen(refreshSecretSize) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(raw) == refreshSecretSize
}
