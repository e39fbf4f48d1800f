package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Secret sizes in bytes before encoding.
const (
	// SecretSize128 provides 128 bits of entropy (22 chars base64url).
	SecretSize128 = 16
	// SecretSize256 provides 256 bits of entropy (43 chars base64url).
	SecretSize256 = 32
)

// GenerateSecret returns size random bytes encoded as unpadded base64url.
func GenerateSecret(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("secret size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
