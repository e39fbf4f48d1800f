package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MasterKeyEnv names the environment variable holding sealing key material.
const MasterKeyEnv = "MALL_MASTER_KEY"

// sealPrefix marks values produced by Seal so plaintext written by an older
// unsealed client is still recognisable.
const sealPrefix = "sealed:v1:"

var (
	ErrEmptyKey   = errors.New("cryptox: empty key material")
	ErrNotSealed  = errors.New("cryptox: value is not sealed")
	ErrOpenFailed = errors.New("cryptox: failed to open sealed value")
)

// Sealer encrypts credential values at rest with XChaCha20-Poly1305.
// Output format: "sealed:v1:" + base64url([24-byte nonce][ciphertext+tag]).
type Sealer struct {
	key [chacha20poly1305.KeySize]byte
}

// NewSealer derives a 256-bit key from keyMaterial with HKDF-SHA256.
func NewSealer(keyMaterial []byte) (*Sealer, error) {
	if len(keyMaterial) == 0 {
		return nil, ErrEmptyKey
	}

	s := &Sealer{}
	kdf := hkdf.New(sha256.New, keyMaterial, nil, []byte("mall-cloud credential store"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	return s, nil
}

// SealerFromEnv builds a Sealer from MALL_MASTER_KEY. It returns nil, nil when
// the variable is unset, meaning values are stored unsealed.
func SealerFromEnv() (*Sealer, error) {
	material := os.Getenv(MasterKeyEnv)
	if material == "" {
		return nil, nil
	}
	return NewSealer([]byte(material))
}

// Seal encrypts plaintext. additional binds the ciphertext to a context such
// as the storage key, so a value cannot be moved to another slot.
func (s *Sealer) Seal(plaintext, additional string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(additional))
	return sealPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal with the same additional data.
func (s *Sealer) Open(sealed, additional string) (string, error) {
	if len(sealed) < len(sealPrefix) || sealed[:len(sealPrefix)] != sealPrefix {
		return "", ErrNotSealed
	}

	raw, err := base64.RawURLEncoding.DecodeString(sealed[len(sealPrefix):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrOpenFailed)
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(additional))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	return string(plaintext), nil
}
