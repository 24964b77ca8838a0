// Package secrets encrypts credential material before it reaches the
// database. It is a pass-through utility: the sync engine hands it opaque
// strings and gets opaque strings back.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const storagePrefix = "ENC:v1:"

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Box performs AES-256-GCM encryption with a single data key.
type Box struct {
	key []byte
}

// NewBox derives a Box from the configured key string. A base64 encoded
// 16/24/32-byte key is used as-is; anything else is hashed with SHA-256
// so operators can configure a passphrase.
func NewBox(keyString string) (*Box, error) {
	keyString = strings.TrimSpace(keyString)
	if keyString == "" {
		return nil, errors.New("encryption key is not configured")
	}

	if raw, err := base64.StdEncoding.DecodeString(keyString); err == nil {
		switch len(raw) {
		case 16, 24, 32:
			return &Box{key: raw}, nil
		}
	}

	sum := sha256.Sum256([]byte(keyString))
	return &Box{key: sum[:]}, nil
}

// Encrypt seals plaintext and returns a prefixed, base64-encoded blob
// suitable for column storage. The nonce is prepended to the ciphertext.
func (b *Box) Encrypt(plaintext string) (string, error) {
	gcm, err := b.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return storagePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails on blobs sealed with a different key
// or blobs missing the storage prefix.
func (b *Box) Decrypt(blob string) (string, error) {
	if !strings.HasPrefix(blob, storagePrefix) {
		return "", ErrMalformedCiphertext
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, storagePrefix))
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	gcm, err := b.aead()
	if err != nil {
		return "", err
	}

	if len(sealed) < gcm.NonceSize() {
		return "", ErrMalformedCiphertext
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential blob: %w", err)
	}

	return string(plaintext), nil
}

func (b *Box) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
