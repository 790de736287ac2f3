// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	credentialEncryptionSalt = "clocksync-connector-credentials"
	credentialEncryptionInfo = "credential-encryption-v1"
	aesKeySize               = 32
	gcmNonceSize             = 12

	// encryptedPrefix marks stored values produced by Encrypt.
	encryptedPrefix = "enc:v1:"
)

var (
	// ErrEmptySecret is returned when no encryption key is provided.
	ErrEmptySecret = errors.New("encryption key cannot be empty")

	// ErrDecryptionFailed is returned for tampered or foreign ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the stored value is not well formed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
)

// CredentialEncryptor encrypts connector passwords and bearer tokens before
// they are written to the connectors table. The AES-256 key is derived from
// security.encryption_key with HKDF-SHA256.
type CredentialEncryptor struct {
	aead cipher.AEAD
}

// NewCredentialEncryptor derives a key from secret.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, aesKeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(credentialEncryptionSalt), []byte(credentialEncryptionInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &CredentialEncryptor{aead: aead}, nil
}

// Encrypt returns "enc:v1:" + base64(nonce || ciphertext || tag).
// Empty input stays empty so that a missing token remains missing.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the prefix are returned as-is,
// which lets an operator enable encryption on an existing database.
func (e *CredentialEncryptor) Decrypt(stored string) (string, error) {
	if stored == "" || !strings.HasPrefix(stored, encryptedPrefix) {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(data) < gcmNonceSize+e.aead.Overhead()+1 {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := e.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// MaskCredential shows only the last 4 characters of a credential.
func MaskCredential(credential string) string {
	switch {
	case credential == "":
		return ""
	case len(credential) <= 4:
		return "****"
	default:
		return "****..." + credential[len(credential)-4:]
	}
}
