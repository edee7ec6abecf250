package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"crypto-settlement/pkg/apperror"
)

const vaultKeySize = 32

// AESVault implements ports.Vault using AES-256-GCM.
// Blobs are base64(nonce || ciphertext || tag).
type AESVault struct {
	aead cipher.AEAD
}

// NewAESVault creates a vault from a raw 32-byte key.
func NewAESVault(key []byte) (*AESVault, error) {
	if len(key) != vaultKeySize {
		return nil, apperror.Validation(fmt.Sprintf("vault key must be %d bytes, got %d", vaultKeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &AESVault{aead: aead}, nil
}

// NewAESVaultFromString accepts the key as 64 hex chars or standard base64.
func NewAESVaultFromString(encoded string) (*AESVault, error) {
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == vaultKeySize {
		return NewAESVault(key)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperror.Validation("vault key must be 32 bytes encoded as hex or base64")
	}
	return NewAESVault(key)
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *AESVault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperror.ErrEncryption(fmt.Errorf("generating nonce: %w", err))
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any malformed, truncated,
// tampered or foreign blob yields a DecryptionError and no plaintext.
func (v *AESVault) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", apperror.ErrDecryption(fmt.Errorf("decoding blob: %w", err))
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize+v.aead.Overhead() {
		return "", apperror.ErrDecryption(errors.New("blob too short"))
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apperror.ErrDecryption(err)
	}

	return string(plaintext), nil
}
