package service

import (
	"encoding/base64"
	"strings"
	"testing"

	"crypto-settlement/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Valid 32-byte key in hex (64 chars)
const testVaultKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestVault(t *testing.T) *AESVault {
	t.Helper()
	v, err := NewAESVaultFromString(testVaultKey)
	require.NoError(t, err)
	return v
}

func TestAESVault_RejectsWrongKeySize(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := NewAESVault(make([]byte, n))
		assert.ErrorIs(t, err, apperror.ErrValidationKind, "key of %d bytes", n)
	}
}

func TestAESVault_FromBase64Key(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	_, err := NewAESVaultFromString(key)
	require.NoError(t, err)

	_, err = NewAESVaultFromString("not-a-key")
	assert.Error(t, err)
}

func TestAESVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	for _, plaintext := range []string{"", "4c0883a69102937d6231471b5dbb6204fe512961708279f2e3e8a5d4b3f1c0a9", strings.Repeat("x", 4096)} {
		blob, err := v.Encrypt(plaintext)
		require.NoError(t, err)
		if plaintext != "" {
			assert.NotContains(t, blob, plaintext)
		}

		got, err := v.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestAESVault_FreshNoncePerEncryption(t *testing.T) {
	v := newTestVault(t)

	c1, err := v.Encrypt("same secret")
	require.NoError(t, err)
	c2, err := v.Encrypt("same secret")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestAESVault_BlobLayout(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt("abc")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	// 12-byte nonce + 3-byte ciphertext + 16-byte tag
	assert.Len(t, raw, 12+3+16)
}

func TestAESVault_DecryptFailures(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt("secret key material")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(blob)
	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xff

	other, err := NewAESVault([]byte(strings.Repeat("z", 32)))
	require.NoError(t, err)

	cases := map[string]func() (string, error){
		"not base64": func() (string, error) { return v.Decrypt("%%%") },
		"too short":  func() (string, error) { return v.Decrypt(base64.StdEncoding.EncodeToString([]byte("short"))) },
		"tampered":   func() (string, error) { return v.Decrypt(base64.StdEncoding.EncodeToString(tampered)) },
		"wrong key":  func() (string, error) { return other.Decrypt(blob) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := fn()
			assert.ErrorIs(t, err, apperror.ErrDecryptionKind)
			assert.Empty(t, got)
		})
	}
}
