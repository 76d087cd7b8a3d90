package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("sk-live-abcdef0123456789")
	ciphertext, nonce, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, nonce, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, nonce, err := Encrypt([]byte("top secret"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, nonce, other)
	require.Error(t, err)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, nonce, err := Encrypt([]byte("top secret"), key)
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = Decrypt(ciphertext, nonce, key)
	require.Error(t, err)
}

func TestEncryptFreshNoncePerCall(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("same value")
	c1, n1, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	c2, n2, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(n1, n2), "nonce must be fresh per encryption")
	assert.False(t, bytes.Equal(c1, c2), "identical plaintexts must not share ciphertext")
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1 := DeriveKey("correct horse battery staple", salt)
	k2 := DeriveKey("correct horse battery staple", salt)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)

	k3 := DeriveKey("wrong horse battery staple", salt)
	assert.NotEqual(t, k1, k3)

	otherSalt, err := GenerateSalt()
	require.NoError(t, err)
	k4 := DeriveKey("correct horse battery staple", otherSalt)
	assert.NotEqual(t, k1, k4, "different salt must change the derived key")
}

func TestZero(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	Zero(key)
	assert.Equal(t, make([]byte, KeySize), key)
}
