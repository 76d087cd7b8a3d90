package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// Encrypt seals plaintext under key with AES-256-GCM. The nonce is
// generated fresh per call and returned alongside the ciphertext; the
// two are persisted together and must never be separated.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext with the given nonce and key. A wrong key
// or tampered ciphertext fails closed with a CRYPTO_ERROR; corrupted
// plaintext is never returned.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, schema.NewErrorf(schema.ErrCodeCrypto,
			"nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCrypto, "decrypt failed").WithCause(err)
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, schema.NewErrorf(schema.ErrCodeCrypto,
			"key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}
