// Package crypto implements the vault's key derivation and
// authenticated encryption. All functions are pure (no I/O beyond the
// system random source) and safe for concurrent use.
package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. 64 MiB memory keeps offline brute force
// expensive; a wrong passphrase is only detected downstream when the
// wrapped master key fails to decrypt.
const (
	kdfMemory  = 64 * 1024 // KiB
	kdfTime    = 3
	kdfThreads = 4

	KeySize  = 32
	SaltSize = 32
)

// DeriveKey derives a 256-bit key from a passphrase and salt via
// Argon2id. Deterministic for a given (passphrase, salt) pair.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, KeySize)
}

// GenerateSalt returns a fresh random salt, generated once per vault.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// GenerateKey returns a fresh random 256-bit master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Zero overwrites a byte slice in memory with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
