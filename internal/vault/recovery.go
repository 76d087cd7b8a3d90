package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/the-agency-ai/secretvault/internal/logging"
	"github.com/the-agency-ai/secretvault/internal/store"
	"github.com/the-agency-ai/secretvault/pkg/schema"
)

const recoveryCodeCount = 8

// newRecoveryCode produces one code: 16 random bytes rendered as
// uppercase hex in eight dash-separated groups of four.
func newRecoveryCode() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", schema.NewError(schema.ErrCodeCrypto, "failed to generate recovery code").WithCause(err)
	}
	full := strings.ToUpper(hex.EncodeToString(raw))
	groups := make([]string, 0, len(full)/4)
	for i := 0; i < len(full); i += 4 {
		groups = append(groups, full[i:i+4])
	}
	return strings.Join(groups, "-"), nil
}

// hashRecoveryCode returns the hex SHA-256 digest stored in place of
// the plaintext code.
func hashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// mintRecoveryCodes generates a fresh batch, persists their hashes
// (replacing any unused ones) and returns the plaintext codes. The
// only time plaintext codes exist.
func mintRecoveryCodes(ctx context.Context, st store.Store) ([]string, error) {
	codes := make([]string, 0, recoveryCodeCount)
	hashes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hashRecoveryCode(code))
	}
	if err := st.ReplaceRecoveryCodes(ctx, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// GenerateRecoveryCodes mints a replacement batch, invalidating all
// unused codes. Requires Unlocked.
func (s *Service) GenerateRecoveryCodes(ctx context.Context) (*schema.RecoveryCodesResponse, error) {
	if !s.session.IsUnlocked() {
		return nil, schema.NewError(schema.ErrCodeVaultLocked, "vault must be unlocked to regenerate recovery codes")
	}
	codes, err := mintRecoveryCodes(ctx, s.store)
	if err != nil {
		return nil, err
	}
	s.session.Touch()
	logging.LogWith(ctx, s.logger).InfoContext(ctx, "recovery codes regenerated",
		slog.Int("count", len(codes)))
	return &schema.RecoveryCodesResponse{
		Codes:   codes,
		Message: fmt.Sprintf("Generated %d new recovery codes. Previous unused codes are now invalid.", len(codes)),
	}, nil
}

// UseRecoveryCode consumes a one-time code to destroy all vault
// contents and reinitialize with a new passphrase. Returns false when
// the code is unknown or already used. This is a destructive reset,
// not a passphrase recovery: every secret is wiped.
func (s *Service) UseRecoveryCode(ctx context.Context, code, newPassphrase string) (bool, error) {
	if err := schema.ValidatePassphrase(newPassphrase); err != nil {
		return false, err
	}

	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	id, err := s.store.FindUnusedRecoveryCode(ctx, hashRecoveryCode(code))
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			logging.LogWith(ctx, s.logger).WarnContext(ctx, "invalid recovery code presented")
			return false, nil
		}
		return false, err
	}

	// Mark the code used and wipe all vault data in one transaction.
	if err := s.store.ResetVault(ctx, id); err != nil {
		if schema.IsCode(err, schema.ErrCodeInvalidRecovery) {
			return false, nil
		}
		return false, err
	}

	s.session.Lock()
	// Reinit mints a fresh code batch; the caller regenerates codes
	// explicitly if they want to see them.
	if _, err := s.session.Init(ctx, newPassphrase); err != nil {
		return false, err
	}
	logging.LogWith(ctx, s.logger).WarnContext(ctx, "vault reset via recovery code")
	return true, nil
}
