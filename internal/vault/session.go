// Package vault implements the encrypted secret vault: the session
// lifecycle state machine, secret CRUD with access control, tagging,
// audit logging and recovery.
package vault

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/the-agency-ai/secretvault/internal/crypto"
	"github.com/the-agency-ai/secretvault/internal/store"
	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// DefaultAutoLockWindow is the idle time after which an unlocked
// session locks itself.
const DefaultAutoLockWindow = 30 * time.Minute

const configVersion = "1"

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the session clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithAutoLockWindow overrides the idle window before auto-lock.
func WithAutoLockWindow(d time.Duration) Option {
	return func(s *Session) { s.window = d }
}

// Session is the vault lifecycle state machine. It holds the decrypted
// master key in memory only while unlocked and auto-locks after the
// idle window elapses. The auto-lock deadline is a plain value checked
// on every state query rather than a platform timer, so expiry is
// observable without wall-clock waits; the daemon's sweeper polls
// IsUnlocked so an idle process still locks on time.
//
// All key access is serialized under one mutex: a concurrent Lock
// cannot race a decryption in progress.
type Session struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	window time.Duration

	mu           sync.Mutex
	masterKey    []byte // nil when locked
	lastActivity time.Time
	deadline     time.Time
}

// NewSession creates a locked session over the given store.
func NewSession(st store.Store, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		store:  st,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		window: DefaultAutoLockWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init initializes the vault: generates a fresh salt, derives the
// key-encryption key from the passphrase, generates a random master
// key, persists the wrapped master key, mints 8 recovery codes and
// transitions to Unlocked. The recovery code plaintexts are returned
// exactly once and are never retrievable again.
//
// Fails with VAULT_ALREADY_INITIALIZED if a vault config exists.
func (s *Session) Init(ctx context.Context, passphrase string) ([]string, error) {
	if err := schema.ValidatePassphrase(passphrase); err != nil {
		return nil, err
	}

	initialized, err := s.Initialized(ctx)
	if err != nil {
		return nil, err
	}
	if initialized {
		return nil, schema.NewError(schema.ErrCodeAlreadyInitialized, "vault already initialized")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	kek := crypto.DeriveKey(passphrase, salt)
	defer crypto.Zero(kek)

	masterKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	wrapped, nonce, err := crypto.Encrypt(masterKey, kek)
	if err != nil {
		crypto.Zero(masterKey)
		return nil, err
	}

	// One transaction: a partial config write would leave a vault
	// that reports initialized yet can never be unlocked.
	configs := map[string]string{
		store.ConfigSalt:           hex.EncodeToString(salt),
		store.ConfigMasterKeyNonce: hex.EncodeToString(nonce),
		store.ConfigMasterKey:      hex.EncodeToString(wrapped),
		store.ConfigCreatedAt:      s.now().Format(time.RFC3339),
		store.ConfigVersion:        configVersion,
	}
	if err := s.store.SetConfigs(ctx, configs); err != nil {
		crypto.Zero(masterKey)
		return nil, schema.NewError(schema.ErrCodeStore, "persist vault config").WithCause(err)
	}

	codes, err := mintRecoveryCodes(ctx, s.store)
	if err != nil {
		crypto.Zero(masterKey)
		return nil, err
	}

	s.mu.Lock()
	crypto.Zero(s.masterKey)
	s.masterKey = masterKey
	s.touchLocked()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "vault initialized")
	return codes, nil
}

// Unlock derives the key from the stored salt and attempts to unwrap
// the master key. A wrong passphrase returns (false, nil) and leaves
// the session Locked; it is not an error so callers can offer a retry.
func (s *Session) Unlock(ctx context.Context, passphrase string) (bool, error) {
	saltHex, err := s.store.GetConfig(ctx, store.ConfigSalt)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return false, schema.NewError(schema.ErrCodeNotInitialized, "vault not initialized")
	}
	if err != nil {
		return false, err
	}
	nonceHex, err := s.store.GetConfig(ctx, store.ConfigMasterKeyNonce)
	if err != nil {
		return false, err
	}
	wrappedHex, err := s.store.GetConfig(ctx, store.ConfigMasterKey)
	if err != nil {
		return false, err
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, schema.NewError(schema.ErrCodeStore, "corrupt vault config: salt").WithCause(err)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return false, schema.NewError(schema.ErrCodeStore, "corrupt vault config: nonce").WithCause(err)
	}
	wrapped, err := hex.DecodeString(wrappedHex)
	if err != nil {
		return false, schema.NewError(schema.ErrCodeStore, "corrupt vault config: master key").WithCause(err)
	}

	kek := crypto.DeriveKey(passphrase, salt)
	defer crypto.Zero(kek)

	masterKey, err := crypto.Decrypt(wrapped, nonce, kek)
	if err != nil {
		s.logger.WarnContext(ctx, "vault unlock failed: incorrect passphrase")
		return false, nil
	}

	s.mu.Lock()
	crypto.Zero(s.masterKey)
	s.masterKey = masterKey
	s.touchLocked()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "vault unlocked")
	return true, nil
}

// Lock discards the in-memory master key and clears the auto-lock
// deadline. Idempotent.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterKey == nil {
		return
	}
	s.lockLocked()
	s.logger.Info("vault locked")
}

func (s *Session) lockLocked() {
	crypto.Zero(s.masterKey)
	s.masterKey = nil
	s.deadline = time.Time{}
}

// IsUnlocked reports whether the master key is resident. An elapsed
// auto-lock deadline is applied first.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkDeadlineLocked()
	return s.masterKey != nil
}

// Touch records activity and pushes the auto-lock deadline out by the
// full idle window. No-op while locked.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkDeadlineLocked()
	if s.masterKey != nil {
		s.touchLocked()
	}
}

func (s *Session) touchLocked() {
	s.lastActivity = s.now()
	s.deadline = s.lastActivity.Add(s.window)
}

func (s *Session) checkDeadlineLocked() {
	if s.masterKey != nil && !s.deadline.IsZero() && !s.now().Before(s.deadline) {
		s.lockLocked()
		s.logger.Info("vault auto-locked due to inactivity")
	}
}

// TimeUntilAutoLock returns the time left before auto-lock. The second
// result is false when the session is not unlocked.
func (s *Session) TimeUntilAutoLock() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkDeadlineLocked()
	if s.masterKey == nil {
		return 0, false
	}
	return s.deadline.Sub(s.now()), true
}

// Seal encrypts plaintext under the master key. Asserting the
// unlocked state counts as activity.
func (s *Session) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkDeadlineLocked()
	if s.masterKey == nil {
		return nil, nil, schema.NewError(schema.ErrCodeVaultLocked, "vault is locked")
	}
	s.touchLocked()
	return crypto.Encrypt(plaintext, s.masterKey)
}

// Open decrypts a stored ciphertext/nonce pair under the master key.
// Runs entirely under the session lock so a concurrent Lock cannot
// zero the key mid-decryption.
func (s *Session) Open(ciphertext, nonce []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkDeadlineLocked()
	if s.masterKey == nil {
		return nil, schema.NewError(schema.ErrCodeVaultLocked, "vault is locked")
	}
	s.touchLocked()
	return crypto.Decrypt(ciphertext, nonce, s.masterKey)
}

// Initialized reports whether a vault config exists. Its absence is
// the sole signal of the uninitialized state.
func (s *Session) Initialized(ctx context.Context) (bool, error) {
	_, err := s.store.GetConfig(ctx, store.ConfigMasterKey)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Status reports the lifecycle state plus secret count and auto-lock
// detail when available.
func (s *Session) Status(ctx context.Context) (*schema.VaultStatusResponse, error) {
	initialized, err := s.Initialized(ctx)
	if err != nil {
		return nil, err
	}
	if !initialized {
		return &schema.VaultStatusResponse{Status: schema.VaultUninitialized}, nil
	}

	resp := &schema.VaultStatusResponse{Status: schema.VaultLocked}

	if createdAt, err := s.store.GetConfig(ctx, store.ConfigCreatedAt); err == nil {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			resp.CreatedAt = &t
		}
	}
	hasCodes, err := s.store.HasRecoveryCodes(ctx)
	if err != nil {
		return nil, err
	}
	resp.HasRecoveryCodes = hasCodes

	remaining, unlocked := s.TimeUntilAutoLock()
	if !unlocked {
		return resp, nil
	}

	resp.Status = schema.VaultUnlocked
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	count := stats.Total
	resp.SecretCount = &count
	inMs := remaining.Milliseconds()
	timeoutMs := s.window.Milliseconds()
	resp.AutoLockInMs = &inMs
	resp.AutoLockTimeoutMs = &timeoutMs
	return resp, nil
}
