package vault

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-agency-ai/secretvault/pkg/schema"
)

const testPassphrase = "correct horse battery staple"

// fakeClock is a mutable clock injected via WithClock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSession(t *testing.T) (*Session, *fakeClock) {
	t.Helper()
	st := newTestVaultStore(t)
	clock := newFakeClock()
	session := NewSession(st, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(clock.Now))
	return session, clock
}

var recoveryCodeRe = regexp.MustCompile(`^[0-9A-F]{4}(-[0-9A-F]{4}){7}$`)

func TestInitReturnsRecoveryCodes(t *testing.T) {
	session, _ := newTestSession(t)
	ctx := context.Background()

	codes, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)
	require.Len(t, codes, 8)
	seen := map[string]bool{}
	for _, code := range codes {
		assert.Regexp(t, recoveryCodeRe, code)
		assert.False(t, seen[code], "codes must be unique")
		seen[code] = true
	}
	assert.True(t, session.IsUnlocked())
}

func TestInitTwiceFails(t *testing.T) {
	session, _ := newTestSession(t)
	ctx := context.Background()

	_, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)

	_, err = session.Init(ctx, "another valid passphrase")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeAlreadyInitialized))
}

func TestInitRejectsShortPassphrase(t *testing.T) {
	session, _ := newTestSession(t)

	_, err := session.Init(context.Background(), "short")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestUnlockWrongPassphrase(t *testing.T) {
	session, _ := newTestSession(t)
	ctx := context.Background()

	_, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)
	session.Lock()
	require.False(t, session.IsUnlocked())

	ok, err := session.Unlock(ctx, "wrong horse battery staple")
	require.NoError(t, err, "a wrong passphrase is not an error")
	assert.False(t, ok)
	assert.False(t, session.IsUnlocked())

	ok, err = session.Unlock(ctx, testPassphrase)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, session.IsUnlocked())
}

func TestUnlockUninitialized(t *testing.T) {
	session, _ := newTestSession(t)

	_, err := session.Unlock(context.Background(), testPassphrase)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotInitialized))
}

func TestLockIdempotent(t *testing.T) {
	session, _ := newTestSession(t)
	ctx := context.Background()

	_, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)

	session.Lock()
	session.Lock()
	assert.False(t, session.IsUnlocked())
}

func TestAutoLockAfterIdleWindow(t *testing.T) {
	session, clock := newTestSession(t)
	ctx := context.Background()

	_, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)
	require.True(t, session.IsUnlocked())

	clock.Advance(DefaultAutoLockWindow - time.Second)
	assert.True(t, session.IsUnlocked())

	clock.Advance(2 * time.Second)
	assert.False(t, session.IsUnlocked(), "session must auto-lock after the idle window")

	// Operations after auto-lock fail locked.
	_, _, err = session.Seal([]byte("value"))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeVaultLocked))
}

func TestTouchExtendsDeadline(t *testing.T) {
	session, clock := newTestSession(t)
	ctx := context.Background()

	_, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	session.Touch()
	clock.Advance(20 * time.Minute)
	assert.True(t, session.IsUnlocked(), "activity resets the idle window")

	clock.Advance(DefaultAutoLockWindow)
	assert.False(t, session.IsUnlocked())
}

func TestSealOpenRoundTrip(t *testing.T) {
	session, _ := newTestSession(t)
	ctx := context.Background()

	_, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)

	ciphertext, nonce, err := session.Seal([]byte("api-key-value"))
	require.NoError(t, err)

	plaintext, err := session.Open(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, "api-key-value", string(plaintext))

	// Sealed values survive a lock/unlock cycle: the master key is
	// stable across sessions.
	session.Lock()
	ok, err := session.Unlock(ctx, testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)

	plaintext, err = session.Open(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, "api-key-value", string(plaintext))
}

func TestTimeUntilAutoLock(t *testing.T) {
	session, clock := newTestSession(t)
	ctx := context.Background()

	_, ok := session.TimeUntilAutoLock()
	assert.False(t, ok)

	_, err := session.Init(ctx, testPassphrase)
	require.NoError(t, err)

	remaining, ok := session.TimeUntilAutoLock()
	require.True(t, ok)
	assert.Equal(t, DefaultAutoLockWindow, remaining)

	clock.Advance(10 * time.Minute)
	remaining, ok = session.TimeUntilAutoLock()
	require.True(t, ok)
	assert.Equal(t, 20*time.Minute, remaining)
}

func TestStatusTransitions(t *testing.T) {
	session, _ := newTestSession(t)
	ctx := context.Background()

	status, err := session.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.VaultUninitialized, status.Status)
	assert.False(t, status.HasRecoveryCodes)
	assert.Nil(t, status.SecretCount)

	_, err = session.Init(ctx, testPassphrase)
	require.NoError(t, err)

	status, err = session.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.VaultUnlocked, status.Status)
	assert.True(t, status.HasRecoveryCodes)
	require.NotNil(t, status.SecretCount)
	assert.Equal(t, 0, *status.SecretCount)
	require.NotNil(t, status.AutoLockInMs)
	assert.Equal(t, DefaultAutoLockWindow.Milliseconds(), *status.AutoLockInMs)

	session.Lock()
	status, err = session.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.VaultLocked, status.Status)
	assert.Nil(t, status.SecretCount)
	assert.Nil(t, status.AutoLockInMs)
}
