package vault

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-agency-ai/secretvault/internal/store"
	"github.com/the-agency-ai/secretvault/pkg/schema"
)

var (
	alice  = schema.Accessor{Type: schema.AccessorPrincipal, Name: "alice"}
	bob    = schema.Accessor{Type: schema.AccessorPrincipal, Name: "bob"}
	worker = schema.Accessor{Type: schema.AccessorAgent, Name: "worker"}
)

func newTestVaultStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "vault.db")
	st, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newTestService returns an initialized, unlocked service with the
// recovery codes from init.
func newTestService(t *testing.T) (*Service, *fakeClock, []string) {
	t.Helper()
	st := newTestVaultStore(t)
	clock := newFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := NewSession(st, logger, WithClock(clock.Now))
	svc := NewService(st, session, logger)

	resp, err := svc.InitVault(context.Background(), testPassphrase)
	require.NoError(t, err)
	return svc, clock, resp.Codes
}

func createSecret(t *testing.T, svc *Service, name string, owner schema.Accessor) *schema.Secret {
	t.Helper()
	sec, err := svc.CreateSecret(context.Background(), schema.CreateSecretRequest{
		Name:  name,
		Value: "value-of-" + name,
	}, owner)
	require.NoError(t, err)
	return sec
}

func auditRows(t *testing.T, svc *Service, secretID string, action schema.AuditAction) []*schema.AuditEntry {
	t.Helper()
	entries, _, err := svc.GetAuditLogs(context.Background(),
		schema.AuditQuery{SecretID: secretID, Action: action}, alice)
	require.NoError(t, err)
	return entries
}

// --- Create / fetch ---

func TestCreateAndFetchSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sec := createSecret(t, svc, "stripe-key", alice)
	assert.Equal(t, schema.SecretTypeGeneric, sec.SecretType)
	assert.Equal(t, alice, sec.Owner())

	got, err := svc.FetchSecretValue(ctx, "stripe-key", alice, "payment-tool", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "value-of-stripe-key", got.Value)

	// Exactly one create row and one fetch row.
	assert.Len(t, auditRows(t, svc, sec.ID, schema.ActionCreate), 1)
	fetches := auditRows(t, svc, sec.ID, schema.ActionFetch)
	require.Len(t, fetches, 1)
	assert.Equal(t, "payment-tool", fetches[0].ToolContext)
	assert.Equal(t, "127.0.0.1", fetches[0].Origin)
}

func TestCreateSecretDuplicateName(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "dup", alice)
	_, err := svc.CreateSecret(ctx, schema.CreateSecretRequest{Name: "dup", Value: "other"}, bob)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestFetchDeniedForStranger(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sec := createSecret(t, svc, "private", alice)

	_, err := svc.FetchSecretValue(ctx, "private", bob, "", "")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeAccessDenied))

	// Denied fetches leave no fetch row.
	assert.Empty(t, auditRows(t, svc, sec.ID, schema.ActionFetch))
}

func TestGetSecretMetadataKeepsValueEncrypted(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sec := createSecret(t, svc, "meta", alice)
	got, err := svc.GetSecret(ctx, sec.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "meta", got.Name)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.Grants)

	// Metadata reads audit as "read", not "fetch".
	assert.Len(t, auditRows(t, svc, sec.ID, schema.ActionRead), 1)
	assert.Empty(t, auditRows(t, svc, sec.ID, schema.ActionFetch))
}

// --- Grants ---

func TestGrantFetchRevokeCycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sec := createSecret(t, svc, "shared", alice)

	_, err := svc.GrantAccess(ctx, "shared", schema.GrantAccessRequest{
		GranteeType: worker.Type, GranteeName: worker.Name, Permission: schema.PermissionRead,
	}, alice)
	require.NoError(t, err)

	got, err := svc.FetchSecretValue(ctx, "shared", worker, "ci", "")
	require.NoError(t, err)
	assert.Equal(t, "value-of-shared", got.Value)

	require.NoError(t, svc.RevokeAccess(ctx, "shared", schema.RevokeAccessRequest{
		GranteeType: worker.Type, GranteeName: worker.Name,
	}, alice))

	_, err = svc.FetchSecretValue(ctx, "shared", worker, "ci", "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeAccessDenied))

	assert.Len(t, auditRows(t, svc, sec.ID, schema.ActionGrant), 1)
	assert.Len(t, auditRows(t, svc, sec.ID, schema.ActionRevoke), 1)
}

func TestGrantRequiresOwnerOrAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "guarded", alice)

	// A write grantee cannot manage grants.
	_, err := svc.GrantAccess(ctx, "guarded", schema.GrantAccessRequest{
		GranteeType: bob.Type, GranteeName: bob.Name, Permission: schema.PermissionWrite,
	}, alice)
	require.NoError(t, err)

	_, err = svc.GrantAccess(ctx, "guarded", schema.GrantAccessRequest{
		GranteeType: worker.Type, GranteeName: worker.Name,
	}, bob)
	assert.True(t, schema.IsCode(err, schema.ErrCodeAccessDenied))

	// An admin grantee can.
	_, err = svc.GrantAccess(ctx, "guarded", schema.GrantAccessRequest{
		GranteeType: bob.Type, GranteeName: bob.Name, Permission: schema.PermissionAdmin,
	}, alice)
	require.NoError(t, err)

	_, err = svc.GrantAccess(ctx, "guarded", schema.GrantAccessRequest{
		GranteeType: worker.Type, GranteeName: worker.Name,
	}, bob)
	require.NoError(t, err)
}

func TestPermissionLevelsOrdered(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "leveled", alice)
	_, err := svc.GrantAccess(ctx, "leveled", schema.GrantAccessRequest{
		GranteeType: bob.Type, GranteeName: bob.Name, Permission: schema.PermissionWrite,
	}, alice)
	require.NoError(t, err)

	// write implies read.
	_, err = svc.FetchSecretValue(ctx, "leveled", bob, "", "")
	require.NoError(t, err)

	// write does not imply delete.
	err = svc.DeleteSecret(ctx, "leveled", bob)
	assert.True(t, schema.IsCode(err, schema.ErrCodeAccessDenied))
}

// --- Update / rotate / delete ---

func TestUpdateSecretMetadata(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sec := createSecret(t, svc, "updatable", alice)
	desc := "payments api"
	updated, err := svc.UpdateSecret(ctx, "updatable", schema.UpdateSecretRequest{
		Description: &desc,
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, "payments api", updated.Description)

	assert.Len(t, auditRows(t, svc, sec.ID, schema.ActionUpdate), 1)
}

func TestRotateSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sec := createSecret(t, svc, "rotatable", alice)
	rotated, err := svc.RotateSecret(ctx, "rotatable", schema.RotateSecretRequest{
		NewValue: "v2-secret",
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, sec.ID, rotated.ID)
	assert.Equal(t, "rotatable", rotated.Name)

	got, err := svc.FetchSecretValue(ctx, "rotatable", alice, "", "")
	require.NoError(t, err)
	assert.Equal(t, "v2-secret", got.Value)

	assert.Len(t, auditRows(t, svc, sec.ID, schema.ActionRotate), 1)
}

func TestDeleteSecretKeepsAuditHistory(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sec := createSecret(t, svc, "ephemeral", alice)
	require.NoError(t, svc.DeleteSecret(ctx, "ephemeral", alice))

	_, err := svc.GetSecret(ctx, "ephemeral", alice)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	// History of the deleted secret is still queryable by id.
	entries, _, err := svc.GetAuditLogs(ctx, schema.AuditQuery{SecretID: sec.ID}, alice)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "ephemeral", e.SecretName)
	}
}

// --- Locking ---

func TestOperationsFailWhileLocked(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "existing", alice)
	svc.LockVault()

	_, err := svc.CreateSecret(ctx, schema.CreateSecretRequest{Name: "blocked", Value: "x"}, alice)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeVaultLocked))

	_, err = svc.FetchSecretValue(ctx, "existing", alice, "", "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeVaultLocked))

	ok, err := svc.UnlockVault(ctx, testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.CreateSecret(ctx, schema.CreateSecretRequest{Name: "blocked", Value: "x"}, alice)
	require.NoError(t, err)
}

func TestActivityDefersAutoLock(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "busy", alice)
	clock.Advance(25 * time.Minute)

	// The fetch counts as activity and resets the window.
	_, err := svc.FetchSecretValue(ctx, "busy", alice, "", "")
	require.NoError(t, err)

	clock.Advance(25 * time.Minute)
	assert.True(t, svc.IsUnlocked())

	clock.Advance(6 * time.Minute)
	assert.False(t, svc.IsUnlocked())
}

// --- Tags ---

func TestTagLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "tagged", alice)
	tag, err := svc.AddTag(ctx, "tagged", schema.AddTagRequest{
		TagType: schema.TagTypeEnv, TagValue: "production",
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, schema.PermissionRead, tag.Permission)

	found, err := svc.FindByTag(ctx, schema.TagTypeEnv, "production", alice)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "tagged", found[0].Name)

	// Tag search respects read access.
	denied, err := svc.FindByTag(ctx, schema.TagTypeEnv, "production", bob)
	require.NoError(t, err)
	assert.Empty(t, denied)

	require.NoError(t, svc.RemoveTag(ctx, "tagged", schema.RemoveTagRequest{
		TagType: schema.TagTypeEnv, TagValue: "production",
	}, alice))
	tags, err := svc.GetTags(ctx, "tagged", alice)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

// --- Listing ---

func TestListSecretsFiltersByAccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "mine", alice)
	createSecret(t, svc, "theirs", bob)

	visible, total, err := svc.ListSecrets(ctx, schema.ListSecretsQuery{}, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, visible, 1)
	assert.Equal(t, "mine", visible[0].Name)

	// A grant makes the other secret visible.
	_, err = svc.GrantAccess(ctx, "theirs", schema.GrantAccessRequest{
		GranteeType: alice.Type, GranteeName: alice.Name,
	}, bob)
	require.NoError(t, err)

	visible, _, err = svc.ListSecrets(ctx, schema.ListSecretsQuery{}, alice)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

// --- Stats ---

func TestGetStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "one", alice)
	createSecret(t, svc, "two", alice)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByType[schema.SecretTypeGeneric])
}
