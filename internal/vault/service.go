package vault

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/the-agency-ai/secretvault/internal/logging"
	"github.com/the-agency-ai/secretvault/internal/store"
	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// Service is the vault's operation surface: secret CRUD, tags, grants,
// audit queries, stats and recovery, all gated by the session state
// and the access rules. The route layer is its only caller.
type Service struct {
	store   store.Store
	session *Session
	logger  *slog.Logger

	// resetMu serializes recovery resets; the delete-then-reinit
	// sequence must never interleave with a concurrent attempt.
	resetMu sync.Mutex
}

// NewService wires the service over a store and session.
func NewService(st store.Store, session *Session, logger *slog.Logger) *Service {
	return &Service{store: st, session: session, logger: logger}
}

// Session exposes the underlying session for lifecycle wiring.
func (s *Service) Session() *Session { return s.session }

// --- Vault lifecycle ---

// InitVault initializes the vault and returns the one-time recovery codes.
func (s *Service) InitVault(ctx context.Context, passphrase string) (*schema.RecoveryCodesResponse, error) {
	codes, err := s.session.Init(ctx, passphrase)
	if err != nil {
		return nil, err
	}
	return &schema.RecoveryCodesResponse{
		Codes:   codes,
		Message: "Vault initialized. Store these recovery codes safely - they cannot be recovered!",
	}, nil
}

// UnlockVault attempts an unlock; a wrong passphrase yields (false, nil).
func (s *Service) UnlockVault(ctx context.Context, passphrase string) (bool, error) {
	return s.session.Unlock(ctx, passphrase)
}

// LockVault locks the session. Idempotent.
func (s *Service) LockVault() { s.session.Lock() }

// IsUnlocked reports the session state.
func (s *Service) IsUnlocked() bool { return s.session.IsUnlocked() }

// GetVaultStatus reports lifecycle state with counts when unlocked.
func (s *Service) GetVaultStatus(ctx context.Context) (*schema.VaultStatusResponse, error) {
	return s.session.Status(ctx)
}

// --- Secret CRUD ---

// CreateSecret encrypts and stores a new secret. The accessor becomes
// the owner unless explicit owner fields are given. Requires Unlocked.
func (s *Service) CreateSecret(ctx context.Context, req schema.CreateSecretRequest, accessor schema.Accessor) (*schema.Secret, error) {
	if err := schema.ValidateAccessor(accessor); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.SecretType == "" {
		req.SecretType = schema.SecretTypeGeneric
	}
	if req.OwnerType == "" || req.OwnerName == "" {
		req.OwnerType = accessor.Type
		req.OwnerName = accessor.Name
	}
	if req.OwnerType != schema.AccessorPrincipal && req.OwnerType != schema.AccessorAgent {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"owner type must be principal or agent, got %q", req.OwnerType)
	}

	ciphertext, nonce, err := s.session.Seal([]byte(req.Value))
	if err != nil {
		return nil, err
	}

	rec := &store.SecretRecord{
		Secret: schema.Secret{
			ID:          uuid.New().String(),
			Name:        req.Name,
			SecretType:  req.SecretType,
			OwnerType:   req.OwnerType,
			OwnerName:   req.OwnerName,
			ServiceName: req.ServiceName,
			Description: req.Description,
			ExpiresAt:   req.ExpiresAt,
		},
		EncryptedValue: ciphertext,
		Nonce:          nonce,
	}
	if err := s.store.CreateSecret(ctx, rec); err != nil {
		return nil, err
	}

	created, err := s.store.GetSecret(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &created.Secret, accessor, schema.ActionCreate, "", "")
	logging.LogWith(ctx, s.logger).InfoContext(ctx, "secret created",
		slog.String("name", created.Name),
		slog.String("owner", created.Owner().String()))
	return &created.Secret, nil
}

// GetSecret returns a secret's metadata with tags and grants. This is
// the metadata read path; the value stays encrypted. Audits "read".
func (s *Service) GetSecret(ctx context.Context, idOrName string, accessor schema.Accessor) (*schema.SecretWithDetails, error) {
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionRead); err != nil {
		return nil, err
	}
	tags, err := s.store.GetTags(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.GetGrants(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	s.session.Touch()
	s.audit(ctx, &rec.Secret, accessor, schema.ActionRead, "", "")
	return &schema.SecretWithDetails{Secret: rec.Secret, Tags: tags, Grants: grants}, nil
}

// FetchSecretValue decrypts and returns the secret value. This is the
// single sensitive-read path, audited as "fetch" with the tool context
// and network origin. Requires Unlocked.
func (s *Service) FetchSecretValue(ctx context.Context, idOrName string, accessor schema.Accessor, toolContext, origin string) (*schema.SecretDecrypted, error) {
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionRead); err != nil {
		logging.LogWith(ctx, s.logger).WarnContext(ctx, "access denied for fetch",
			slog.String("secret", rec.Name), slog.String("accessor", accessor.String()))
		return nil, err
	}

	plaintext, err := s.session.Open(rec.EncryptedValue, rec.Nonce)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &rec.Secret, accessor, schema.ActionFetch, toolContext, origin)
	logging.LogWith(ctx, s.logger).InfoContext(ctx, "secret fetched",
		slog.String("name", rec.Name),
		slog.String("accessor", accessor.String()))
	return &schema.SecretDecrypted{Secret: rec.Secret, Value: string(plaintext)}, nil
}

// UpdateSecret changes metadata only; the value is untouched. Requires
// write permission.
func (s *Service) UpdateSecret(ctx context.Context, idOrName string, req schema.UpdateSecretRequest, accessor schema.Accessor) (*schema.Secret, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionWrite); err != nil {
		return nil, err
	}

	update := store.SecretMetaUpdate{
		ServiceName: req.ServiceName,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	}
	if err := s.store.UpdateSecretMeta(ctx, rec.ID, update); err != nil {
		return nil, err
	}

	updated, err := s.store.GetSecret(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	s.session.Touch()
	s.audit(ctx, &updated.Secret, accessor, schema.ActionUpdate, "", "")
	return &updated.Secret, nil
}

// RotateSecret re-encrypts the secret in place with a fresh nonce.
// Same name and id, new ciphertext. Requires write permission and
// Unlocked.
func (s *Service) RotateSecret(ctx context.Context, idOrName string, req schema.RotateSecretRequest, accessor schema.Accessor) (*schema.Secret, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionWrite); err != nil {
		return nil, err
	}

	ciphertext, nonce, err := s.session.Seal([]byte(req.NewValue))
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateSecretValue(ctx, rec.ID, ciphertext, nonce); err != nil {
		return nil, err
	}

	rotated, err := s.store.GetSecret(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &rotated.Secret, accessor, schema.ActionRotate, "", "")
	logging.LogWith(ctx, s.logger).InfoContext(ctx, "secret rotated",
		slog.String("name", rotated.Name),
		slog.String("accessor", accessor.String()))
	return &rotated.Secret, nil
}

// DeleteSecret destroys a secret; its tags and grants cascade, its
// audit history survives via the name snapshot. Gated on admin
// permission or ownership. The audit row is written before the
// cascading delete.
func (s *Service) DeleteSecret(ctx context.Context, idOrName string, accessor schema.Accessor) error {
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return err
	}
	if err := s.requireAdminOrOwner(ctx, &rec.Secret, accessor); err != nil {
		return err
	}

	s.audit(ctx, &rec.Secret, accessor, schema.ActionDelete, "", "")
	if err := s.store.DeleteSecret(ctx, rec.ID); err != nil {
		return err
	}
	s.session.Touch()
	logging.LogWith(ctx, s.logger).InfoContext(ctx, "secret deleted",
		slog.String("name", rec.Name),
		slog.String("accessor", accessor.String()))
	return nil
}

// ListSecrets returns metadata for secrets matching the filter that
// the accessor may read. Values are never decrypted here.
func (s *Service) ListSecrets(ctx context.Context, q schema.ListSecretsQuery, accessor schema.Accessor) ([]*schema.Secret, int, error) {
	q.Normalize()
	secrets, _, err := s.store.ListSecrets(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	accessible := make([]*schema.Secret, 0, len(secrets))
	for _, sec := range secrets {
		ok, err := s.hasAccess(ctx, sec, accessor, schema.PermissionRead)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			accessible = append(accessible, sec)
		}
	}
	s.session.Touch()
	return accessible, len(accessible), nil
}

// FindByTag returns readable secrets carrying the given tag.
func (s *Service) FindByTag(ctx context.Context, tagType schema.TagType, tagValue string, accessor schema.Accessor) ([]*schema.Secret, error) {
	secrets, err := s.store.FindSecretsByTag(ctx, tagType, tagValue)
	if err != nil {
		return nil, err
	}
	accessible := make([]*schema.Secret, 0, len(secrets))
	for _, sec := range secrets {
		ok, err := s.hasAccess(ctx, sec, accessor, schema.PermissionRead)
		if err != nil {
			return nil, err
		}
		if ok {
			accessible = append(accessible, sec)
		}
	}
	s.session.Touch()
	return accessible, nil
}

// --- Tags ---

// AddTag attaches a tag. Requires write permission on the secret.
func (s *Service) AddTag(ctx context.Context, idOrName string, req schema.AddTagRequest, accessor schema.Accessor) (*schema.Tag, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionWrite); err != nil {
		return nil, err
	}
	if req.Permission == "" {
		req.Permission = schema.PermissionRead
	}
	tag, err := s.store.AddTag(ctx, &schema.Tag{
		SecretID:   rec.ID,
		TagType:    req.TagType,
		TagValue:   req.TagValue,
		Permission: req.Permission,
	})
	if err != nil {
		return nil, err
	}
	s.session.Touch()
	return tag, nil
}

// RemoveTag detaches a tag. Requires write permission.
func (s *Service) RemoveTag(ctx context.Context, idOrName string, req schema.RemoveTagRequest, accessor schema.Accessor) error {
	if err := req.Validate(); err != nil {
		return err
	}
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionWrite); err != nil {
		return err
	}
	if err := s.store.RemoveTag(ctx, rec.ID, req.TagType, req.TagValue); err != nil {
		return err
	}
	s.session.Touch()
	return nil
}

// GetTags lists a secret's tags. Requires read permission.
func (s *Service) GetTags(ctx context.Context, idOrName string, accessor schema.Accessor) ([]*schema.Tag, error) {
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionRead); err != nil {
		return nil, err
	}
	s.session.Touch()
	return s.store.GetTags(ctx, rec.ID)
}

// --- Grants ---

// GrantAccess grants a permission level to a grantee. Only the owner
// or an admin grantee may call it. Re-granting overwrites the level.
func (s *Service) GrantAccess(ctx context.Context, idOrName string, req schema.GrantAccessRequest, accessor schema.Accessor) (*schema.Grant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdminOrOwner(ctx, &rec.Secret, accessor); err != nil {
		return nil, err
	}
	if req.Permission == "" {
		req.Permission = schema.PermissionRead
	}
	grant, err := s.store.UpsertGrant(ctx, &schema.Grant{
		SecretID:    rec.ID,
		GranteeType: req.GranteeType,
		GranteeName: req.GranteeName,
		Permission:  req.Permission,
		GrantedBy:   accessor.String(),
	})
	if err != nil {
		return nil, err
	}
	s.session.Touch()
	s.audit(ctx, &rec.Secret, accessor, schema.ActionGrant, "", "")
	logging.LogWith(ctx, s.logger).InfoContext(ctx, "access granted",
		slog.String("secret", rec.Name),
		slog.String("grantee", string(req.GranteeType)+":"+req.GranteeName),
		slog.String("permission", string(req.Permission)))
	return grant, nil
}

// RevokeAccess removes a grantee's grant. Only the owner or an admin
// grantee may call it.
func (s *Service) RevokeAccess(ctx context.Context, idOrName string, req schema.RevokeAccessRequest, accessor schema.Accessor) error {
	if err := req.Validate(); err != nil {
		return err
	}
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return err
	}
	if err := s.requireAdminOrOwner(ctx, &rec.Secret, accessor); err != nil {
		return err
	}
	if err := s.store.RemoveGrant(ctx, rec.ID, req.GranteeType, req.GranteeName); err != nil {
		return err
	}
	s.session.Touch()
	s.audit(ctx, &rec.Secret, accessor, schema.ActionRevoke, "", "")
	return nil
}

// GetGrants lists a secret's grants. Requires read permission.
func (s *Service) GetGrants(ctx context.Context, idOrName string, accessor schema.Accessor) ([]*schema.Grant, error) {
	rec, err := s.store.GetSecret(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionRead); err != nil {
		return nil, err
	}
	s.session.Touch()
	return s.store.GetGrants(ctx, rec.ID)
}

// --- Audit ---

// GetAuditLogs queries the audit log. When scoped to a secret that
// still exists, read permission on it is required; history of deleted
// secrets remains queryable.
func (s *Service) GetAuditLogs(ctx context.Context, q schema.AuditQuery, accessor schema.Accessor) ([]*schema.AuditEntry, int, error) {
	q.Normalize()
	if q.SecretID != "" {
		rec, err := s.store.GetSecret(ctx, q.SecretID)
		if err == nil {
			q.SecretID = rec.ID
			if err := s.requireAccess(ctx, &rec.Secret, accessor, schema.PermissionRead); err != nil {
				return nil, 0, err
			}
		} else if !schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, 0, err
		}
	}
	return s.store.ListAudit(ctx, q)
}

// GetSecretAuditLogs returns the audit history for one secret.
func (s *Service) GetSecretAuditLogs(ctx context.Context, secretID string, accessor schema.Accessor) ([]*schema.AuditEntry, error) {
	entries, _, err := s.GetAuditLogs(ctx, schema.AuditQuery{SecretID: secretID}, accessor)
	return entries, err
}

// --- Stats ---

// GetStats aggregates secret counts by type and expiry.
func (s *Service) GetStats(ctx context.Context) (*schema.Stats, error) {
	return s.store.Stats(ctx)
}

// audit appends one access-log row. Failures never abort the primary
// operation; they surface through operational logging only.
func (s *Service) audit(ctx context.Context, sec *schema.Secret, accessor schema.Accessor, action schema.AuditAction, toolContext, origin string) {
	entry := &schema.AuditEntry{
		SecretID:     sec.ID,
		SecretName:   sec.Name,
		AccessorType: accessor.Type,
		AccessorName: accessor.Name,
		Action:       action,
		ToolContext:  toolContext,
		Origin:       origin,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		logging.LogWith(ctx, s.logger).ErrorContext(ctx, "audit append failed",
			slog.String("action", string(action)),
			slog.String("secret", sec.Name),
			slog.String("error", err.Error()))
	}
}
