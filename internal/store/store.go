package store

import (
	"context"
	"time"

	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// Vault config keys. The presence of ConfigMasterKey is the sole
// signal that the vault has been initialized.
const (
	ConfigSalt           = "salt"
	ConfigMasterKeyNonce = "master_key_nonce"
	ConfigMasterKey      = "encrypted_master_key"
	ConfigCreatedAt      = "created_at"
	ConfigVersion        = "version"
)

// SecretRecord is the persisted representation of a secret including
// its ciphertext. EncryptedValue and Nonce are paired 1:1 and always
// written and read together; plaintext is never persisted.
type SecretRecord struct {
	schema.Secret
	EncryptedValue []byte
	Nonce          []byte
}

// SecretMetaUpdate describes a metadata-only update. Nil fields are
// left untouched; ClearExpiry removes the expiry.
type SecretMetaUpdate struct {
	ServiceName *string
	Description *string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Secrets
	CreateSecret(ctx context.Context, rec *SecretRecord) error
	GetSecret(ctx context.Context, idOrName string) (*SecretRecord, error)
	UpdateSecretMeta(ctx context.Context, id string, update SecretMetaUpdate) error
	RotateSecretValue(ctx context.Context, id string, encryptedValue, nonce []byte) error
	DeleteSecret(ctx context.Context, id string) error
	ListSecrets(ctx context.Context, q schema.ListSecretsQuery) ([]*schema.Secret, int, error)
	FindSecretsByTag(ctx context.Context, tagType schema.TagType, tagValue string) ([]*schema.Secret, error)
	ExpiredSecrets(ctx context.Context) ([]*schema.Secret, error)
	Stats(ctx context.Context) (*schema.Stats, error)

	// Tags
	AddTag(ctx context.Context, tag *schema.Tag) (*schema.Tag, error)
	RemoveTag(ctx context.Context, secretID string, tagType schema.TagType, tagValue string) error
	GetTags(ctx context.Context, secretID string) ([]*schema.Tag, error)

	// Grants (last-write-wins on re-grant)
	UpsertGrant(ctx context.Context, grant *schema.Grant) (*schema.Grant, error)
	RemoveGrant(ctx context.Context, secretID string, granteeType schema.AccessorType, granteeName string) error
	GetGrant(ctx context.Context, secretID string, granteeType schema.AccessorType, granteeName string) (*schema.Grant, error)
	GetGrants(ctx context.Context, secretID string) ([]*schema.Grant, error)

	// Audit log (append-only)
	AppendAudit(ctx context.Context, entry *schema.AuditEntry) error
	ListAudit(ctx context.Context, q schema.AuditQuery) ([]*schema.AuditEntry, int, error)

	// Recovery codes
	ReplaceRecoveryCodes(ctx context.Context, hashes []string) error
	FindUnusedRecoveryCode(ctx context.Context, hash string) (int64, error)
	HasRecoveryCodes(ctx context.Context) (bool, error)

	// ResetVault marks the recovery code used and destroys all
	// secrets, tags, grants and the vault config in one transaction.
	// Audit history is left intact.
	ResetVault(ctx context.Context, usedCodeID int64) error

	// Vault config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	SetConfigs(ctx context.Context, configs map[string]string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
