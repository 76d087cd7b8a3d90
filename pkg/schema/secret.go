package schema

import "time"

// SecretType classifies what kind of credential a secret holds.
type SecretType string

const (
	SecretTypeAPIKey      SecretType = "api_key"
	SecretTypeToken       SecretType = "token"
	SecretTypePassword    SecretType = "password"
	SecretTypeCertificate SecretType = "certificate"
	SecretTypeSSHKey      SecretType = "ssh_key"
	SecretTypeEnvVar      SecretType = "env_var"
	SecretTypeGeneric     SecretType = "generic"
)

// SecretTypes lists all valid secret types in a stable order.
var SecretTypes = []SecretType{
	SecretTypeAPIKey, SecretTypeToken, SecretTypePassword,
	SecretTypeCertificate, SecretTypeSSHKey, SecretTypeEnvVar,
	SecretTypeGeneric,
}

// TagType categorizes a secret tag.
type TagType string

const (
	TagTypeTool      TagType = "tool"
	TagTypeLocalTool TagType = "local-tool"
	TagTypeEnv       TagType = "env"
	TagTypeService   TagType = "service"
)

// Permission is an ordered access level: read < write < admin.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// Level returns the numeric rank of the permission, or 0 if invalid.
func (p Permission) Level() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

// Allows reports whether a grant at level p satisfies the required level.
func (p Permission) Allows(required Permission) bool {
	return p.Level() >= required.Level()
}

// AccessorType identifies what kind of caller is acting on the vault.
type AccessorType string

const (
	AccessorPrincipal AccessorType = "principal"
	AccessorAgent     AccessorType = "agent"
	AccessorSystem    AccessorType = "system"
)

// Accessor is the identity performing a vault operation.
type Accessor struct {
	Type AccessorType `json:"type"`
	Name string       `json:"name"`
}

// String renders the accessor as "type:name", the form stored in granted_by.
func (a Accessor) String() string {
	return string(a.Type) + ":" + a.Name
}

// AuditAction is the precise kind of access recorded in the audit log.
type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionRead   AuditAction = "read"   // metadata read
	ActionFetch  AuditAction = "fetch"  // decrypted value read
	ActionUpdate AuditAction = "update"
	ActionRotate AuditAction = "rotate"
	ActionDelete AuditAction = "delete"
	ActionGrant  AuditAction = "grant"
	ActionRevoke AuditAction = "revoke"
)

// VaultStatus is the lifecycle state of the vault.
type VaultStatus string

const (
	VaultUninitialized VaultStatus = "uninitialized"
	VaultLocked        VaultStatus = "locked"
	VaultUnlocked      VaultStatus = "unlocked"
)

// Secret is the metadata view of a stored secret. The value never
// appears here; it is returned only by the fetch path.
type Secret struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	SecretType  SecretType   `json:"secret_type"`
	OwnerType   AccessorType `json:"owner_type"`
	OwnerName   string       `json:"owner_name"`
	ServiceName string       `json:"service_name,omitempty"`
	Description string       `json:"description,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Owner returns the owning accessor identity.
func (s *Secret) Owner() Accessor {
	return Accessor{Type: s.OwnerType, Name: s.OwnerName}
}

// SecretWithDetails is a secret plus its tags and grants.
type SecretWithDetails struct {
	Secret
	Tags   []*Tag   `json:"tags"`
	Grants []*Grant `json:"grants"`
}

// SecretDecrypted is a secret plus its decrypted value.
type SecretDecrypted struct {
	Secret
	Value string `json:"value"`
}

// Tag is a (type, value) annotation on a secret. Permission is the
// level required to see the association.
type Tag struct {
	ID         int64      `json:"id"`
	SecretID   string     `json:"secret_id"`
	TagType    TagType    `json:"tag_type"`
	TagValue   string     `json:"tag_value"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Grant gives a non-owner accessor a bounded capability on a secret.
type Grant struct {
	ID          int64        `json:"id"`
	SecretID    string       `json:"secret_id"`
	GranteeType AccessorType `json:"grantee_type"`
	GranteeName string       `json:"grantee_name"`
	Permission  Permission   `json:"permission"`
	GrantedBy   string       `json:"granted_by"`
	GrantedAt   time.Time    `json:"granted_at"`
}

// AuditEntry is an immutable record of one access event. SecretName is
// a snapshot so history survives secret deletion.
type AuditEntry struct {
	ID           int64        `json:"id"`
	SecretID     string       `json:"secret_id"`
	SecretName   string       `json:"secret_name"`
	AccessorType AccessorType `json:"accessor_type"`
	AccessorName string       `json:"accessor_name"`
	Action       AuditAction  `json:"action"`
	ToolContext  string       `json:"tool_context,omitempty"`
	Origin       string       `json:"origin,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// VaultStatusResponse reports the vault lifecycle state plus optional
// detail available once initialized or unlocked.
type VaultStatusResponse struct {
	Status            VaultStatus `json:"status"`
	SecretCount       *int        `json:"secret_count,omitempty"`
	CreatedAt         *time.Time  `json:"created_at,omitempty"`
	HasRecoveryCodes  bool        `json:"has_recovery_codes,omitempty"`
	AutoLockInMs      *int64      `json:"auto_lock_in_ms,omitempty"`
	AutoLockTimeoutMs *int64      `json:"auto_lock_timeout_ms,omitempty"`
}

// Stats aggregates secret counts.
type Stats struct {
	Total        int                `json:"total"`
	ByType       map[SecretType]int `json:"by_type"`
	ExpiringSoon int                `json:"expiring_soon"` // within 30 days
	Expired      int                `json:"expired"`
}

// RecoveryCodesResponse carries freshly minted recovery codes. The
// plaintexts are returned exactly once; only hashes are stored.
type RecoveryCodesResponse struct {
	Codes   []string `json:"codes"`
	Message string   `json:"message"`
}

// CreateSecretRequest creates a new secret. Owner fields default to
// the calling accessor.
type CreateSecretRequest struct {
	Name        string       `json:"name"`
	Value       string       `json:"value"`
	SecretType  SecretType   `json:"secret_type,omitempty"`
	ServiceName string       `json:"service_name,omitempty"`
	Description string       `json:"description,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	OwnerType   AccessorType `json:"owner_type,omitempty"`
	OwnerName   string       `json:"owner_name,omitempty"`
}

// UpdateSecretRequest changes secret metadata only. Nil fields are
// left untouched.
type UpdateSecretRequest struct {
	ServiceName *string    `json:"service_name,omitempty"`
	Description *string    `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClearExpiry bool       `json:"clear_expiry,omitempty"`
}

// RotateSecretRequest replaces a secret's value in place.
type RotateSecretRequest struct {
	NewValue string `json:"new_value"`
}

// ListSecretsQuery filters and paginates secret listings.
type ListSecretsQuery struct {
	SecretType  SecretType `json:"secret_type,omitempty"`
	ServiceName string     `json:"service_name,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	Tool        string     `json:"tool,omitempty"`
	Env         string     `json:"env,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// AddTagRequest attaches a tag to a secret.
type AddTagRequest struct {
	TagType    TagType    `json:"tag_type"`
	TagValue   string     `json:"tag_value"`
	Permission Permission `json:"permission,omitempty"`
}

// RemoveTagRequest detaches a tag from a secret.
type RemoveTagRequest struct {
	TagType  TagType `json:"tag_type"`
	TagValue string  `json:"tag_value"`
}

// GrantAccessRequest grants a permission level to a grantee.
// Re-granting an existing pair overwrites the level.
type GrantAccessRequest struct {
	GranteeType AccessorType `json:"grantee_type"`
	GranteeName string       `json:"grantee_name"`
	Permission  Permission   `json:"permission,omitempty"`
}

// RevokeAccessRequest removes a grantee's grant entirely.
type RevokeAccessRequest struct {
	GranteeType AccessorType `json:"grantee_type"`
	GranteeName string       `json:"grantee_name"`
}

// AuditQuery filters and paginates audit log reads.
type AuditQuery struct {
	SecretID     string      `json:"secret_id,omitempty"`
	AccessorName string      `json:"accessor_name,omitempty"`
	Action       AuditAction `json:"action,omitempty"`
	Since        *time.Time  `json:"since,omitempty"`
	Limit        int         `json:"limit,omitempty"`
	Offset       int         `json:"offset,omitempty"`
}
