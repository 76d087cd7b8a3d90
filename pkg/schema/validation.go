package schema

import "regexp"

// Limits applied to request fields. These mirror what the route layer
// historically enforced so the vault holds its own line.
const (
	MaxNameLen        = 100
	MaxValueLen       = 65536
	MaxServiceLen     = 100
	MaxDescriptionLen = 500
	MaxTagValueLen    = 200
	MinPassphraseLen  = 12
	MaxPassphraseLen  = 256

	DefaultListLimit  = 50
	MaxListLimit      = 100
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var validSecretTypes = map[SecretType]bool{
	SecretTypeAPIKey: true, SecretTypeToken: true, SecretTypePassword: true,
	SecretTypeCertificate: true, SecretTypeSSHKey: true,
	SecretTypeEnvVar: true, SecretTypeGeneric: true,
}

var validTagTypes = map[TagType]bool{
	TagTypeTool: true, TagTypeLocalTool: true, TagTypeEnv: true, TagTypeService: true,
}

var validGranteeTypes = map[AccessorType]bool{
	AccessorPrincipal: true, AccessorAgent: true,
}

// ValidatePermission checks that p is one of read, write, admin.
func ValidatePermission(p Permission) error {
	if p.Level() == 0 {
		return NewErrorf(ErrCodeValidation,
			"invalid permission %q: must be one of read, write, admin", p)
	}
	return nil
}

// ValidateAccessor checks required fields on an accessor identity.
func ValidateAccessor(a Accessor) error {
	switch a.Type {
	case AccessorPrincipal, AccessorAgent, AccessorSystem:
	default:
		return NewErrorf(ErrCodeValidation,
			"invalid accessor type %q: must be one of principal, agent, system", a.Type)
	}
	if a.Name == "" {
		return NewError(ErrCodeValidation, "accessor name is required")
	}
	return nil
}

// ValidatePassphrase enforces the minimum passphrase strength for
// init and recovery. Unlock accepts any non-empty passphrase; a wrong
// one just fails to decrypt.
func ValidatePassphrase(passphrase string) error {
	if len(passphrase) < MinPassphraseLen {
		return NewErrorf(ErrCodeValidation,
			"passphrase must be at least %d characters", MinPassphraseLen)
	}
	if len(passphrase) > MaxPassphraseLen {
		return NewErrorf(ErrCodeValidation,
			"passphrase must be at most %d characters", MaxPassphraseLen)
	}
	return nil
}

// Validate checks a create request. Zero-value optional fields are
// defaulted by the service, not here.
func (r *CreateSecretRequest) Validate() error {
	if r.Name == "" || len(r.Name) > MaxNameLen {
		return NewErrorf(ErrCodeValidation, "name must be 1-%d characters", MaxNameLen)
	}
	if !nameRe.MatchString(r.Name) {
		return NewError(ErrCodeValidation, "name must be alphanumeric with dashes/underscores")
	}
	if r.Value == "" || len(r.Value) > MaxValueLen {
		return NewErrorf(ErrCodeValidation, "value must be 1-%d bytes", MaxValueLen)
	}
	if r.SecretType != "" && !validSecretTypes[r.SecretType] {
		return NewErrorf(ErrCodeValidation, "invalid secret type %q", r.SecretType)
	}
	if len(r.ServiceName) > MaxServiceLen {
		return NewErrorf(ErrCodeValidation, "service name must be at most %d characters", MaxServiceLen)
	}
	if len(r.Description) > MaxDescriptionLen {
		return NewErrorf(ErrCodeValidation, "description must be at most %d characters", MaxDescriptionLen)
	}
	if r.OwnerType != "" && !validGranteeTypes[r.OwnerType] {
		return NewErrorf(ErrCodeValidation, "invalid owner type %q", r.OwnerType)
	}
	return nil
}

// Validate checks an update request.
func (r *UpdateSecretRequest) Validate() error {
	if r.ServiceName != nil && len(*r.ServiceName) > MaxServiceLen {
		return NewErrorf(ErrCodeValidation, "service name must be at most %d characters", MaxServiceLen)
	}
	if r.Description != nil && len(*r.Description) > MaxDescriptionLen {
		return NewErrorf(ErrCodeValidation, "description must be at most %d characters", MaxDescriptionLen)
	}
	if r.ExpiresAt != nil && r.ClearExpiry {
		return NewError(ErrCodeValidation, "cannot set and clear expiry in the same update")
	}
	return nil
}

// Validate checks a rotate request.
func (r *RotateSecretRequest) Validate() error {
	if r.NewValue == "" || len(r.NewValue) > MaxValueLen {
		return NewErrorf(ErrCodeValidation, "new value must be 1-%d bytes", MaxValueLen)
	}
	return nil
}

// Validate checks an add-tag request.
func (r *AddTagRequest) Validate() error {
	if !validTagTypes[r.TagType] {
		return NewErrorf(ErrCodeValidation,
			"invalid tag type %q: must be one of tool, local-tool, env, service", r.TagType)
	}
	if r.TagValue == "" || len(r.TagValue) > MaxTagValueLen {
		return NewErrorf(ErrCodeValidation, "tag value must be 1-%d characters", MaxTagValueLen)
	}
	if r.Permission != "" {
		return ValidatePermission(r.Permission)
	}
	return nil
}

// Validate checks a remove-tag request.
func (r *RemoveTagRequest) Validate() error {
	if !validTagTypes[r.TagType] {
		return NewErrorf(ErrCodeValidation, "invalid tag type %q", r.TagType)
	}
	if r.TagValue == "" {
		return NewError(ErrCodeValidation, "tag value is required")
	}
	return nil
}

// Validate checks a grant request.
func (r *GrantAccessRequest) Validate() error {
	if !validGranteeTypes[r.GranteeType] {
		return NewErrorf(ErrCodeValidation,
			"invalid grantee type %q: must be principal or agent", r.GranteeType)
	}
	if r.GranteeName == "" || len(r.GranteeName) > MaxNameLen {
		return NewErrorf(ErrCodeValidation, "grantee name must be 1-%d characters", MaxNameLen)
	}
	if r.Permission != "" {
		return ValidatePermission(r.Permission)
	}
	return nil
}

// Validate checks a revoke request.
func (r *RevokeAccessRequest) Validate() error {
	if !validGranteeTypes[r.GranteeType] {
		return NewErrorf(ErrCodeValidation, "invalid grantee type %q", r.GranteeType)
	}
	if r.GranteeName == "" {
		return NewError(ErrCodeValidation, "grantee name is required")
	}
	return nil
}

// Normalize clamps pagination and fills the default secret type.
func (q *ListSecretsQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// Normalize clamps audit pagination.
func (q *AuditQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultAuditLimit
	}
	if q.Limit > MaxAuditLimit {
		q.Limit = MaxAuditLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}
