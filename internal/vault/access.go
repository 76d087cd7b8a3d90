package vault

import (
	"context"

	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// hasAccess resolves whether the accessor may act on the secret at the
// required level. The owner always passes regardless of level;
// otherwise a grant must exist whose level meets the requirement.
func (s *Service) hasAccess(ctx context.Context, sec *schema.Secret, accessor schema.Accessor, required schema.Permission) (bool, error) {
	if sec.OwnerType == accessor.Type && sec.OwnerName == accessor.Name {
		return true, nil
	}
	grant, err := s.store.GetGrant(ctx, sec.ID, accessor.Type, accessor.Name)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return grant.Permission.Allows(required), nil
}

// requireAccess converts a failed check into an ACCESS_DENIED error.
func (s *Service) requireAccess(ctx context.Context, sec *schema.Secret, accessor schema.Accessor, required schema.Permission) error {
	ok, err := s.hasAccess(ctx, sec, accessor, required)
	if err != nil {
		return err
	}
	if !ok {
		return schema.NewErrorf(schema.ErrCodeAccessDenied,
			"%s requires %s permission on secret %q", accessor, required, sec.Name)
	}
	return nil
}

// requireAdminOrOwner gates grant/revoke and delete: the owner or an
// admin-level grantee may proceed.
func (s *Service) requireAdminOrOwner(ctx context.Context, sec *schema.Secret, accessor schema.Accessor) error {
	if sec.OwnerType == accessor.Type && sec.OwnerName == accessor.Name {
		return nil
	}
	ok, err := s.hasAccess(ctx, sec, accessor, schema.PermissionAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return schema.NewErrorf(schema.ErrCodeAccessDenied,
			"only the owner or an admin grantee may manage secret %q", sec.Name)
	}
	return nil
}

// HasAccess is the exported access check for callers that need the
// boolean without the typed error, e.g. list filtering.
func (s *Service) HasAccess(ctx context.Context, idOrName string, accessor schema.Accessor, required schema.Permission) (bool, error) {
	rec, err := s.store.GetSecret(ctx, idOrName)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.hasAccess(ctx, &rec.Secret, accessor, required)
}
