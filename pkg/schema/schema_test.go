package schema

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionOrdering(t *testing.T) {
	assert.True(t, PermissionAdmin.Allows(PermissionRead))
	assert.True(t, PermissionAdmin.Allows(PermissionWrite))
	assert.True(t, PermissionWrite.Allows(PermissionRead))
	assert.True(t, PermissionRead.Allows(PermissionRead))

	assert.False(t, PermissionRead.Allows(PermissionWrite))
	assert.False(t, PermissionWrite.Allows(PermissionAdmin))

	assert.Zero(t, Permission("bogus").Level())
	assert.False(t, Permission("bogus").Allows(PermissionRead))
}

func TestValidatePermission(t *testing.T) {
	require.NoError(t, ValidatePermission(PermissionRead))
	require.NoError(t, ValidatePermission(PermissionAdmin))

	err := ValidatePermission(Permission("super"))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeValidation))
}

func TestAccessorString(t *testing.T) {
	a := Accessor{Type: AccessorPrincipal, Name: "alice"}
	assert.Equal(t, "principal:alice", a.String())
}

func TestValidateAccessor(t *testing.T) {
	require.NoError(t, ValidateAccessor(Accessor{Type: AccessorAgent, Name: "worker"}))

	err := ValidateAccessor(Accessor{Type: "robot", Name: "x"})
	assert.True(t, IsCode(err, ErrCodeValidation))
	err = ValidateAccessor(Accessor{Type: AccessorPrincipal})
	assert.True(t, IsCode(err, ErrCodeValidation))
}

func TestValidatePassphrase(t *testing.T) {
	require.NoError(t, ValidatePassphrase("twelve chars"))

	assert.Error(t, ValidatePassphrase("eleven char"))
	assert.Error(t, ValidatePassphrase(strings.Repeat("x", MaxPassphraseLen+1)))
}

func TestCreateSecretRequestValidate(t *testing.T) {
	valid := CreateSecretRequest{Name: "api-key_1", Value: "v"}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name string
		req  CreateSecretRequest
	}{
		{"empty name", CreateSecretRequest{Value: "v"}},
		{"name with spaces", CreateSecretRequest{Name: "has space", Value: "v"}},
		{"name too long", CreateSecretRequest{Name: strings.Repeat("a", MaxNameLen+1), Value: "v"}},
		{"empty value", CreateSecretRequest{Name: "ok"}},
		{"value too long", CreateSecretRequest{Name: "ok", Value: strings.Repeat("v", MaxValueLen+1)}},
		{"bad type", CreateSecretRequest{Name: "ok", Value: "v", SecretType: "magic"}},
		{"system owner", CreateSecretRequest{Name: "ok", Value: "v", OwnerType: AccessorSystem, OwnerName: "sys"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			require.Error(t, err)
			assert.True(t, IsCode(err, ErrCodeValidation))
		})
	}
}

func TestUpdateSecretRequestValidate(t *testing.T) {
	svc := "ok"
	require.NoError(t, (&UpdateSecretRequest{ServiceName: &svc}).Validate())

	long := strings.Repeat("d", MaxDescriptionLen+1)
	assert.Error(t, (&UpdateSecretRequest{Description: &long}).Validate())
}

func TestListSecretsQueryNormalize(t *testing.T) {
	q := ListSecretsQuery{}
	q.Normalize()
	assert.Equal(t, DefaultListLimit, q.Limit)
	assert.Zero(t, q.Offset)

	q = ListSecretsQuery{Limit: 9999, Offset: -5}
	q.Normalize()
	assert.Equal(t, MaxListLimit, q.Limit)
	assert.Zero(t, q.Offset)
}

func TestAuditQueryNormalize(t *testing.T) {
	q := AuditQuery{}
	q.Normalize()
	assert.Equal(t, DefaultAuditLimit, q.Limit)

	q = AuditQuery{Limit: 100000}
	q.Normalize()
	assert.Equal(t, MaxAuditLimit, q.Limit)
}

func TestVaultErrorWrapping(t *testing.T) {
	cause := NewError(ErrCodeStore, "disk full")
	err := NewError(ErrCodeCrypto, "seal failed").WithCause(cause)

	assert.True(t, IsCode(err, ErrCodeCrypto))
	assert.False(t, IsCode(err, ErrCodeStore))
	assert.Contains(t, err.Error(), "seal failed")

	var ve *VaultError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ErrCodeCrypto, ve.Code)
}

func TestIsCodeSeesThroughWrapping(t *testing.T) {
	inner := NewError(ErrCodeNotFound, "secret missing")
	wrapped := fmt.Errorf("load secret: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(wrapped, ErrCodeConflict))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeNotFound))
	assert.False(t, IsCode(nil, ErrCodeNotFound))
}
