package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/vault.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

const secretMetaCols = "id, name, secret_type, owner_type, owner_name, service_name, description, expires_at, created_at, updated_at"

// --- Secrets ---

func (s *LibSQLStore) CreateSecret(ctx context.Context, rec *SecretRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (id, name, secret_type, encrypted_value, nonce, owner_type, owner_name, service_name, description, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, string(rec.SecretType), rec.EncryptedValue, rec.Nonce,
		string(rec.OwnerType), rec.OwnerName, nullStr(rec.ServiceName), nullStr(rec.Description),
		nullTime(rec.ExpiresAt), timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "secret %q already exists", rec.Name)
	}
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, idOrName string) (*SecretRecord, error) {
	rec := &SecretRecord{}
	var serviceName, description sql.NullString
	var expiresAt sql.NullTime
	var secretType, ownerType string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+secretMetaCols+`, encrypted_value, nonce FROM secrets WHERE id = ? OR name = ?`,
		idOrName, idOrName,
	).Scan(&rec.ID, &rec.Name, &secretType, &ownerType, &rec.OwnerName,
		&serviceName, &description, &expiresAt, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.EncryptedValue, &rec.Nonce)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", idOrName)
	}
	if err != nil {
		return nil, err
	}
	rec.SecretType = schema.SecretType(secretType)
	rec.OwnerType = schema.AccessorType(ownerType)
	rec.ServiceName = serviceName.String
	rec.Description = description.String
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	return rec, nil
}

func (s *LibSQLStore) UpdateSecretMeta(ctx context.Context, id string, update SecretMetaUpdate) error {
	var sets []string
	var args []any

	if update.ServiceName != nil {
		sets = append(sets, "service_name = ?")
		args = append(args, nullStr(*update.ServiceName))
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if update.ClearExpiry {
		sets = append(sets, "expires_at = NULL")
	} else if update.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, *update.ExpiresAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE secrets SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", id)
}

func (s *LibSQLStore) RotateSecretValue(ctx context.Context, id string, encryptedValue, nonce []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE secrets SET encrypted_value = ?, nonce = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		encryptedValue, nonce, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", id)
}

// DeleteSecret removes the secret; tags and grants cascade via foreign
// keys. Audit rows are untouched (they keep the name snapshot).
func (s *LibSQLStore) DeleteSecret(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", id)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context, q schema.ListSecretsQuery) ([]*schema.Secret, int, error) {
	var where []string
	var args []any

	if q.SecretType != "" {
		where = append(where, "secret_type = ?")
		args = append(args, string(q.SecretType))
	}
	if q.ServiceName != "" {
		where = append(where, "service_name = ?")
		args = append(args, q.ServiceName)
	}
	if q.Owner != "" {
		where = append(where, "owner_name = ?")
		args = append(args, q.Owner)
	}
	if q.Tool != "" {
		where = append(where, "EXISTS (SELECT 1 FROM secret_tags t WHERE t.secret_id = secrets.id AND t.tag_type = 'tool' AND t.tag_value = ?)")
		args = append(args, q.Tool)
	}
	if q.Env != "" {
		where = append(where, "EXISTS (SELECT 1 FROM secret_tags t WHERE t.secret_id = secrets.id AND t.tag_type = 'env' AND t.tag_value = ?)")
		args = append(args, q.Env)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM secrets"+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + secretMetaCols + " FROM secrets" + whereClause + " ORDER BY created_at DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	secrets, err := scanSecrets(rows)
	if err != nil {
		return nil, 0, err
	}
	return secrets, total, nil
}

func (s *LibSQLStore) FindSecretsByTag(ctx context.Context, tagType schema.TagType, tagValue string) ([]*schema.Secret, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixCols("s", secretMetaCols)+` FROM secrets s
		 JOIN secret_tags t ON t.secret_id = s.id
		 WHERE t.tag_type = ? AND t.tag_value = ?
		 ORDER BY s.created_at DESC`,
		string(tagType), tagValue,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSecrets(rows)
}

func (s *LibSQLStore) ExpiredSecrets(ctx context.Context) ([]*schema.Secret, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+secretMetaCols+` FROM secrets WHERE expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at ASC`,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSecrets(rows)
}

func (s *LibSQLStore) Stats(ctx context.Context) (*schema.Stats, error) {
	stats := &schema.Stats{ByType: make(map[schema.SecretType]int)}
	for _, t := range schema.SecretTypes {
		stats.ByType[t] = 0
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM secrets`).Scan(&stats.Total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT secret_type, COUNT(*) FROM secrets GROUP BY secret_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		stats.ByType[schema.SecretType(typ)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	soon := now.Add(30 * 24 * time.Hour)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM secrets WHERE expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?`,
		now, soon,
	).Scan(&stats.ExpiringSoon); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM secrets WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		now,
	).Scan(&stats.Expired); err != nil {
		return nil, err
	}
	return stats, nil
}

func scanSecrets(rows *sql.Rows) ([]*schema.Secret, error) {
	var secrets []*schema.Secret
	for rows.Next() {
		sec := &schema.Secret{}
		var serviceName, description sql.NullString
		var expiresAt sql.NullTime
		var secretType, ownerType string
		if err := rows.Scan(&sec.ID, &sec.Name, &secretType, &ownerType, &sec.OwnerName,
			&serviceName, &description, &expiresAt, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, err
		}
		sec.SecretType = schema.SecretType(secretType)
		sec.OwnerType = schema.AccessorType(ownerType)
		sec.ServiceName = serviceName.String
		sec.Description = description.String
		if expiresAt.Valid {
			t := expiresAt.Time
			sec.ExpiresAt = &t
		}
		secrets = append(secrets, sec)
	}
	return secrets, rows.Err()
}

// --- Tags ---

func (s *LibSQLStore) AddTag(ctx context.Context, tag *schema.Tag) (*schema.Tag, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO secret_tags (secret_id, tag_type, tag_value, permission, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tag.SecretID, string(tag.TagType), tag.TagValue, string(tag.Permission), timeOrNow(tag.CreatedAt),
	)
	if isUniqueViolation(err) {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"tag %s=%s already exists on secret %s", tag.TagType, tag.TagValue, tag.SecretID)
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.getTagByID(ctx, id)
}

func (s *LibSQLStore) getTagByID(ctx context.Context, id int64) (*schema.Tag, error) {
	tag := &schema.Tag{}
	var tagType, permission string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, secret_id, tag_type, tag_value, permission, created_at FROM secret_tags WHERE id = ?`, id,
	).Scan(&tag.ID, &tag.SecretID, &tagType, &tag.TagValue, &permission, &tag.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("tag", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, err
	}
	tag.TagType = schema.TagType(tagType)
	tag.Permission = schema.Permission(permission)
	return tag, nil
}

func (s *LibSQLStore) RemoveTag(ctx context.Context, secretID string, tagType schema.TagType, tagValue string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM secret_tags WHERE secret_id = ? AND tag_type = ? AND tag_value = ?`,
		secretID, string(tagType), tagValue,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tag", string(tagType)+"="+tagValue)
}

func (s *LibSQLStore) GetTags(ctx context.Context, secretID string) ([]*schema.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, secret_id, tag_type, tag_value, permission, created_at
		 FROM secret_tags WHERE secret_id = ? ORDER BY id`,
		secretID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*schema.Tag
	for rows.Next() {
		tag := &schema.Tag{}
		var tagType, permission string
		if err := rows.Scan(&tag.ID, &tag.SecretID, &tagType, &tag.TagValue, &permission, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tag.TagType = schema.TagType(tagType)
		tag.Permission = schema.Permission(permission)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// --- Grants ---

func (s *LibSQLStore) UpsertGrant(ctx context.Context, grant *schema.Grant) (*schema.Grant, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secret_grants (secret_id, grantee_type, grantee_name, permission, granted_by, granted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(secret_id, grantee_type, grantee_name) DO UPDATE SET
		   permission=excluded.permission, granted_by=excluded.granted_by, granted_at=excluded.granted_at`,
		grant.SecretID, string(grant.GranteeType), grant.GranteeName,
		string(grant.Permission), grant.GrantedBy, timeOrNow(grant.GrantedAt),
	)
	if err != nil {
		return nil, err
	}
	return s.GetGrant(ctx, grant.SecretID, grant.GranteeType, grant.GranteeName)
}

func (s *LibSQLStore) RemoveGrant(ctx context.Context, secretID string, granteeType schema.AccessorType, granteeName string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM secret_grants WHERE secret_id = ? AND grantee_type = ? AND grantee_name = ?`,
		secretID, string(granteeType), granteeName,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "grant", string(granteeType)+":"+granteeName)
}

func (s *LibSQLStore) GetGrant(ctx context.Context, secretID string, granteeType schema.AccessorType, granteeName string) (*schema.Grant, error) {
	g := &schema.Grant{}
	var gType, permission string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, secret_id, grantee_type, grantee_name, permission, granted_by, granted_at
		 FROM secret_grants WHERE secret_id = ? AND grantee_type = ? AND grantee_name = ?`,
		secretID, string(granteeType), granteeName,
	).Scan(&g.ID, &g.SecretID, &gType, &g.GranteeName, &permission, &g.GrantedBy, &g.GrantedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("grant", string(granteeType)+":"+granteeName)
	}
	if err != nil {
		return nil, err
	}
	g.GranteeType = schema.AccessorType(gType)
	g.Permission = schema.Permission(permission)
	return g, nil
}

func (s *LibSQLStore) GetGrants(ctx context.Context, secretID string) ([]*schema.Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, secret_id, grantee_type, grantee_name, permission, granted_by, granted_at
		 FROM secret_grants WHERE secret_id = ? ORDER BY id`,
		secretID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*schema.Grant
	for rows.Next() {
		g := &schema.Grant{}
		var gType, permission string
		if err := rows.Scan(&g.ID, &g.SecretID, &gType, &g.GranteeName, &permission, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, err
		}
		g.GranteeType = schema.AccessorType(gType)
		g.Permission = schema.Permission(permission)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// --- Recovery codes ---

// ReplaceRecoveryCodes deletes all unused codes and inserts the fresh
// batch atomically, so a mint invalidates every prior unused code.
func (s *LibSQLStore) ReplaceRecoveryCodes(ctx context.Context, hashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vault_recovery WHERE used = 0`); err != nil {
		return fmt.Errorf("delete unused recovery codes: %w", err)
	}
	for _, hash := range hashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vault_recovery (recovery_code_hash, created_at) VALUES (?, ?)`,
			hash, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("insert recovery code: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recovery codes: %w", err)
	}
	return nil
}

func (s *LibSQLStore) FindUnusedRecoveryCode(ctx context.Context, hash string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM vault_recovery WHERE recovery_code_hash = ? AND used = 0`, hash,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, storeNotFound("recovery code", hash)
	}
	return id, err
}

func (s *LibSQLStore) HasRecoveryCodes(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vault_recovery WHERE used = 0`,
	).Scan(&count)
	return count > 0, err
}

// ResetVault consumes the recovery code and wipes secrets, tags,
// grants and the vault config in one transaction. The delete-then-
// reinit sequence must not interleave with a concurrent reset: the
// guarded UPDATE fails if the code was consumed in the meantime.
func (s *LibSQLStore) ResetVault(ctx context.Context, usedCodeID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE vault_recovery SET used = 1, used_at = CURRENT_TIMESTAMP WHERE id = ? AND used = 0`,
		usedCodeID,
	)
	if err != nil {
		return fmt.Errorf("mark recovery code used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewError(schema.ErrCodeInvalidRecovery, "recovery code already used")
	}

	for _, stmt := range []string{
		`DELETE FROM secret_tags`,
		`DELETE FROM secret_grants`,
		`DELETE FROM secrets`,
		`DELETE FROM vault_config`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset vault: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// --- Vault config ---

func (s *LibSQLStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM vault_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", storeNotFound("vault config", key)
	}
	return value, err
}

func (s *LibSQLStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vault_config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// SetConfigs writes all entries in one transaction. A partial write
// must never survive: config rows like the salt and wrapped master
// key are only meaningful as a complete set.
func (s *LibSQLStore) SetConfigs(ctx context.Context, configs map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for key, value := range configs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vault_config (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("set config %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit config: %w", err)
	}
	return nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.VaultError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func prefixCols(prefix, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, c := range parts {
		parts[i] = prefix + "." + c
	}
	return strings.Join(parts, ", ")
}
