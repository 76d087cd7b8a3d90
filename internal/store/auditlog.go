package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// AppendAudit inserts one immutable access-log row. Rows are never
// updated or deleted; a secret's deletion leaves its history behind.
func (s *LibSQLStore) AppendAudit(ctx context.Context, entry *schema.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO secret_access_log (secret_id, secret_name, accessor_type, accessor_name, action, tool_context, origin, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SecretID, entry.SecretName, string(entry.AccessorType), entry.AccessorName,
		string(entry.Action), nullStr(entry.ToolContext), nullStr(entry.Origin), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		entry.ID = id
	}
	return nil
}

// ListAudit returns audit entries matching the filter, newest first,
// along with the total match count for pagination.
func (s *LibSQLStore) ListAudit(ctx context.Context, q schema.AuditQuery) ([]*schema.AuditEntry, int, error) {
	var where []string
	var args []any

	if q.SecretID != "" {
		where = append(where, "secret_id = ?")
		args = append(args, q.SecretID)
	}
	if q.AccessorName != "" {
		where = append(where, "accessor_name = ?")
		args = append(args, q.AccessorName)
	}
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(q.Action))
	}
	if q.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *q.Since)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM secret_access_log"+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, secret_id, secret_name, accessor_type, accessor_name, action, tool_context, origin, timestamp
	 FROM secret_access_log` + whereClause + ` ORDER BY timestamp DESC, id DESC`
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

	var entries []*schema.AuditEntry
	for rows.Next() {
		e := &schema.AuditEntry{}
		var accessorType, action string
		var toolContext, origin sql.NullString
		if err := rows.Scan(&e.ID, &e.SecretID, &e.SecretName, &accessorType, &e.AccessorName,
			&action, &toolContext, &origin, &e.Timestamp); err != nil {
			return nil, 0, err
		}
		e.AccessorType = schema.AccessorType(accessorType)
		e.Action = schema.AuditAction(action)
		e.ToolContext = toolContext.String
		e.Origin = origin.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
