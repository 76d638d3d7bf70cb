package sqlstore

import (
	"context"
	"encoding/json"
	"strings"

	"hr-suite/internal/audit"
)

func (t *txStore) AppendAudit(ctx context.Context, e audit.Entry) error {
	const q = `
INSERT INTO audit_entries (id, entity_type, entity_id, action, before_json, after_json, performed_by, created_at)
VALUES (?,?,?,?,?,?,?,?)
`
	_, err := t.exec(ctx, q,
		e.ID,
		e.EntityType,
		e.EntityID,
		e.Action,
		jsonArg(e.Before),
		jsonArg(e.After),
		e.PerformedBy,
		t.d.timeArg(e.CreatedAt),
	)
	return err
}

// QueryAudit returns entries newest first.
func (s *Store) QueryAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	q := `SELECT id, entity_type, entity_id, action, before_json, after_json, performed_by, created_at FROM audit_entries`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit))

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e             audit.Entry
			before, after []byte
			created       dbTime
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &before, &after, &e.PerformedBy, &created); err != nil {
			return nil, err
		}
		if before != nil {
			e.Before = json.RawMessage(before)
		}
		if after != nil {
			e.After = json.RawMessage(after)
		}
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	return out, rows.Err()
}
