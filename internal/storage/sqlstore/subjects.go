package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"hr-suite/internal/workflow"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const subjectColumns = `id, class, status, payload, created_by, created_at, approved_by, approved_at,
rejected_by, rejected_at, updated_by, updated_at, version`

func scanSubject(row rowScanner) (workflow.Subject, error) {
	var (
		s                      workflow.Subject
		payload                []byte
		created, updated       dbTime
		approvedAt, rejectedAt dbTime
	)
	if err := row.Scan(
		&s.ID,
		&s.Class,
		&s.Status,
		&payload,
		&s.CreatedBy,
		&created,
		&s.ApprovedBy,
		&approvedAt,
		&s.RejectedBy,
		&rejectedAt,
		&s.UpdatedBy,
		&updated,
		&s.Version,
	); err != nil {
		return workflow.Subject{}, err
	}
	s.Payload = json.RawMessage(payload)
	s.CreatedAt = created.Time
	s.UpdatedAt = updated.Time
	s.ApprovedAt = approvedAt.ptr()
	s.RejectedAt = rejectedAt.ptr()
	return s, nil
}

func (r reader) FindSubject(ctx context.Context, id string) (workflow.Subject, error) {
	s, err := scanSubject(r.queryRow(ctx, `SELECT `+subjectColumns+` FROM workflow_subjects WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.Subject{}, workflow.NotFoundf("config record %s not found", id)
		}
		return workflow.Subject{}, err
	}
	return s, nil
}

func (r reader) ListSubjects(ctx context.Context, f workflow.SubjectFilter) ([]workflow.Subject, error) {
	var (
		where []string
		args  []any
	)
	if f.Class != "" {
		where = append(where, "class = ?")
		args = append(args, string(f.Class))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, r.d.timeArg(f.CreatedAfter))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, r.d.timeArg(f.CreatedBefore))
	}

	q := `SELECT ` + subjectColumns + ` FROM workflow_subjects`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, clampLimit(f.Limit))

	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *txStore) InsertSubject(ctx context.Context, s workflow.Subject) error {
	const q = `
INSERT INTO workflow_subjects (
  id, class, status, payload, created_by, created_at, approved_by, approved_at,
  rejected_by, rejected_at, updated_by, updated_at, version
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
`
	_, err := t.exec(ctx, q,
		s.ID,
		string(s.Class),
		string(s.Status),
		jsonArg(s.Payload),
		s.CreatedBy,
		t.d.timeArg(s.CreatedAt),
		s.ApprovedBy,
		t.d.timePtrArg(s.ApprovedAt),
		s.RejectedBy,
		t.d.timePtrArg(s.RejectedAt),
		s.UpdatedBy,
		t.d.timeArg(s.UpdatedAt),
		s.Version,
	)
	return err
}

func (t *txStore) SaveSubject(ctx context.Context, s workflow.Subject, expectedVersion int64) error {
	const q = `
UPDATE workflow_subjects
SET status = ?, payload = ?, approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
    updated_by = ?, updated_at = ?, version = ?
WHERE id = ? AND version = ?
`
	res, err := t.exec(ctx, q,
		string(s.Status),
		jsonArg(s.Payload),
		s.ApprovedBy,
		t.d.timePtrArg(s.ApprovedAt),
		s.RejectedBy,
		t.d.timePtrArg(s.RejectedAt),
		s.UpdatedBy,
		t.d.timeArg(s.UpdatedAt),
		s.Version,
		s.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	return t.checkAffected(ctx, res, "workflow_subjects", "config record", s.ID)
}

func (t *txStore) DeleteSubject(ctx context.Context, id string, expectedVersion int64) error {
	res, err := t.exec(ctx, `DELETE FROM workflow_subjects WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		return err
	}
	return t.checkAffected(ctx, res, "workflow_subjects", "config record", id)
}

func (t *txStore) checkAffected(ctx context.Context, res sql.Result, table, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return t.staleOrMissing(ctx, table, kind, id)
	}
	return nil
}
