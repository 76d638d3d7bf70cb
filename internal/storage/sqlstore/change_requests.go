package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hr-suite/internal/workflow"
)

const changeRequestColumns = `id, request_number, class, status, payload, created_by, created_at,
submitted_by, submitted_at, approved_by, approved_at, rejected_by, rejected_at,
canceled_by, canceled_at, updated_by, updated_at, version`

func scanChangeRequest(row rowScanner) (workflow.ChangeRequest, error) {
	var (
		cr                     workflow.ChangeRequest
		payload                []byte
		created, updated       dbTime
		submittedAt            dbTime
		approvedAt, rejectedAt dbTime
		canceledAt             dbTime
	)
	if err := row.Scan(
		&cr.ID,
		&cr.RequestNumber,
		&cr.Class,
		&cr.Status,
		&payload,
		&cr.CreatedBy,
		&created,
		&cr.SubmittedBy,
		&submittedAt,
		&cr.ApprovedBy,
		&approvedAt,
		&cr.RejectedBy,
		&rejectedAt,
		&cr.CanceledBy,
		&canceledAt,
		&cr.UpdatedBy,
		&updated,
		&cr.Version,
	); err != nil {
		return workflow.ChangeRequest{}, err
	}
	cr.Payload = json.RawMessage(payload)
	cr.CreatedAt = created.Time
	cr.UpdatedAt = updated.Time
	cr.SubmittedAt = submittedAt.ptr()
	cr.ApprovedAt = approvedAt.ptr()
	cr.RejectedAt = rejectedAt.ptr()
	cr.CanceledAt = canceledAt.ptr()
	return cr, nil
}

func (r reader) FindChangeRequest(ctx context.Context, id string) (workflow.ChangeRequest, error) {
	cr, err := scanChangeRequest(r.queryRow(ctx, `SELECT `+changeRequestColumns+` FROM change_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.ChangeRequest{}, workflow.NotFoundf("change request %s not found", id)
		}
		return workflow.ChangeRequest{}, err
	}
	return cr, nil
}

func (r reader) ListChangeRequests(ctx context.Context, f workflow.ChangeRequestFilter) ([]workflow.ChangeRequest, error) {
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
	if f.RequestedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, f.RequestedBy)
	}
	if !f.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, r.d.timeArg(f.CreatedAfter))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, r.d.timeArg(f.CreatedBefore))
	}

	q := `SELECT ` + changeRequestColumns + ` FROM change_requests`
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

	var out []workflow.ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// likeEscaper quotes LIKE wildcards so configured prefixes match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// MaxRequestSequence returns the highest sequence already used in request
// numbers for prefix and year, or 0. It seeds external sequencers.
func (r reader) MaxRequestSequence(ctx context.Context, prefix string, year int) (int64, error) {
	stem := fmt.Sprintf("%s-%d-", prefix, year)
	var number string
	err := r.queryRow(ctx,
		`SELECT request_number FROM change_requests WHERE request_number LIKE ? ESCAPE '\' ORDER BY LENGTH(request_number) DESC, request_number DESC LIMIT 1`,
		likeEscaper.Replace(stem)+"%",
	).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(number, stem), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse request number %q: %w", number, err)
	}
	return n, nil
}

func (t *txStore) InsertChangeRequest(ctx context.Context, cr workflow.ChangeRequest) error {
	const q = `
INSERT INTO change_requests (
  id, request_number, class, status, payload, created_by, created_at,
  submitted_by, submitted_at, approved_by, approved_at, rejected_by, rejected_at,
  canceled_by, canceled_at, updated_by, updated_at, version
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`
	_, err := t.exec(ctx, q,
		cr.ID,
		cr.RequestNumber,
		string(cr.Class),
		string(cr.Status),
		jsonArg(cr.Payload),
		cr.CreatedBy,
		t.d.timeArg(cr.CreatedAt),
		cr.SubmittedBy,
		t.d.timePtrArg(cr.SubmittedAt),
		cr.ApprovedBy,
		t.d.timePtrArg(cr.ApprovedAt),
		cr.RejectedBy,
		t.d.timePtrArg(cr.RejectedAt),
		cr.CanceledBy,
		t.d.timePtrArg(cr.CanceledAt),
		cr.UpdatedBy,
		t.d.timeArg(cr.UpdatedAt),
		cr.Version,
	)
	return err
}

func (t *txStore) SaveChangeRequest(ctx context.Context, cr workflow.ChangeRequest, expectedVersion int64) error {
	const q = `
UPDATE change_requests
SET status = ?, payload = ?, submitted_by = ?, submitted_at = ?, approved_by = ?, approved_at = ?,
    rejected_by = ?, rejected_at = ?, canceled_by = ?, canceled_at = ?,
    updated_by = ?, updated_at = ?, version = ?
WHERE id = ? AND version = ?
`
	res, err := t.exec(ctx, q,
		string(cr.Status),
		jsonArg(cr.Payload),
		cr.SubmittedBy,
		t.d.timePtrArg(cr.SubmittedAt),
		cr.ApprovedBy,
		t.d.timePtrArg(cr.ApprovedAt),
		cr.RejectedBy,
		t.d.timePtrArg(cr.RejectedAt),
		cr.CanceledBy,
		t.d.timePtrArg(cr.CanceledAt),
		cr.UpdatedBy,
		t.d.timeArg(cr.UpdatedAt),
		cr.Version,
		cr.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	return t.checkAffected(ctx, res, "change_requests", "change request", cr.ID)
}

// NextSequence allocates the next request number sequence for prefix and year.
// The upsert takes a row lock, so concurrent callers never share a value.
func (t *txStore) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	const q = `
INSERT INTO request_sequences (prefix, year, value) VALUES (?, ?, 1)
ON CONFLICT (prefix, year) DO UPDATE SET value = request_sequences.value + 1
RETURNING value
`
	var v int64
	if err := t.queryRow(ctx, q, prefix, year).Scan(&v); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return v, nil
}
