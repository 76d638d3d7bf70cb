package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hr-suite/internal/workflow"
)

const decisionColumns = `id, request_id, approver, label, position, decision, decided_by, decided_at, comment, created_at`

func scanDecision(row rowScanner) (workflow.ApprovalDecision, error) {
	var (
		d                  workflow.ApprovalDecision
		decidedAt, created dbTime
	)
	if err := row.Scan(
		&d.ID,
		&d.RequestID,
		&d.Approver,
		&d.Label,
		&d.Position,
		&d.Decision,
		&d.DecidedBy,
		&decidedAt,
		&d.Comment,
		&created,
	); err != nil {
		return workflow.ApprovalDecision{}, err
	}
	d.DecidedAt = decidedAt.ptr()
	d.CreatedAt = created.Time
	return d, nil
}

func (r reader) FindDecision(ctx context.Context, id string) (workflow.ApprovalDecision, error) {
	d, err := scanDecision(r.queryRow(ctx, `SELECT `+decisionColumns+` FROM approval_decisions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.ApprovalDecision{}, workflow.NotFoundf("approval %s not found", id)
		}
		return workflow.ApprovalDecision{}, err
	}
	return d, nil
}

func (r reader) ListDecisions(ctx context.Context, requestID string) ([]workflow.ApprovalDecision, error) {
	rows, err := r.query(ctx,
		`SELECT `+decisionColumns+` FROM approval_decisions WHERE request_id = ? ORDER BY position, created_at, id`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.ApprovalDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListPendingDecisions returns undecided approvals for approver on requests still under review.
func (r reader) ListPendingDecisions(ctx context.Context, approver string) ([]workflow.PendingItem, error) {
	const q = `
SELECT d.id, d.request_id, d.approver, d.label, d.position, d.decision, d.decided_by, d.decided_at, d.comment, d.created_at,
       cr.request_number, cr.class, cr.created_by
FROM approval_decisions d
JOIN change_requests cr ON cr.id = d.request_id
WHERE d.approver = ? AND d.decision = ? AND cr.status = ?
ORDER BY d.created_at, d.id
`
	rows, err := r.query(ctx, q, approver, string(workflow.DecisionPending), string(workflow.StatusUnderReview))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.PendingItem
	for rows.Next() {
		var (
			it                 workflow.PendingItem
			decidedAt, created dbTime
		)
		if err := rows.Scan(
			&it.Decision.ID,
			&it.Decision.RequestID,
			&it.Decision.Approver,
			&it.Decision.Label,
			&it.Decision.Position,
			&it.Decision.Decision,
			&it.Decision.DecidedBy,
			&decidedAt,
			&it.Decision.Comment,
			&created,
			&it.RequestNumber,
			&it.RequestClass,
			&it.RequestedBy,
		); err != nil {
			return nil, err
		}
		it.Decision.DecidedAt = decidedAt.ptr()
		it.Decision.CreatedAt = created.Time
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *txStore) InsertDecision(ctx context.Context, d workflow.ApprovalDecision) error {
	const q = `
INSERT INTO approval_decisions (
  id, request_id, approver, label, position, decision, decided_by, decided_at, comment, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?)
`
	_, err := t.exec(ctx, q,
		d.ID,
		d.RequestID,
		d.Approver,
		d.Label,
		d.Position,
		string(d.Decision),
		d.DecidedBy,
		t.d.timePtrArg(d.DecidedAt),
		d.Comment,
		t.d.timeArg(d.CreatedAt),
	)
	if isUniqueViolation(err) {
		return workflow.Validationf("approver %s is already attached", d.Approver)
	}
	if err != nil {
		return fmt.Errorf("insert approval decision: %w", err)
	}
	return nil
}

// ResolveDecision is the write-once guard: only a pending row is updated.
func (t *txStore) ResolveDecision(ctx context.Context, d workflow.ApprovalDecision) error {
	const q = `
UPDATE approval_decisions
SET decision = ?, decided_by = ?, decided_at = ?, comment = ?
WHERE id = ? AND decision = ?
`
	res, err := t.exec(ctx, q,
		string(d.Decision),
		d.DecidedBy,
		t.d.timePtrArg(d.DecidedAt),
		d.Comment,
		d.ID,
		string(workflow.DecisionPending),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ok, err := t.exists(ctx, "approval_decisions", d.ID)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.NotFoundf("approval %s not found", d.ID)
	}
	return workflow.DecisionAlreadyMade(d.ID)
}
