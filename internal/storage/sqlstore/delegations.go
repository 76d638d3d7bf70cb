package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"hr-suite/internal/workflow"
)

const delegationColumns = `id, delegator, delegate, start_at, end_at, reason, created_by, created_at, revoked_by, revoked_at`

func scanDelegation(row rowScanner) (workflow.Delegation, error) {
	var (
		d                           workflow.Delegation
		start, end, created, revoke dbTime
	)
	if err := row.Scan(
		&d.ID,
		&d.Delegator,
		&d.Delegate,
		&start,
		&end,
		&d.Reason,
		&d.CreatedBy,
		&created,
		&d.RevokedBy,
		&revoke,
	); err != nil {
		return workflow.Delegation{}, err
	}
	d.Start = start.Time
	d.End = end.Time
	d.CreatedAt = created.Time
	d.RevokedAt = revoke.ptr()
	return d, nil
}

func (r reader) FindDelegation(ctx context.Context, id string) (workflow.Delegation, error) {
	d, err := scanDelegation(r.queryRow(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.Delegation{}, workflow.NotFoundf("delegation %s not found", id)
		}
		return workflow.Delegation{}, err
	}
	return d, nil
}

// Activity windows are evaluated by the caller; these return every row.
func (r reader) ListDelegationsByDelegate(ctx context.Context, delegate string) ([]workflow.Delegation, error) {
	return r.listDelegations(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE delegate = ? ORDER BY start_at, id`, delegate)
}

func (r reader) ListDelegationsByDelegator(ctx context.Context, delegator string) ([]workflow.Delegation, error) {
	return r.listDelegations(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE delegator = ? ORDER BY start_at, id`, delegator)
}

func (r reader) listDelegations(ctx context.Context, q string, args ...any) ([]workflow.Delegation, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *txStore) InsertDelegation(ctx context.Context, d workflow.Delegation) error {
	const q = `
INSERT INTO delegations (
  id, delegator, delegate, start_at, end_at, reason, created_by, created_at, revoked_by, revoked_at
) VALUES (?,?,?,?,?,?,?,?,?,?)
`
	_, err := t.exec(ctx, q,
		d.ID,
		d.Delegator,
		d.Delegate,
		t.d.timeArg(d.Start),
		t.d.timeArg(d.End),
		d.Reason,
		d.CreatedBy,
		t.d.timeArg(d.CreatedAt),
		d.RevokedBy,
		t.d.timePtrArg(d.RevokedAt),
	)
	return err
}

// SaveDelegation persists revocation. Window and principals are immutable.
func (t *txStore) SaveDelegation(ctx context.Context, d workflow.Delegation) error {
	res, err := t.exec(ctx,
		`UPDATE delegations SET revoked_by = ?, revoked_at = ? WHERE id = ?`,
		d.RevokedBy,
		t.d.timePtrArg(d.RevokedAt),
		d.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workflow.NotFoundf("delegation %s not found", d.ID)
	}
	return nil
}
