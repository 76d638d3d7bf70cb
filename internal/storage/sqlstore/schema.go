package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// Tables are created idempotently. Columns holding optional principals are
// NOT NULL with an empty default so scans need no NullString.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS workflow_subjects (
  id TEXT PRIMARY KEY,
  class TEXT NOT NULL,
  status TEXT NOT NULL,
  payload {{JSON}} NOT NULL,
  created_by TEXT NOT NULL,
  created_at {{TS}} NOT NULL,
  approved_by TEXT NOT NULL DEFAULT '',
  approved_at {{TS}},
  rejected_by TEXT NOT NULL DEFAULT '',
  rejected_at {{TS}},
  updated_by TEXT NOT NULL DEFAULT '',
  updated_at {{TS}} NOT NULL,
  version BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflow_subjects_class_status ON workflow_subjects (class, status);
CREATE TABLE IF NOT EXISTS change_requests (
  id TEXT PRIMARY KEY,
  request_number TEXT NOT NULL UNIQUE,
  class TEXT NOT NULL,
  status TEXT NOT NULL,
  payload {{JSON}} NOT NULL,
  created_by TEXT NOT NULL,
  created_at {{TS}} NOT NULL,
  submitted_by TEXT NOT NULL DEFAULT '',
  submitted_at {{TS}},
  approved_by TEXT NOT NULL DEFAULT '',
  approved_at {{TS}},
  rejected_by TEXT NOT NULL DEFAULT '',
  rejected_at {{TS}},
  canceled_by TEXT NOT NULL DEFAULT '',
  canceled_at {{TS}},
  updated_by TEXT NOT NULL DEFAULT '',
  updated_at {{TS}} NOT NULL,
  version BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_requests_status ON change_requests (status, created_at);
CREATE INDEX IF NOT EXISTS idx_change_requests_created_by ON change_requests (created_by);
CREATE TABLE IF NOT EXISTS approval_decisions (
  id TEXT PRIMARY KEY,
  request_id TEXT NOT NULL REFERENCES change_requests (id) ON DELETE CASCADE,
  approver TEXT NOT NULL,
  label TEXT NOT NULL DEFAULT '',
  position INTEGER NOT NULL,
  decision TEXT NOT NULL,
  decided_by TEXT NOT NULL DEFAULT '',
  decided_at {{TS}},
  comment TEXT NOT NULL DEFAULT '',
  created_at {{TS}} NOT NULL,
  UNIQUE (request_id, approver)
);
CREATE INDEX IF NOT EXISTS idx_approval_decisions_approver ON approval_decisions (approver, decision);
CREATE TABLE IF NOT EXISTS delegations (
  id TEXT PRIMARY KEY,
  delegator TEXT NOT NULL,
  delegate TEXT NOT NULL,
  start_at {{TS}} NOT NULL,
  end_at {{TS}} NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  created_by TEXT NOT NULL,
  created_at {{TS}} NOT NULL,
  revoked_by TEXT NOT NULL DEFAULT '',
  revoked_at {{TS}}
);
CREATE INDEX IF NOT EXISTS idx_delegations_delegate ON delegations (delegate);
CREATE INDEX IF NOT EXISTS idx_delegations_delegator ON delegations (delegator);
CREATE TABLE IF NOT EXISTS audit_entries (
  seq {{SERIAL}},
  id TEXT NOT NULL UNIQUE,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  action TEXT NOT NULL,
  before_json {{JSON}},
  after_json {{JSON}},
  performed_by TEXT NOT NULL,
  created_at {{TS}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries (entity_type, entity_id, seq);
CREATE TABLE IF NOT EXISTS request_sequences (
  prefix TEXT NOT NULL,
  year INTEGER NOT NULL,
  value BIGINT NOT NULL,
  PRIMARY KEY (prefix, year)
);
`

func (d Dialect) schema() []string {
	var r *strings.Replacer
	if d == Postgres {
		r = strings.NewReplacer("{{TS}}", "TIMESTAMPTZ", "{{JSON}}", "JSONB", "{{SERIAL}}", "BIGSERIAL PRIMARY KEY")
	} else {
		r = strings.NewReplacer("{{TS}}", "TEXT", "{{JSON}}", "TEXT", "{{SERIAL}}", "INTEGER PRIMARY KEY AUTOINCREMENT")
	}
	var out []string
	for _, stmt := range strings.Split(r.Replace(schemaTemplate), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Migrate creates the workflow tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
