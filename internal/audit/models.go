package audit

import (
	"encoding/json"
	"time"
)

// Entry is an immutable, append-only record of one mutation.
//
// Invariants:
// - Entries are never updated or deleted.
// - An entry is appended inside the same transaction as the mutation it describes;
//   if the append fails the mutation is rolled back.
// - Before is null for creations, After is null for deletions.
//
// Storage (Postgres/SQLite):
// - Table audit_entries, INSERT-only.
// - seq orders entries; Query returns newest first.
type Entry struct {
	ID         string `json:"id" db:"id"`
	EntityType string `json:"entity_type" db:"entity_type"`
	EntityID   string `json:"entity_id" db:"entity_id"`
	Action     string `json:"action" db:"action"`

	Before json.RawMessage `json:"before" db:"before_json"`
	After  json.RawMessage `json:"after" db:"after_json"`

	// PerformedBy is the acting principal. When a delegate acts, this is the delegate.
	PerformedBy string `json:"performed_by" db:"performed_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Filter narrows Query. Empty fields match everything.
type Filter struct {
	EntityType string
	EntityID   string
	Limit      int
}

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)
