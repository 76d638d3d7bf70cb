package workflow

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a workflow subject.
// Values are persisted; keep them stable.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCanceled    Status = "canceled"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCanceled:
		return true
	default:
		return false
	}
}

// SubjectClass names the business record type (pay_grade, tax_rule, org_structure, ...).
type SubjectClass string

// Subject is a business record whose status is governed by the engine.
//
// Invariants:
// - Only the status-related fields and Payload are mutated by the engine.
// - Version increments on every successful mutation; saves are conditional on it.
// - Payload is opaque JSON owned by the module that created the record.
type Subject struct {
	ID      string          `json:"id" db:"id"`
	Class   SubjectClass    `json:"class" db:"class"`
	Status  Status          `json:"status" db:"status"`
	Payload json.RawMessage `json:"payload" db:"payload"`

	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	ApprovedBy string     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy string     `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`

	UpdatedBy string    `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Version int64 `json:"version" db:"version"`
}

// ChangeRequest is a Subject that goes through submission and multi-approver review.
// CreatedBy is the requester.
type ChangeRequest struct {
	Subject

	// RequestNumber is PREFIX-YEAR-NNNNN, unique and monotonic per prefix and year.
	RequestNumber string `json:"request_number" db:"request_number"`

	SubmittedBy string     `json:"submitted_by,omitempty" db:"submitted_by"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`
	CanceledBy  string     `json:"canceled_by,omitempty" db:"canceled_by"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty" db:"canceled_at"`
}

// Decision is one approver's vote.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ParseDecision accepts only the values a caller may record.
func ParseDecision(v string) (Decision, error) {
	switch Decision(v) {
	case DecisionApproved, DecisionRejected:
		return Decision(v), nil
	default:
		return "", Validationf("decision must be %q or %q, got %q", DecisionApproved, DecisionRejected, v)
	}
}

// ApprovalDecision is write-once: once Decision leaves pending it never changes.
// DecidedBy may differ from Approver when a delegate acted.
type ApprovalDecision struct {
	ID        string     `json:"id" db:"id"`
	RequestID string     `json:"request_id" db:"request_id"`
	Approver  string     `json:"approver" db:"approver"`
	Label     string     `json:"label,omitempty" db:"label"`
	Position  int        `json:"position" db:"position"`
	Decision  Decision   `json:"decision" db:"decision"`
	DecidedBy string     `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	Comment   string     `json:"comment,omitempty" db:"comment"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Delegation lets Delegate act for Delegator between Start and End, both inclusive.
type Delegation struct {
	ID        string     `json:"id" db:"id"`
	Delegator string     `json:"delegator" db:"delegator"`
	Delegate  string     `json:"delegate" db:"delegate"`
	Start     time.Time  `json:"start" db:"start_at"`
	End       time.Time  `json:"end" db:"end_at"`
	Reason    string     `json:"reason,omitempty" db:"reason"`
	CreatedBy string     `json:"created_by" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedBy string     `json:"revoked_by,omitempty" db:"revoked_by"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// ActiveAt is evaluated lazily; there is no expiry sweep.
func (d Delegation) ActiveAt(t time.Time) bool {
	if d.RevokedAt != nil && !t.Before(*d.RevokedAt) {
		return false
	}
	return !t.Before(d.Start) && !t.After(d.End)
}

// PendingItem is an undecided approval on a request that is under review.
type PendingItem struct {
	Decision      ApprovalDecision `json:"decision"`
	RequestNumber string           `json:"request_number"`
	RequestClass  SubjectClass     `json:"request_class"`
	RequestedBy   string           `json:"requested_by"`

	// OnBehalfOf is set when the item belongs to a delegator rather than the caller.
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
}

type SubjectFilter struct {
	Class         SubjectClass
	Status        Status
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

type ChangeRequestFilter struct {
	Class         SubjectClass
	Status        Status
	RequestedBy   string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}
