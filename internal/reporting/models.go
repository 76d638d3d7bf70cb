package reporting

import (
	"time"

	"hr-suite/internal/workflow"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest scopes a workflow summary to records created in Range.
// Class is optional.
type SummaryRequest struct {
	Range TimeRange             `json:"range"`
	Class workflow.SubjectClass `json:"class,omitempty"`
}

// WorkflowSummary counts records by status.
//
// Truncated is set when a listing hit the store's row cap; counts are then lower bounds.
type WorkflowSummary struct {
	Range TimeRange             `json:"range"`
	Class workflow.SubjectClass `json:"class,omitempty"`

	ConfigRecords  map[workflow.Status]int `json:"config_records"`
	ChangeRequests map[workflow.Status]int `json:"change_requests"`

	PendingDecisions int `json:"pending_decisions"`

	// AverageReviewHours is the mean time from submission to a final decision.
	AverageReviewHours float64 `json:"average_review_hours"`

	Truncated bool `json:"truncated"`
}
