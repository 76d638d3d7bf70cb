package reporting

import (
	"context"
	"errors"

	"hr-suite/internal/workflow"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Reads only; reports never mutate workflow state.
// - workflow.Store satisfies it.
type Repository interface {
	ListSubjects(ctx context.Context, f workflow.SubjectFilter) ([]workflow.Subject, error)
	ListChangeRequests(ctx context.Context, f workflow.ChangeRequestFilter) ([]workflow.ChangeRequest, error)
	ListDecisions(ctx context.Context, requestID string) ([]workflow.ApprovalDecision, error)
}

// rowCap matches the store's maximum page size.
const rowCap = 1000

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) WorkflowSummary(ctx context.Context, req SummaryRequest) (WorkflowSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return WorkflowSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return WorkflowSummary{}, errors.New("reporting: repository not configured")
	}

	subjects, err := s.repo.ListSubjects(ctx, workflow.SubjectFilter{
		Class:         req.Class,
		CreatedAfter:  req.Range.From,
		CreatedBefore: req.Range.To,
		Limit:         rowCap,
	})
	if err != nil {
		return WorkflowSummary{}, err
	}
	requests, err := s.repo.ListChangeRequests(ctx, workflow.ChangeRequestFilter{
		Class:         req.Class,
		CreatedAfter:  req.Range.From,
		CreatedBefore: req.Range.To,
		Limit:         rowCap,
	})
	if err != nil {
		return WorkflowSummary{}, err
	}

	out := WorkflowSummary{
		Range:          req.Range,
		Class:          req.Class,
		ConfigRecords:  map[workflow.Status]int{},
		ChangeRequests: map[workflow.Status]int{},
		Truncated:      len(subjects) >= rowCap || len(requests) >= rowCap,
	}
	for _, subj := range subjects {
		out.ConfigRecords[subj.Status]++
	}

	var (
		reviewed   int
		reviewSecs float64
	)
	for _, cr := range requests {
		out.ChangeRequests[cr.Status]++

		switch cr.Status {
		case workflow.StatusUnderReview:
			ds, err := s.repo.ListDecisions(ctx, cr.ID)
			if err != nil {
				return WorkflowSummary{}, err
			}
			for _, d := range ds {
				if d.Decision == workflow.DecisionPending {
					out.PendingDecisions++
				}
			}
		case workflow.StatusApproved, workflow.StatusRejected:
			decided := cr.ApprovedAt
			if cr.Status == workflow.StatusRejected {
				decided = cr.RejectedAt
			}
			if cr.SubmittedAt != nil && decided != nil {
				reviewed++
				reviewSecs += decided.Sub(*cr.SubmittedAt).Seconds()
			}
		}
	}
	if reviewed > 0 {
		out.AverageReviewHours = reviewSecs / float64(reviewed) / 3600
	}
	return out, nil
}
