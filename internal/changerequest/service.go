// Package changerequest runs multi-approver change requests:
// DRAFT, SUBMITTED, UNDER_REVIEW, then APPROVED, REJECTED or CANCELED.
package changerequest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"hr-suite/internal/sequence"
	"hr-suite/internal/workflow"
)

// Sequencer allocates the numeric part of a request number.
type Sequencer interface {
	Next(ctx context.Context, tx workflow.Tx, prefix string, year int) (int64, error)
}

// ApproverSpec names one approver to attach.
type ApproverSpec struct {
	Approver string `json:"approver"`
	Label    string `json:"label,omitempty"`
}

// Detail is a request with its decisions ordered by attach position.
type Detail struct {
	workflow.ChangeRequest
	Decisions []workflow.ApprovalDecision `json:"decisions"`
}

// DecideResult reports the recorded decision and the parent after aggregation.
type DecideResult struct {
	Decision  workflow.ApprovalDecision `json:"decision"`
	Request   workflow.ChangeRequest    `json:"request"`
	Finalized bool                      `json:"finalized"`
}

// Service implements the change request state machine.
//
// Concurrency:
// - Every write to a request is conditional on its version and bumps it, including
//   decision recording. Two decisions racing on one request therefore serialize
//   through the parent and the request is finalized exactly once.
// - A decision leaves pending at most once.
type Service struct {
	deps workflow.Deps
	seq  Sequencer
}

// NewService uses the request_sequences table when seq is nil.
func NewService(deps workflow.Deps, seq Sequencer) *Service {
	if seq == nil {
		seq = sequence.Table{}
	}
	return &Service{deps: deps.WithDefaults(), seq: seq}
}

func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	cr, err := s.deps.Store.FindChangeRequest(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	ds, err := s.deps.Store.ListDecisions(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{ChangeRequest: cr, Decisions: ds}, nil
}

// FindDecision returns one approval, e.g. to check who may decide it.
func (s *Service) FindDecision(ctx context.Context, approvalID string) (workflow.ApprovalDecision, error) {
	return s.deps.Store.FindDecision(ctx, approvalID)
}

func (s *Service) List(ctx context.Context, f workflow.ChangeRequestFilter) ([]workflow.ChangeRequest, error) {
	return s.deps.Store.ListChangeRequests(ctx, f)
}

// Create stores a DRAFT request and assigns its number in the same transaction.
func (s *Service) Create(ctx context.Context, class workflow.SubjectClass, payload json.RawMessage, requester string) (workflow.ChangeRequest, error) {
	policy, err := s.deps.Policies.Lookup(class)
	if err != nil {
		return workflow.ChangeRequest{}, err
	}
	if requester == "" {
		return workflow.ChangeRequest{}, workflow.Validationf("requester is required")
	}
	payload, err = workflow.NormalizePayload(payload)
	if err != nil {
		return workflow.ChangeRequest{}, err
	}

	now := s.deps.Now()
	cr := workflow.ChangeRequest{
		Subject: workflow.Subject{
			ID:        uuid.NewString(),
			Class:     class,
			Status:    workflow.StatusDraft,
			Payload:   payload,
			CreatedBy: requester,
			CreatedAt: now,
			UpdatedBy: requester,
			UpdatedAt: now,
			Version:   1,
		},
	}
	err = s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		n, err := s.seq.Next(ctx, tx, policy.RequestPrefix, now.Year())
		if err != nil {
			return err
		}
		cr.RequestNumber = sequence.FormatRequestNumber(policy.RequestPrefix, now.Year(), n)
		if err := tx.InsertChangeRequest(ctx, cr); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, tx, workflow.EntityChangeRequest, cr.ID, workflow.ActionCreate, nil, cr, requester)
	})
	if err != nil {
		return workflow.ChangeRequest{}, err
	}
	s.deps.Observer.Transition(workflow.EntityChangeRequest, workflow.ActionCreate)
	s.deps.Logger.DebugContext(ctx, "change request created", "id", cr.ID, "number", cr.RequestNumber)
	return cr, nil
}

// Update merges patch into a DRAFT request's payload.
func (s *Service) Update(ctx context.Context, id string, patch json.RawMessage, actor string) (workflow.ChangeRequest, error) {
	return s.mutate(ctx, id, actor, workflow.ActionUpdate, func(cur workflow.ChangeRequest, next *workflow.ChangeRequest) error {
		if cur.Status != workflow.StatusDraft {
			return workflow.InvalidTransition("update", cur.Status)
		}
		merged, err := workflow.MergePayload(cur.Payload, patch)
		if err != nil {
			return err
		}
		next.Payload = merged
		return nil
	})
}

// Submit moves a DRAFT request to SUBMITTED.
func (s *Service) Submit(ctx context.Context, id, submitter string) (workflow.ChangeRequest, error) {
	return s.mutate(ctx, id, submitter, workflow.ActionSubmit, func(cur workflow.ChangeRequest, next *workflow.ChangeRequest) error {
		if cur.Status != workflow.StatusDraft {
			return workflow.InvalidTransition("submit", cur.Status)
		}
		at := next.UpdatedAt
		next.Status = workflow.StatusSubmitted
		next.SubmittedBy = submitter
		next.SubmittedAt = &at
		return nil
	})
}

// Cancel is allowed from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, id, actor string) (workflow.ChangeRequest, error) {
	out, err := s.mutate(ctx, id, actor, workflow.ActionCancel, func(cur workflow.ChangeRequest, next *workflow.ChangeRequest) error {
		if cur.Status.IsTerminal() {
			return workflow.InvalidTransition("cancel", cur.Status)
		}
		at := next.UpdatedAt
		next.Status = workflow.StatusCanceled
		next.CanceledBy = actor
		next.CanceledAt = &at
		return nil
	})
	if err != nil {
		return workflow.ChangeRequest{}, err
	}
	s.notifyTerminal(ctx, workflow.EventChangeRequestCanceled, out, actor)
	return out, nil
}

// mutate runs one version-checked change to a request with its audit entry.
func (s *Service) mutate(ctx context.Context, id, actor, action string, apply func(cur workflow.ChangeRequest, next *workflow.ChangeRequest) error) (workflow.ChangeRequest, error) {
	if actor == "" {
		return workflow.ChangeRequest{}, workflow.Validationf("actor is required")
	}
	var out workflow.ChangeRequest
	err := s.deps.Retry(ctx, "change_request."+action, func() error {
		return s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
			cur, err := tx.FindChangeRequest(ctx, id)
			if err != nil {
				return err
			}
			next := cur
			next.UpdatedBy = actor
			next.UpdatedAt = s.deps.Now()
			next.Version = cur.Version + 1
			if err := apply(cur, &next); err != nil {
				return err
			}
			if err := tx.SaveChangeRequest(ctx, next, cur.Version); err != nil {
				return err
			}
			if err := s.deps.Audit.Record(ctx, tx, workflow.EntityChangeRequest, id, action, cur, next, actor); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return workflow.ChangeRequest{}, err
	}
	s.deps.Observer.Transition(workflow.EntityChangeRequest, action)
	return out, nil
}

// AttachApprover adds a pending decision. The first approver attached to a
// SUBMITTED request moves it to UNDER_REVIEW.
func (s *Service) AttachApprover(ctx context.Context, id string, spec ApproverSpec, actor string) (workflow.ApprovalDecision, error) {
	spec.Approver = strings.TrimSpace(spec.Approver)
	if spec.Approver == "" {
		return workflow.ApprovalDecision{}, workflow.Validationf("approver is required")
	}
	if actor == "" {
		return workflow.ApprovalDecision{}, workflow.Validationf("actor is required")
	}

	var out workflow.ApprovalDecision
	err := s.deps.Retry(ctx, "change_request.attach_approver", func() error {
		return s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
			cur, err := tx.FindChangeRequest(ctx, id)
			if err != nil {
				return err
			}
			if cur.Status != workflow.StatusSubmitted && cur.Status != workflow.StatusUnderReview {
				return workflow.InvalidTransition("attach approver", cur.Status)
			}
			existing, err := tx.ListDecisions(ctx, id)
			if err != nil {
				return err
			}
			for _, d := range existing {
				if d.Approver == spec.Approver {
					return workflow.Validationf("approver %s is already attached", spec.Approver)
				}
			}

			now := s.deps.Now()
			d := workflow.ApprovalDecision{
				ID:        uuid.NewString(),
				RequestID: id,
				Approver:  spec.Approver,
				Label:     spec.Label,
				Position:  len(existing),
				Decision:  workflow.DecisionPending,
				CreatedAt: now,
			}
			if err := tx.InsertDecision(ctx, d); err != nil {
				return err
			}

			next := cur
			next.Status = workflow.StatusUnderReview
			next.UpdatedBy = actor
			next.UpdatedAt = now
			next.Version = cur.Version + 1
			if err := tx.SaveChangeRequest(ctx, next, cur.Version); err != nil {
				return err
			}
			if err := s.deps.Audit.Record(ctx, tx, workflow.EntityApproval, d.ID, workflow.ActionCreate, nil, d, actor); err != nil {
				return err
			}
			if err := s.deps.Audit.Record(ctx, tx, workflow.EntityChangeRequest, id, workflow.ActionAttachApprover, cur, next, actor); err != nil {
				return err
			}
			out = d
			return nil
		})
	})
	if err != nil {
		return workflow.ApprovalDecision{}, err
	}
	s.deps.Observer.Transition(workflow.EntityChangeRequest, workflow.ActionAttachApprover)
	return out, nil
}

// Decide records one approver's decision and aggregates the request.
// actor is recorded as DecidedBy; authorization to act for the approver is the caller's concern.
func (s *Service) Decide(ctx context.Context, approvalID string, decision workflow.Decision, comment, actor string) (DecideResult, error) {
	if _, err := workflow.ParseDecision(string(decision)); err != nil {
		return DecideResult{}, err
	}
	if actor == "" {
		return DecideResult{}, workflow.Validationf("actor is required")
	}

	var res DecideResult
	err := s.deps.Retry(ctx, "change_request.decide", func() error {
		res = DecideResult{}
		return s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
			d, err := tx.FindDecision(ctx, approvalID)
			if err != nil {
				return err
			}
			if d.Decision != workflow.DecisionPending {
				return workflow.DecisionAlreadyMade(approvalID)
			}
			cur, err := tx.FindChangeRequest(ctx, d.RequestID)
			if err != nil {
				return err
			}
			if cur.Status != workflow.StatusUnderReview {
				return workflow.InvalidTransition("decide", cur.Status)
			}

			now := s.deps.Now()
			resolved := d
			resolved.Decision = decision
			resolved.DecidedBy = actor
			resolved.DecidedAt = &now
			resolved.Comment = comment
			if err := tx.ResolveDecision(ctx, resolved); err != nil {
				return err
			}
			if err := s.deps.Audit.Record(ctx, tx, workflow.EntityApproval, d.ID, workflow.ActionDecide, d, resolved, actor); err != nil {
				return err
			}

			all, err := tx.ListDecisions(ctx, cur.ID)
			if err != nil {
				return err
			}
			final, done := Aggregate(all)

			next := cur
			next.UpdatedBy = actor
			next.UpdatedAt = now
			next.Version = cur.Version + 1
			if done {
				next.Status = final
				if final == workflow.StatusApproved {
					next.ApprovedBy, next.ApprovedAt = actor, &now
				} else {
					next.RejectedBy, next.RejectedAt = actor, &now
				}
			}
			// The parent write is the compare-and-set that serializes concurrent deciders.
			if err := tx.SaveChangeRequest(ctx, next, cur.Version); err != nil {
				return err
			}
			if done {
				if err := s.deps.Audit.Record(ctx, tx, workflow.EntityChangeRequest, cur.ID, workflow.ActionFinalize, cur, next, actor); err != nil {
					return err
				}
			}

			res = DecideResult{Decision: resolved, Request: next, Finalized: done}
			return nil
		})
	})
	if err != nil {
		return DecideResult{}, err
	}

	s.deps.Observer.Transition(workflow.EntityApproval, workflow.ActionDecide)
	if res.Finalized {
		s.deps.Observer.Transition(workflow.EntityChangeRequest, workflow.ActionFinalize)
		s.deps.Logger.DebugContext(ctx, "change request finalized", "id", res.Request.ID, "status", res.Request.Status)
		event := workflow.EventChangeRequestApproved
		if res.Request.Status == workflow.StatusRejected {
			event = workflow.EventChangeRequestRejected
		}
		s.notifyTerminal(ctx, event, res.Request, actor)
	}
	return res, nil
}

// notifyTerminal tells the requester and every attached approver. Lookup or
// delivery failures are logged only.
func (s *Service) notifyTerminal(ctx context.Context, event string, cr workflow.ChangeRequest, actor string) {
	recipients := []string{cr.CreatedBy}
	ds, err := s.deps.Store.ListDecisions(ctx, cr.ID)
	if err != nil {
		s.deps.Logger.WarnContext(ctx, "list approvers for notification", "id", cr.ID, "err", err)
	}
	for _, d := range ds {
		recipients = append(recipients, d.Approver)
	}
	s.deps.Dispatch(ctx, workflow.Notification{
		Event:      event,
		Recipients: workflow.Recipients(recipients...),
		Payload: map[string]any{
			"id":             cr.ID,
			"request_number": cr.RequestNumber,
			"class":          cr.Class,
			"status":         cr.Status,
			"actor":          actor,
		},
	})
}
