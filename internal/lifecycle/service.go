// Package lifecycle governs single-approver configuration records:
// DRAFT moves to APPROVED or REJECTED exactly once.
package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"hr-suite/internal/workflow"
)

// Service applies status transitions to configuration records.
//
// Every mutation runs read, check, conditional save and audit append in one
// transaction. Version conflicts re-run the whole unit so a losing writer
// observes the winner's status.
type Service struct {
	deps workflow.Deps
}

func NewService(deps workflow.Deps) *Service {
	return &Service{deps: deps.WithDefaults()}
}

func (s *Service) Get(ctx context.Context, id string) (workflow.Subject, error) {
	return s.deps.Store.FindSubject(ctx, id)
}

func (s *Service) List(ctx context.Context, f workflow.SubjectFilter) ([]workflow.Subject, error) {
	return s.deps.Store.ListSubjects(ctx, f)
}

// Create stores a new record in DRAFT.
func (s *Service) Create(ctx context.Context, class workflow.SubjectClass, payload json.RawMessage, creator string) (workflow.Subject, error) {
	if _, err := s.deps.Policies.Lookup(class); err != nil {
		return workflow.Subject{}, err
	}
	if creator == "" {
		return workflow.Subject{}, workflow.Validationf("creator is required")
	}
	payload, err := workflow.NormalizePayload(payload)
	if err != nil {
		return workflow.Subject{}, err
	}

	now := s.deps.Now()
	subj := workflow.Subject{
		ID:        uuid.NewString(),
		Class:     class,
		Status:    workflow.StatusDraft,
		Payload:   payload,
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedBy: creator,
		UpdatedAt: now,
		Version:   1,
	}
	err = s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		if err := tx.InsertSubject(ctx, subj); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, tx, workflow.EntityConfigRecord, subj.ID, workflow.ActionCreate, nil, subj, creator)
	})
	if err != nil {
		return workflow.Subject{}, err
	}
	s.deps.Observer.Transition(workflow.EntityConfigRecord, workflow.ActionCreate)
	return subj, nil
}

// Update merges patch into the payload. Only DRAFT records are editable, except
// classes with ReopenOnEdit where an APPROVED record is first demoted to DRAFT.
func (s *Service) Update(ctx context.Context, id string, patch json.RawMessage, actor string) (workflow.Subject, error) {
	if actor == "" {
		return workflow.Subject{}, workflow.Validationf("actor is required")
	}

	var (
		out      workflow.Subject
		reopened bool
	)
	err := s.deps.Retry(ctx, "config_record.update", func() error {
		reopened = false
		return s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
			cur, err := tx.FindSubject(ctx, id)
			if err != nil {
				return err
			}
			policy, err := s.deps.Policies.Lookup(cur.Class)
			if err != nil {
				return err
			}

			now := s.deps.Now()
			next := cur
			switch {
			case cur.Status == workflow.StatusDraft:
			case cur.Status == workflow.StatusApproved && policy.ReopenOnEdit:
				next.Status = workflow.StatusDraft
				next.ApprovedBy = ""
				next.ApprovedAt = nil
				reopened = true
			default:
				return workflow.InvalidTransition("update", cur.Status)
			}

			merged, err := workflow.MergePayload(cur.Payload, patch)
			if err != nil {
				return err
			}
			next.Payload = merged
			next.UpdatedBy = actor
			next.UpdatedAt = now
			next.Version = cur.Version + 1

			if err := tx.SaveSubject(ctx, next, cur.Version); err != nil {
				return err
			}
			if reopened {
				demoted := cur
				demoted.Status = workflow.StatusDraft
				demoted.ApprovedBy = ""
				demoted.ApprovedAt = nil
				if err := s.deps.Audit.Record(ctx, tx, workflow.EntityConfigRecord, id, workflow.ActionReopen, cur, demoted, actor); err != nil {
					return err
				}
				cur = demoted
			}
			if err := s.deps.Audit.Record(ctx, tx, workflow.EntityConfigRecord, id, workflow.ActionUpdate, cur, next, actor); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return workflow.Subject{}, err
	}
	if reopened {
		s.deps.Observer.Transition(workflow.EntityConfigRecord, workflow.ActionReopen)
		s.deps.Logger.DebugContext(ctx, "config record reopened", "id", id, "actor", actor)
	}
	s.deps.Observer.Transition(workflow.EntityConfigRecord, workflow.ActionUpdate)
	return out, nil
}

func (s *Service) Approve(ctx context.Context, id, actor string) (workflow.Subject, error) {
	return s.decide(ctx, id, actor, workflow.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, id, actor string) (workflow.Subject, error) {
	return s.decide(ctx, id, actor, workflow.StatusRejected)
}

func (s *Service) decide(ctx context.Context, id, actor string, target workflow.Status) (workflow.Subject, error) {
	action, event := workflow.ActionApprove, workflow.EventSubjectApproved
	if target == workflow.StatusRejected {
		action, event = workflow.ActionReject, workflow.EventSubjectRejected
	}
	if actor == "" {
		return workflow.Subject{}, workflow.Validationf("actor is required")
	}

	var out workflow.Subject
	err := s.deps.Retry(ctx, "config_record."+action, func() error {
		return s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
			cur, err := tx.FindSubject(ctx, id)
			if err != nil {
				return err
			}
			if _, err := s.deps.Policies.Lookup(cur.Class); err != nil {
				return err
			}
			if cur.Status != workflow.StatusDraft {
				return workflow.InvalidTransition(action, cur.Status)
			}

			now := s.deps.Now()
			next := cur
			next.Status = target
			if target == workflow.StatusApproved {
				next.ApprovedBy, next.ApprovedAt = actor, &now
			} else {
				next.RejectedBy, next.RejectedAt = actor, &now
			}
			next.UpdatedBy = actor
			next.UpdatedAt = now
			next.Version = cur.Version + 1

			if err := tx.SaveSubject(ctx, next, cur.Version); err != nil {
				return err
			}
			if err := s.deps.Audit.Record(ctx, tx, workflow.EntityConfigRecord, id, action, cur, next, actor); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return workflow.Subject{}, err
	}

	s.deps.Observer.Transition(workflow.EntityConfigRecord, action)
	s.deps.Logger.DebugContext(ctx, "config record decided", "id", id, "status", out.Status, "actor", actor)
	s.deps.Dispatch(ctx, workflow.Notification{
		Event:      event,
		Recipients: workflow.Recipients(out.CreatedBy),
		Payload:    map[string]any{"id": out.ID, "class": out.Class, "status": out.Status, "actor": actor},
	})
	return out, nil
}

// Delete removes the record if the class delete policy allows its current status.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	if actor == "" {
		return workflow.Validationf("actor is required")
	}
	err := s.deps.Retry(ctx, "config_record.delete", func() error {
		return s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
			cur, err := tx.FindSubject(ctx, id)
			if err != nil {
				return err
			}
			policy, err := s.deps.Policies.Lookup(cur.Class)
			if err != nil {
				return err
			}
			if !policy.Delete.Allows(cur.Status) {
				return workflow.InvalidTransition("delete", cur.Status)
			}
			if err := tx.DeleteSubject(ctx, id, cur.Version); err != nil {
				return err
			}
			return s.deps.Audit.Record(ctx, tx, workflow.EntityConfigRecord, id, workflow.ActionDelete, cur, nil, actor)
		})
	})
	if err != nil {
		return err
	}
	s.deps.Observer.Transition(workflow.EntityConfigRecord, workflow.ActionDelete)
	return nil
}
