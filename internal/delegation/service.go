// Package delegation grants time-bounded authority to act for another principal.
//
// Delegations are explicit records. Who may act for whom is never inferred
// from other data, and windows are evaluated at query time with no expiry job.
package delegation

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hr-suite/internal/workflow"
)

type Service struct {
	deps workflow.Deps
}

func NewService(deps workflow.Deps) *Service {
	return &Service{deps: deps.WithDefaults()}
}

// Delegate lets delegate act for delegator from start to end, both inclusive.
// Overlapping delegations for one delegator are allowed.
func (s *Service) Delegate(ctx context.Context, delegator, delegate string, start, end time.Time, reason, actor string) (workflow.Delegation, error) {
	delegator = strings.TrimSpace(delegator)
	delegate = strings.TrimSpace(delegate)
	switch {
	case delegator == "" || delegate == "":
		return workflow.Delegation{}, workflow.Validationf("delegator and delegate are required")
	case delegator == delegate:
		return workflow.Delegation{}, workflow.Validationf("cannot delegate to oneself")
	case start.IsZero() || end.IsZero():
		return workflow.Delegation{}, workflow.Validationf("start and end are required")
	case end.Before(start):
		return workflow.Delegation{}, workflow.Validationf("end must not be before start")
	case actor == "":
		return workflow.Delegation{}, workflow.Validationf("actor is required")
	}

	d := workflow.Delegation{
		ID:        uuid.NewString(),
		Delegator: delegator,
		Delegate:  delegate,
		Start:     start.UTC(),
		End:       end.UTC(),
		Reason:    reason,
		CreatedBy: actor,
		CreatedAt: s.deps.Now(),
	}
	err := s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		if err := tx.InsertDelegation(ctx, d); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, tx, workflow.EntityDelegation, d.ID, workflow.ActionDelegate, nil, d, actor)
	})
	if err != nil {
		return workflow.Delegation{}, err
	}

	s.deps.Observer.Transition(workflow.EntityDelegation, workflow.ActionDelegate)
	s.deps.Dispatch(ctx, workflow.Notification{
		Event:      workflow.EventDelegationCreated,
		Recipients: workflow.Recipients(delegate),
		Payload: map[string]any{
			"id":        d.ID,
			"delegator": d.Delegator,
			"start":     d.Start,
			"end":       d.End,
		},
	})
	return d, nil
}

// Revoke ends a delegation immediately. Revoking twice is a validation error.
func (s *Service) Revoke(ctx context.Context, id, actor string) (workflow.Delegation, error) {
	if actor == "" {
		return workflow.Delegation{}, workflow.Validationf("actor is required")
	}
	var out workflow.Delegation
	err := s.deps.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		cur, err := tx.FindDelegation(ctx, id)
		if err != nil {
			return err
		}
		if cur.RevokedAt != nil {
			return workflow.Validationf("delegation %s is already revoked", id)
		}
		now := s.deps.Now()
		next := cur
		next.RevokedBy = actor
		next.RevokedAt = &now
		if err := tx.SaveDelegation(ctx, next); err != nil {
			return err
		}
		if err := s.deps.Audit.Record(ctx, tx, workflow.EntityDelegation, id, workflow.ActionRevoke, cur, next, actor); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return workflow.Delegation{}, err
	}
	s.deps.Observer.Transition(workflow.EntityDelegation, workflow.ActionRevoke)
	return out, nil
}

// Find returns one delegation, e.g. for ownership checks before Revoke.
func (s *Service) Find(ctx context.Context, id string) (workflow.Delegation, error) {
	return s.deps.Store.FindDelegation(ctx, id)
}

// ResolveActingPrincipal returns principal followed by every delegator with a
// delegation to principal active at now, sorted and without duplicates.
func (s *Service) ResolveActingPrincipal(ctx context.Context, principal string, now time.Time) ([]string, error) {
	if principal == "" {
		return nil, workflow.Validationf("principal is required")
	}
	ds, err := s.deps.Store.ListDelegationsByDelegate(ctx, principal)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{principal: {}}
	var delegators []string
	for _, d := range ds {
		if !d.ActiveAt(now) {
			continue
		}
		if _, ok := seen[d.Delegator]; ok {
			continue
		}
		seen[d.Delegator] = struct{}{}
		delegators = append(delegators, d.Delegator)
	}
	sort.Strings(delegators)
	return append([]string{principal}, delegators...), nil
}

// CanActFor reports whether actor is owner or holds an active delegation from owner.
func (s *Service) CanActFor(ctx context.Context, actor, owner string, now time.Time) (bool, error) {
	if actor == owner {
		return true, nil
	}
	acting, err := s.ResolveActingPrincipal(ctx, actor, now)
	if err != nil {
		return false, err
	}
	for _, p := range acting[1:] {
		if p == owner {
			return true, nil
		}
	}
	return false, nil
}

// ListPendingFor returns the caller's own pending approvals followed by those
// of every principal they currently act for, each marked OnBehalfOf its owner.
func (s *Service) ListPendingFor(ctx context.Context, principal string, now time.Time) ([]workflow.PendingItem, error) {
	acting, err := s.ResolveActingPrincipal(ctx, principal, now)
	if err != nil {
		return nil, err
	}

	results := make([][]workflow.PendingItem, len(acting))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range acting {
		g.Go(func() error {
			items, err := s.deps.Store.ListPendingDecisions(gctx, p)
			if err != nil {
				return err
			}
			if p != principal {
				for j := range items {
					items[j].OnBehalfOf = p
				}
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []workflow.PendingItem
	seen := make(map[string]struct{})
	for _, items := range results {
		for _, it := range items {
			if _, ok := seen[it.Decision.ID]; ok {
				continue
			}
			seen[it.Decision.ID] = struct{}{}
			out = append(out, it)
		}
	}
	return out, nil
}

// Listing groups a principal's delegations by direction.
type Listing struct {
	Given    []workflow.Delegation `json:"given"`
	Received []workflow.Delegation `json:"received"`
}

func (s *Service) ListFor(ctx context.Context, principal string) (Listing, error) {
	given, err := s.deps.Store.ListDelegationsByDelegator(ctx, principal)
	if err != nil {
		return Listing{}, err
	}
	received, err := s.deps.Store.ListDelegationsByDelegate(ctx, principal)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Given: given, Received: received}, nil
}
