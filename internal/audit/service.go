package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Appender writes one entry. Workflow transactions implement it so audit
// entries commit or roll back together with the state change.
type Appender interface {
	AppendAudit(ctx context.Context, e Entry) error
}

// Repository is the read contract for audit entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	QueryAudit(ctx context.Context, f Filter) ([]Entry, error)
}

// Service builds and queries audit entries.
//
// Unlike fire-and-forget logging, Record returns every failure so the caller's
// transaction aborts.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock returns a copy of s using clock for timestamps.
func (s *Service) WithClock(clock func() time.Time) *Service {
	out := *s
	out.clock = clock
	return &out
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Record snapshots before/after as JSON and appends through w.
func (s *Service) Record(ctx context.Context, w Appender, entityType, entityID, action string, before, after any, actor string) error {
	if w == nil {
		return errors.New("audit: appender not configured")
	}
	if entityType == "" || entityID == "" || action == "" || actor == "" {
		return ErrInvalidEntry
	}

	b, err := snapshot(before)
	if err != nil {
		return fmt.Errorf("audit: before snapshot: %w", err)
	}
	a, err := snapshot(after)
	if err != nil {
		return fmt.Errorf("audit: after snapshot: %w", err)
	}

	e := Entry{
		ID:          uuid.NewString(),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Before:      b,
		After:       a,
		PerformedBy: actor,
		CreatedAt:   s.clock().UTC(),
	}
	if err := w.AppendAudit(ctx, e); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Query returns entries newest first.
func (s *Service) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
	return s.repo.QueryAudit(ctx, f)
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
