package workflow

import (
	"context"
	"log/slog"
	"time"

	"hr-suite/internal/audit"
)

// Entity types written to the audit trail.
const (
	EntityConfigRecord  = "config_record"
	EntityChangeRequest = "change_request"
	EntityApproval      = "approval_decision"
	EntityDelegation    = "delegation"
)

// Audit actions.
const (
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionReopen         = "reopen"
	ActionApprove        = "approve"
	ActionReject         = "reject"
	ActionDelete         = "delete"
	ActionSubmit         = "submit"
	ActionAttachApprover = "attach_approver"
	ActionDecide         = "decide"
	ActionFinalize       = "finalize"
	ActionCancel         = "cancel"
	ActionDelegate       = "delegate"
	ActionRevoke         = "revoke"
)

// Reader is the read side of the persistence collaborator.
type Reader interface {
	FindSubject(ctx context.Context, id string) (Subject, error)
	ListSubjects(ctx context.Context, f SubjectFilter) ([]Subject, error)

	FindChangeRequest(ctx context.Context, id string) (ChangeRequest, error)
	ListChangeRequests(ctx context.Context, f ChangeRequestFilter) ([]ChangeRequest, error)
	// MaxRequestSequence is the highest number already used for prefix and year, or 0.
	MaxRequestSequence(ctx context.Context, prefix string, year int) (int64, error)

	FindDecision(ctx context.Context, id string) (ApprovalDecision, error)
	ListDecisions(ctx context.Context, requestID string) ([]ApprovalDecision, error)
	ListPendingDecisions(ctx context.Context, approver string) ([]PendingItem, error)

	FindDelegation(ctx context.Context, id string) (Delegation, error)
	ListDelegationsByDelegate(ctx context.Context, delegate string) ([]Delegation, error)
	ListDelegationsByDelegator(ctx context.Context, delegator string) ([]Delegation, error)
}

// Tx is one atomic unit of work. Saves are conditional on expectedVersion and
// fail with a version conflict when another writer got there first.
type Tx interface {
	Reader
	audit.Appender

	InsertSubject(ctx context.Context, s Subject) error
	SaveSubject(ctx context.Context, s Subject, expectedVersion int64) error
	DeleteSubject(ctx context.Context, id string, expectedVersion int64) error

	InsertChangeRequest(ctx context.Context, cr ChangeRequest) error
	SaveChangeRequest(ctx context.Context, cr ChangeRequest, expectedVersion int64) error
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)

	InsertDecision(ctx context.Context, d ApprovalDecision) error
	// ResolveDecision writes the decision only if the stored row is still pending.
	ResolveDecision(ctx context.Context, d ApprovalDecision) error

	InsertDelegation(ctx context.Context, d Delegation) error
	SaveDelegation(ctx context.Context, d Delegation) error
}

// Store commits both the state change and its audit entries, or neither.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notification events.
const (
	EventSubjectApproved       = "config_record.approved"
	EventSubjectRejected       = "config_record.rejected"
	EventChangeRequestApproved = "change_request.approved"
	EventChangeRequestRejected = "change_request.rejected"
	EventChangeRequestCanceled = "change_request.canceled"
	EventDelegationCreated     = "delegation.created"
)

type Notification struct {
	Event      string    `json:"event"`
	Recipients []string  `json:"recipients"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers notifications. Delivery is never awaited for correctness.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Observer receives counters for transitions and optimistic-lock conflicts.
type Observer interface {
	Transition(entity, action string)
	Conflict(operation string)
}

type nopObserver struct{}

func (nopObserver) Transition(string, string) {}
func (nopObserver) Conflict(string)           {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

const DefaultConflictRetries = 3

// Deps are the collaborators shared by the lifecycle, change request and delegation services.
type Deps struct {
	Store    Store
	Audit    *audit.Service
	Notifier Notifier
	Observer Observer
	Policies Policies
	Logger   *slog.Logger

	// ConflictRetries bounds how often an operation is re-run after a version conflict.
	ConflictRetries int

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

// WithDefaults fills optional collaborators.
func (d Deps) WithDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ConflictRetries <= 0 {
		d.ConflictRetries = DefaultConflictRetries
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Audit == nil {
		d.Audit = audit.NewService(nil)
	}
	// Audit entries share the workflow clock so they line up with UpdatedAt.
	d.Audit = d.Audit.WithClock(d.Clock)
	if d.Policies.byClass == nil {
		d.Policies = MustDefaultPolicies()
	}
	return d
}

// Now returns the clock in UTC.
func (d Deps) Now() time.Time { return d.Clock().UTC() }

// Dispatch sends n after commit. Failures are logged, not returned.
func (d Deps) Dispatch(ctx context.Context, n Notification) {
	if len(n.Recipients) == 0 {
		return
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = d.Now()
	}
	if err := d.Notifier.Notify(ctx, n); err != nil {
		d.Logger.WarnContext(ctx, "notification failed", "event", n.Event, "err", err)
	}
}

// Retry re-runs fn while it fails with a version conflict, up to ConflictRetries attempts.
// A decision-already-made conflict is final and returned as is.
func (d Deps) Retry(ctx context.Context, operation string, fn func() error) error {
	attempts := d.ConflictRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || CodeOf(err) != CodeConflict {
			return err
		}
		d.Observer.Conflict(operation)
		d.Logger.DebugContext(ctx, "version conflict, retrying", "operation", operation, "attempt", i+1)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// Recipients dedupes and drops empty principals, keeping first-seen order.
func Recipients(principals ...string) []string {
	seen := make(map[string]struct{}, len(principals))
	out := make([]string, 0, len(principals))
	for _, p := range principals {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
