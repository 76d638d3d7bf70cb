package changerequest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hr-suite/internal/audit"
	"hr-suite/internal/storage/sqlstore"
	"hr-suite/internal/storage/sqlstore/sqlstoretest"
	"hr-suite/internal/workflow"
)

// losingStore makes the next losses parent saves fail as if another decider won.
type losingStore struct {
	*sqlstore.Store

	mu     sync.Mutex
	losses int
}

func (s *losingStore) setLosses(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.losses = n
}

func (s *losingStore) lose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.losses == 0 {
		return false
	}
	s.losses--
	return true
}

func (s *losingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		return fn(ctx, losingTx{Tx: tx, store: s})
	})
}

type losingTx struct {
	workflow.Tx
	store *losingStore
}

func (t losingTx) SaveChangeRequest(ctx context.Context, cr workflow.ChangeRequest, expectedVersion int64) error {
	if t.store.lose() {
		return workflow.Conflictf("change request %s was modified concurrently", cr.ID)
	}
	return t.Tx.SaveChangeRequest(ctx, cr, expectedVersion)
}

type conflictCounter struct {
	mu        sync.Mutex
	conflicts int
}

func (c *conflictCounter) Transition(string, string) {}

func (c *conflictCounter) Conflict(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflicts++
}

func newLosingService(t *testing.T) (*Service, *losingStore, *conflictCounter, *recordingNotifier) {
	t.Helper()
	st := &losingStore{Store: sqlstoretest.New(t)}
	obs := &conflictCounter{}
	n := &recordingNotifier{}
	svc := NewService(workflow.Deps{
		Store:           st,
		Audit:           audit.NewService(st.Store),
		Notifier:        n,
		Observer:        obs,
		ConflictRetries: 3,
		Clock:           func() time.Time { return now },
	}, nil)
	return svc, st, obs, n
}

func countActions(t *testing.T, st *sqlstore.Store, entityType, id, action string) int {
	t.Helper()
	entries, err := st.QueryAudit(context.Background(), audit.Filter{EntityType: entityType, EntityID: id})
	require.NoError(t, err)
	count := 0
	for _, e := range entries {
		if e.Action == action {
			count++
		}
	}
	return count
}

func TestDecide_FinalizesOnceAfterLostParentWrites(t *testing.T) {
	svc, st, obs, n := newLosingService(t)
	ctx := context.Background()
	cr, ids := underReview(t, svc, "a1", "a2", "a3")

	_, err := svc.Decide(ctx, ids[0], workflow.DecisionRejected, "budget", "a1")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, ids[1], workflow.DecisionApproved, "", "a2")
	require.NoError(t, err)

	st.setLosses(2)
	res, err := svc.Decide(ctx, ids[2], workflow.DecisionApproved, "", "a3")
	require.NoError(t, err)
	require.True(t, res.Finalized)
	require.Equal(t, workflow.StatusRejected, res.Request.Status)
	require.Equal(t, 2, obs.conflicts)

	got, err := svc.Get(ctx, cr.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, got.Status)
	require.Equal(t, res.Request.Version, got.Version)
	decisions := make([]workflow.Decision, 0, len(got.Decisions))
	for _, d := range got.Decisions {
		decisions = append(decisions, d.Decision)
	}
	require.Equal(t, []workflow.Decision{workflow.DecisionRejected, workflow.DecisionApproved, workflow.DecisionApproved}, decisions)

	require.Equal(t, 1, countActions(t, st.Store, workflow.EntityChangeRequest, cr.ID, workflow.ActionFinalize))
	require.Equal(t, 1, countActions(t, st.Store, workflow.EntityApproval, ids[2], workflow.ActionDecide))
	require.Equal(t, []string{workflow.EventChangeRequestRejected}, n.events())
}

func TestDecide_ConflictAfterRetriesExhaustedLeavesDecisionPending(t *testing.T) {
	svc, st, obs, n := newLosingService(t)
	ctx := context.Background()
	cr, ids := underReview(t, svc, "a1")
	before, err := svc.Get(ctx, cr.ID)
	require.NoError(t, err)

	st.setLosses(5)
	_, err = svc.Decide(ctx, ids[0], workflow.DecisionApproved, "", "a1")
	require.ErrorIs(t, err, workflow.ErrConflict)
	require.Equal(t, workflow.CodeConflict, workflow.CodeOf(err))
	require.Equal(t, 3, obs.conflicts)

	got, err := svc.Get(ctx, cr.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, got.Status)
	require.Equal(t, before.Version, got.Version)
	require.Len(t, got.Decisions, 1)
	require.Equal(t, workflow.DecisionPending, got.Decisions[0].Decision)
	require.Empty(t, got.Decisions[0].DecidedBy)
	require.Zero(t, countActions(t, st.Store, workflow.EntityApproval, ids[0], workflow.ActionDecide))
	require.Empty(t, n.events())

	// Once the contention clears the same decision goes through.
	st.setLosses(0)
	res, err := svc.Decide(ctx, ids[0], workflow.DecisionApproved, "", "a1")
	require.NoError(t, err)
	require.True(t, res.Finalized)
	require.Equal(t, workflow.StatusApproved, res.Request.Status)
}
