package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hr-suite/internal/audit"
	"hr-suite/internal/storage/sqlstore"
	"hr-suite/internal/storage/sqlstore/sqlstoretest"
	"hr-suite/internal/workflow"
)

var now = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []workflow.Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, note workflow.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func newService(t *testing.T) (*Service, *sqlstore.Store, *recordingNotifier) {
	t.Helper()
	st := sqlstoretest.New(t)
	n := &recordingNotifier{}
	svc := NewService(workflow.Deps{
		Store:    st,
		Audit:    audit.NewService(st),
		Notifier: n,
		Clock:    func() time.Time { return now },
	})
	return svc, st, n
}

func auditActions(t *testing.T, st *sqlstore.Store, id string) []string {
	t.Helper()
	entries, err := st.QueryAudit(context.Background(), audit.Filter{EntityType: workflow.EntityConfigRecord, EntityID: id})
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Action)
	}
	return out
}

func TestApprove_OnceThenInvalidTransition(t *testing.T) {
	svc, st, n := newService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "pay_grade", json.RawMessage(`{"grade":"G1"}`), "alice")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, s.Status)
	require.Equal(t, int64(1), s.Version)

	approved, err := svc.Approve(ctx, s.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, approved.Status)
	require.Equal(t, "bob", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	require.Equal(t, int64(2), approved.Version)

	_, err = svc.Approve(ctx, s.ID, "bob")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = svc.Reject(ctx, s.ID, "bob")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)

	require.Equal(t, []string{"create", "approve"}, auditActions(t, st, s.ID))
	require.Len(t, n.sent, 1)
	require.Equal(t, workflow.EventSubjectApproved, n.sent[0].Event)
	require.Equal(t, []string{"alice"}, n.sent[0].Recipients)
}

func TestAuditEntries_UseWorkflowClock(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "pay_grade", json.RawMessage(`{"grade":"G4"}`), "alice")
	require.NoError(t, err)
	approved, err := svc.Approve(ctx, s.ID, "bob")
	require.NoError(t, err)

	entries, err := st.QueryAudit(ctx, audit.Filter{EntityType: workflow.EntityConfigRecord, EntityID: s.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.True(t, e.CreatedAt.Equal(now), "entry %s stamped %s", e.Action, e.CreatedAt)
	}
	require.True(t, entries[0].CreatedAt.Equal(approved.UpdatedAt))
}

func TestApprove_ConcurrentCallsSucceedExactlyOnce(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, "allowance", nil, "alice")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Approve(ctx, s.ID, "bob")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !errors.Is(err, workflow.ErrInvalidTransition) && !errors.Is(err, workflow.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
}

func TestUpdate_OnlyDraftIsEditable(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "pay_grade", json.RawMessage(`{"grade":"G1","min":100}`), "alice")
	require.NoError(t, err)

	updated, err := svc.Update(ctx, s.ID, json.RawMessage(`{"min":200,"grade":null}`), "alice")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, updated.Status)
	require.Equal(t, int64(2), updated.Version)
	require.JSONEq(t, `{"min":200}`, string(updated.Payload))

	_, err = svc.Reject(ctx, s.ID, "bob")
	require.NoError(t, err)

	_, err = svc.Update(ctx, s.ID, json.RawMessage(`{"min":300}`), "alice")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestUpdate_RejectsNonObjectPatch(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, "pay_grade", nil, "alice")
	require.NoError(t, err)

	_, err = svc.Update(ctx, s.ID, json.RawMessage(`[1]`), "alice")
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestUpdate_ReopensApprovedTaxRule(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "tax_rule", json.RawMessage(`{"rate":0.1}`), "alice")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, s.ID, "bob")
	require.NoError(t, err)

	reopened, err := svc.Update(ctx, s.ID, json.RawMessage(`{"rate":0.2}`), "carol")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, reopened.Status)
	require.Empty(t, reopened.ApprovedBy)
	require.Nil(t, reopened.ApprovedAt)
	require.JSONEq(t, `{"rate":0.2}`, string(reopened.Payload))

	require.Equal(t, []string{"create", "approve", "reopen", "update"}, auditActions(t, st, s.ID))

	// Non-reopen classes keep rejecting edits once approved.
	p, err := svc.Create(ctx, "pay_grade", nil, "alice")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, p.ID, "bob")
	require.NoError(t, err)
	_, err = svc.Update(ctx, p.ID, json.RawMessage(`{"x":1}`), "carol")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestDelete_FollowsClassPolicy(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		class   workflow.SubjectClass
		reach   func(id string) error
		allowed bool
	}{
		{"rejected_locks_out draft", "pay_grade", func(string) error { return nil }, true},
		{"rejected_locks_out approved", "pay_grade", func(id string) error { _, err := svc.Approve(ctx, id, "bob"); return err }, true},
		{"rejected_locks_out rejected", "pay_grade", func(id string) error { _, err := svc.Reject(ctx, id, "bob"); return err }, false},
		{"draft_only draft", "insurance_bracket", func(string) error { return nil }, true},
		{"draft_only approved", "insurance_bracket", func(id string) error { _, err := svc.Approve(ctx, id, "bob"); return err }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := svc.Create(ctx, tc.class, nil, "alice")
			require.NoError(t, err)
			require.NoError(t, tc.reach(s.ID))

			err = svc.Delete(ctx, s.ID, "alice")
			if !tc.allowed {
				require.ErrorIs(t, err, workflow.ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			_, err = svc.Get(ctx, s.ID)
			require.ErrorIs(t, err, workflow.ErrNotFound)
			actions := auditActions(t, st, s.ID)
			require.Equal(t, "delete", actions[len(actions)-1])
		})
	}
}

func TestCreate_UnknownClassIsConfigurationError(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Create(context.Background(), "mystery", nil, "alice")
	require.ErrorIs(t, err, workflow.ErrConfiguration)
	require.Equal(t, workflow.CodeConfiguration, workflow.CodeOf(err))
}

func TestApprove_MissingRecordIsNotFound(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Approve(context.Background(), "nope", "bob")
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

type failingAuditStore struct {
	workflow.Store
}

func (f failingAuditStore) InTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		return fn(ctx, failingAuditTx{tx})
	})
}

type failingAuditTx struct {
	workflow.Tx
}

func (failingAuditTx) AppendAudit(context.Context, audit.Entry) error {
	return errors.New("audit store down")
}

func TestApprove_AuditFailureRollsBackTransition(t *testing.T) {
	svc, st, n := newService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, "pay_grade", nil, "alice")
	require.NoError(t, err)

	broken := NewService(workflow.Deps{Store: failingAuditStore{st}, Audit: audit.NewService(st), Notifier: n})
	_, err = broken.Approve(ctx, s.ID, "bob")
	require.Error(t, err)

	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, got.Status)
	require.Equal(t, int64(1), got.Version)
	require.Empty(t, n.sent)
}

func TestApprove_NotificationFailureDoesNotFailTransition(t *testing.T) {
	svc, _, n := newService(t)
	n.err = errors.New("sink down")
	ctx := context.Background()
	s, err := svc.Create(ctx, "pay_grade", nil, "alice")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, s.ID, "bob")
	require.NoError(t, err)
}
