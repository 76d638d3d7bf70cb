package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"hr-suite/internal/workflow"
)

func TestStreamValues(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	v, err := streamValues(workflow.Notification{
		Event:      workflow.EventChangeRequestApproved,
		Recipients: []string{"rita", "a1"},
		Payload:    map[string]string{"id": "cr1"},
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if v["event"] != "change_request.approved" || v["recipients"] != "rita,a1" {
		t.Fatalf("unexpected values: %v", v)
	}
	if v["payload"] != `{"id":"cr1"}` {
		t.Fatalf("unexpected payload: %v", v["payload"])
	}
	if v["occurred_at"] != "2024-01-01T12:00:00Z" {
		t.Fatalf("unexpected time: %v", v["occurred_at"])
	}
}

func TestStreamValues_UnmarshalablePayload(t *testing.T) {
	if _, err := streamValues(workflow.Notification{Payload: make(chan int)}); err == nil {
		t.Fatalf("expected marshal error")
	}
}

type sinkFunc func(context.Context, workflow.Notification) error

func (f sinkFunc) Notify(ctx context.Context, n workflow.Notification) error { return f(ctx, n) }

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	m := Multi{
		sinkFunc(func(context.Context, workflow.Notification) error { calls++; return boom }),
		sinkFunc(func(context.Context, workflow.Notification) error { calls++; return nil }),
	}
	err := m.Notify(context.Background(), workflow.Notification{Event: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both sinks called, got %d", calls)
	}
}

func TestLog_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := l.Notify(context.Background(), workflow.Notification{Event: "delegation.created", Recipients: []string{"bob"}}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(buf.String(), `"event":"delegation.created"`) {
		t.Fatalf("expected event in log, got %s", buf.String())
	}
}
