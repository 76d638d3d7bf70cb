// Package notify delivers workflow notifications. Delivery is best effort;
// callers dispatch after commit and only log failures.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hr-suite/internal/workflow"
)

const (
	DefaultStream = "hr:workflow:events"
	DefaultMaxLen = 100000
)

// RedisStream appends notifications to a Redis stream for downstream mailers.
type RedisStream struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStream(rdb redis.Cmdable, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Notify(ctx context.Context, n workflow.Notification) error {
	values, err := streamValues(n)
	if err != nil {
		return err
	}
	err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// streamValues flattens a notification into stream fields.
func streamValues(n workflow.Notification) (map[string]any, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return map[string]any{
		"event":       n.Event,
		"recipients":  strings.Join(n.Recipients, ","),
		"payload":     string(payload),
		"occurred_at": n.OccurredAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// Log writes notifications to the structured log. Used when no broker is configured.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log}
}

func (l *Log) Notify(ctx context.Context, n workflow.Notification) error {
	l.log.InfoContext(ctx, "notification",
		"event", n.Event,
		"recipients", n.Recipients,
		"occurred_at", n.OccurredAt,
	)
	return nil
}

// Multi fans out to every sink and joins their errors.
type Multi []workflow.Notifier

func (m Multi) Notify(ctx context.Context, n workflow.Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
