// Package sequence allocates the numeric part of change request numbers.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"hr-suite/internal/workflow"
	"hr-suite/pkg/utils"
)

// FormatRequestNumber renders PREFIX-YEAR-NNNNN. Values above 99999 keep all digits.
func FormatRequestNumber(prefix string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, n)
}

// ParseRequestNumber splits a number produced by FormatRequestNumber.
func ParseRequestNumber(v string) (prefix string, year int, n int64, err error) {
	i := strings.LastIndexByte(v, '-')
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("malformed request number %q", v)
	}
	j := strings.LastIndexByte(v[:i], '-')
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("malformed request number %q", v)
	}
	year, err = strconv.Atoi(v[j+1 : i])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed request number %q: %w", v, err)
	}
	n, err = strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed request number %q: %w", v, err)
	}
	return v[:j], year, n, nil
}

// Table allocates from the request_sequences table inside the caller's transaction,
// so a rolled back create also rolls back its number.
type Table struct{}

func (Table) Next(ctx context.Context, tx workflow.Tx, prefix string, year int) (int64, error) {
	return tx.NextSequence(ctx, prefix, year)
}

// FloorFunc returns the highest value already issued for prefix and year.
// It runs inside the allocating transaction.
type FloorFunc func(ctx context.Context, tx workflow.Tx, prefix string, year int) (int64, error)

// StoredFloor reads the floor from request numbers already persisted.
func StoredFloor(ctx context.Context, tx workflow.Tx, prefix string, year int) (int64, error) {
	return tx.MaxRequestSequence(ctx, prefix, year)
}

// Redis allocates from a Redis counter shared by every instance.
//
// Numbers taken by a create that later rolls back are not reused, so
// sequences may have gaps. They stay unique and increasing.
type Redis struct {
	rdb       redis.Scripter
	keyPrefix string
	floor     FloorFunc
}

const DefaultKeyPrefix = "hr:seq"

// NewRedis returns a sequencer. floor may be nil; it seeds a fresh counter
// from numbers already stored, e.g. when switching from the table backend.
func NewRedis(rdb redis.Scripter, keyPrefix string, floor FloorFunc) *Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Redis{rdb: rdb, keyPrefix: keyPrefix, floor: floor}
}

func (r *Redis) Key(prefix string, year int) string {
	return fmt.Sprintf("%s:%s:%d", r.keyPrefix, prefix, year)
}

func (r *Redis) Next(ctx context.Context, tx workflow.Tx, prefix string, year int) (int64, error) {
	var floor int64
	if r.floor != nil {
		f, err := r.floor(ctx, tx, prefix, year)
		if err != nil {
			return 0, fmt.Errorf("sequence floor: %w", err)
		}
		floor = f
	}
	n, err := utils.NextSequence(ctx, r.rdb, r.Key(prefix, year), floor)
	if err != nil {
		return 0, fmt.Errorf("redis sequence: %w", err)
	}
	return n, nil
}
