package sqlstore

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects the SQL flavor. Queries are written with ? placeholders and
// rebound for Postgres.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the DB_DRIVER values.
func ParseDialect(v string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(v))) {
	case Postgres:
		return Postgres, nil
	case SQLite:
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported db driver %q", v)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLite stores timestamps as fixed-width UTC text so lexical order is time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC()
	if d == SQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

func (d Dialect) timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.timeArg(*t)
}

// dbTime scans TIMESTAMPTZ values (time.Time) and SQLite text timestamps alike.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into timestamp", src)
	}
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("sqlstore: parse timestamp %q: %w", s, err)
		}
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ driver.Valuer = jsonArg(nil)

// jsonArg sends JSON documents as text; Postgres casts text to JSONB on insert.
type jsonArg []byte

func (j jsonArg) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}
