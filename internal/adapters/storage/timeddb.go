package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"
)

// SQLDB is the database interface used by all stores.
// Both *sql.DB and *TimedDB satisfy this interface.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

var _ SQLDB = (*sql.DB)(nil)

// DefaultSlowQuery is the threshold above which a call is logged at WARN.
const DefaultSlowQuery = 50 * time.Millisecond

// QueryObserver receives the duration of every database call.
// metrics.Recorder is the production implementation.
type QueryObserver interface {
	ObserveQuery(op string, d time.Duration)
}

// TimedDB reports every call to an observer, labelled by Op, and logs the
// slow ones.
type TimedDB struct {
	db       *sql.DB
	observer QueryObserver
	slow     time.Duration
}

var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps db. A nil observer only logs; slow <= 0 takes DefaultSlowQuery.
// PRE: db is a valid database connection
func NewTimedDB(db *sql.DB, observer QueryObserver, slow time.Duration) *TimedDB {
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &TimedDB{db: db, observer: observer, slow: slow}
}

// DB returns the wrapped pool for migrations and health checks.
func (t *TimedDB) DB() *sql.DB {
	return t.db
}

func (t *TimedDB) observe(op string, start time.Time) {
	elapsed := time.Since(start)
	if elapsed >= t.slow {
		slog.Warn("slow_query", "op", op, "duration_ms", elapsed.Milliseconds())
	} else {
		slog.Debug("query", "op", op, "duration_us", elapsed.Microseconds())
	}
	if t.observer != nil {
		t.observer.ObserveQuery(op, elapsed)
	}
}

// ExecContext runs a statement and reports its duration.
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer t.observe(Op(query), time.Now())
	return t.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query and reports the time to the first result set.
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer t.observe(Op(query), time.Now())
	return t.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query and reports its duration.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer t.observe(Op(query), time.Now())
	return t.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction; only the begin itself is timed.
func (t *TimedDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	defer t.observe("begin", time.Now())
	return t.db.BeginTx(ctx, opts)
}

// Op labels a statement as "<verb> <table>", e.g. "select chat_messages",
// keeping metric labels bounded by the schema. Statements without a
// recognisable table are labelled by their verb alone.
func Op(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return "unknown"
	}
	verb := fields[0]
	var marker string
	switch verb {
	case "select", "delete":
		marker = "from"
	case "insert", "replace":
		marker = "into"
	case "update":
		if len(fields) > 1 {
			return verb + " " + tableName(fields[1])
		}
		return verb
	default:
		return verb
	}
	for i := 1; i+1 < len(fields); i++ {
		if fields[i] == marker {
			return verb + " " + tableName(fields[i+1])
		}
	}
	return verb
}

func tableName(field string) string {
	if i := strings.IndexAny(field, "(,;"); i >= 0 {
		field = field[:i]
	}
	return strings.Trim(field, "`\"")
}
