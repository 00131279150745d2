// Package issuestore implements the issue-side adapter: typed reads
// and mutations against the side-0 relational database, including the
// schema-extension tables the replicator owns (link rows, mirror
// activity log, changelists/fixes/filespecs mirrors, config,
// replications) and the invariant/permission checks applied during
// update.
package issuestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config describes how to reach and identify the side-0 database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	RID      string
	SID      string

	// MaxElapsed bounds the retry window for transient connection
	// errors; zero selects the package default.
	MaxElapsed time.Duration
}

// DSN builds a go-sql-driver/mysql data source name from Config,
// using the driver's own Config type rather than hand-assembling the
// connection string.
func (c Config) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// Store is the issue-side adapter: a thin, retried layer above
// database/sql that hides dialect quirks and schema-version upgrades
// from the replicator core. It never decides replication policy.
type Store struct {
	db  *sql.DB
	cfg Config

	mu         sync.Mutex
	maxElapsed time.Duration

	// pendingMail holds deferred mail-delivery shell invocations queued
	// during the current poll_start/poll_end critical section.
	pendingMail []func() error
}

const defaultMaxElapsed = 30 * time.Second

// Open connects to the side-0 database and runs the schema-extension
// upgrade if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("issuestore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("issuestore: ping: %w", err)
	}

	maxElapsed := cfg.MaxElapsed
	if maxElapsed == 0 {
		maxElapsed = defaultMaxElapsed
	}
	s := &Store{db: db, cfg: cfg, maxElapsed: maxElapsed}

	if err := s.upgradeSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// issuestoreTracer is the OTel tracer for SQL-level spans.
var issuestoreTracer = otel.Tracer("github.com/replicateio/tbridge/issuestore")

var issuestoreMetrics struct {
	retryCount metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/replicateio/tbridge/issuestore")
	issuestoreMetrics.retryCount, _ = m.Int64Counter("tbridge.issuestore.retry_count",
		metric.WithDescription("side-0 SQL operations retried due to transient errors"),
		metric.WithUnit("{retry}"),
	)
}

func (s *Store) newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	return bo
}

// isRetryableError classifies a SQL-level error as transient per the
// transport-error taxonomy; these are retried below the adapter
// boundary and are returned to the caller only once the retry window
// (MaxElapsed) is used up.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, substr := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(errStr, substr) {
			return true
		}
	}
	return false
}

func (s *Store) withRetry(ctx context.Context, op func() error) error {
	attempts := 0
	bo := s.newRetryBackoff()
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 {
		issuestoreMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}

func (s *Store) spanAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", "mysql"),
		attribute.String("tbridge.rid", s.cfg.RID),
		attribute.String("tbridge.sid", s.cfg.SID),
	}
}

func spanSQL(q string) string {
	if len(q) > 300 {
		return q[:300] + "…"
	}
	return q
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := issuestoreTracer.Start(ctx, "issuestore.exec",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(), attribute.String("db.statement", spanSQL(query)))...),
	)
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	endSpan(span, err)
	return result, err
}

func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := issuestoreTracer.Start(ctx, "issuestore.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(), attribute.String("db.statement", spanSQL(query)))...),
	)
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	endSpan(span, err)
	return rows, err
}

func (s *Store) queryRowContext(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	ctx, span := issuestoreTracer.Start(ctx, "issuestore.query_row",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(), attribute.String("db.statement", spanSQL(query)))...),
	)
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, args...)
		return scan(row)
	})
	endSpan(span, err)
	return err
}
