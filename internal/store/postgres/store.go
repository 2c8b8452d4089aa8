// Package postgres persists the pipeline in PostgreSQL. Every method joins the
// transaction carried in ctx (see RunInTx); conditional writes report lost
// races as sentinel.ErrInvalidState.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	dErrors "promisetracker/pkg/domain-errors"
	txcontext "promisetracker/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE Postgres reports for a unique constraint.
const uniqueViolation = "23505"

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

func New(db *sql.DB) *Store {
	return &Store{db: db, timeout: defaultTxTimeout}
}

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in a database transaction stored in the callback context.
// Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.Exec(ctx, s.db)
}

// forUpdate appends a row lock when ctx carries a transaction.
func forUpdate(ctx context.Context, query string) string {
	if _, ok := txcontext.From(ctx); ok {
		return query + " FOR UPDATE"
	}
	return query
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == uniqueViolation
	}
	return false
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// stringArray returns a non-nil array so empty sets store as '{}'.
func stringArray(values []string) any {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}

type scanner interface {
	Scan(dest ...any) error
}
