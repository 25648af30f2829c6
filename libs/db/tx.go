package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type txKey struct{}

// TxOptions bound how long a transaction may wait on row locks and statements.
// Zero leaves the server default in place.
type TxOptions struct {
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// Querier is satisfied by both the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn inside a read-committed transaction carried on the context. Nested
// calls join the outer transaction.
func (p *Pool) WithTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := p.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if err := applyTimeouts(ctx, tx, opts); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Savepoint runs fn in a nested transaction so that its failure does not abort the
// enclosing one. Outside a transaction it behaves like WithTx.
func (p *Pool) Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	outer := TxFromContext(ctx)
	if outer == nil {
		return p.WithTx(ctx, TxOptions{}, fn)
	}
	sp, err := outer.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, sp)); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

// Q returns the transaction on ctx, or the pool.
func (p *Pool) Q(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return p.Pool
}

func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func applyTimeouts(ctx context.Context, tx pgx.Tx, opts TxOptions) error {
	if opts.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())); err != nil {
			return err
		}
	}
	if opts.StatementTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())); err != nil {
			return err
		}
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsExclusionViolation matches SQLSTATE 23P01 raised by EXCLUDE constraints.
func IsExclusionViolation(err error) bool {
	return pgCode(err) == "23P01"
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func IsCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

func IsInvalidText(err error) bool {
	return pgCode(err) == "22P02"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsTimeout reports lock, statement and serialization failures that are worth a
// bounded retry, plus context deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch pgCode(err) {
	case "55P03", "57014", "40001", "40P01":
		return true
	}
	return false
}
