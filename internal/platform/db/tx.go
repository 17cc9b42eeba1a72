package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
)

// TxBeginner is satisfied by *pgxpool.Pool and pgx.Tx.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes a function within a transaction using the ReadCommitted isolation level.
func WithTx(ctx context.Context, pool TxBeginner, fn func(pgx.Tx) error) error {
	return withTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithSerializableTx runs fn at SERIALIZABLE isolation and reruns the whole
// transaction, up to three more times, when postgres aborts it with a
// serialization failure. fn must therefore be safe to repeat.
func WithSerializableTx(ctx context.Context, pool TxBeginner, fn func(pgx.Tx) error) error {
	backoff := retry.WithMaxRetries(3, retry.WithJitter(10*time.Millisecond, retry.NewExponential(20*time.Millisecond)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := withTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if IsSerializationFailure(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func withTx(ctx context.Context, pool TxBeginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
