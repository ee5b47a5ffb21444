package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
)

// SQLSTATE codes the store maps or retries.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
)

type PgOptions struct {
	MaxRetries  int
	LockTimeout time.Duration
}

// PgStore implements Store on a pgx pool. Every unit of work runs at
// READ COMMITTED with explicit row locks taken by the repo methods.
type PgStore struct {
	pool   *pgxpool.Pool
	opts   PgOptions
	logger *slog.Logger
}

func NewPgStore(pool *pgxpool.Pool, opts PgOptions, logger *slog.Logger) *PgStore {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PgStore{pool: pool, opts: opts, logger: logger}
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PgStore) Close() {
	s.pool.Close()
}

// WithinTx runs fn in a transaction, retrying the whole unit of work when it
// fails on a serialization failure, deadlock, lock timeout or a concurrent
// insert of the same idempotency key.
func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	const op = "repository.WithinTx"

	var err error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt*attempt) * 25 * time.Millisecond
			s.logger.Warn("retrying unit of work", "attempt", attempt, "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return apperr.NewTransient(op, ctx.Err())
			case <-time.After(wait):
			}
		}

		err = s.runOnce(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return apperr.NewTransient(op, err)
}

func (s *PgStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	timeout := fmt.Sprintf("%dms", s.opts.LockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrDuplicateKey) || isUniqueViolation(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// notFound maps pgx.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

type scanner interface {
	Scan(dest ...any) error
}
