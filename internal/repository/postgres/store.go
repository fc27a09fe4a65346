package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jalanin/wallet-backend/internal/repository"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same repo code
// serves standalone calls and calls inside an atomic unit.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func newRepos(db DBTX) repository.Repos {
	return repository.Repos{
		Users:     &usersRepo{db},
		Balances:  &balancesRepo{db},
		Ledger:    &ledgerRepo{db},
		Incomes:   &incomesRepo{db},
		AuditLogs: &auditLogsRepo{db},
	}
}

// Repos returns the bundle bound to the connection pool.
func (s *Store) Repos() repository.Repos { return newRepos(s.pool) }

// WithTx runs fn inside one serializable database transaction. The Repos
// handed to fn are bound to that transaction, so a failure anywhere rolls
// back every write fn made.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	if err := fn(newRepos(tx)); err != nil {
		_ = tx.Rollback(ctx)
		if isSerializationFailure(err) {
			return repository.ErrConflict
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// isSerializationFailure reports SQLSTATE 40001, the retry signal two
// overlapping serializable transactions produce.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
