package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jalanin/wallet-backend/internal/models"
	"github.com/jalanin/wallet-backend/internal/repository"
)

type balancesRepo struct{ db DBTX }

func (r *balancesRepo) Get(ctx context.Context, userID string) (models.UserBalance, error) {
	var b models.UserBalance
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, email, amount, updated_at, synced
		   FROM user_balances
		  WHERE user_id=$1`,
		userID,
	).Scan(&b.ID, &b.UserID, &b.Email, &b.Amount, &b.UpdatedAt, &b.Synced)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.UserBalance{}, repository.ErrNotFound
	}
	return b, err
}

func (r *balancesRepo) Insert(ctx context.Context, b models.UserBalance) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO user_balances(user_id, email, amount, updated_at, synced)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING id`,
		b.UserID, b.Email, b.Amount, b.UpdatedAt, b.Synced,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, repository.ErrConflict
		}
		return 0, err
	}
	return id, nil
}

// SetAmount overwrites the stored amount and drops the synced flag. No
// arithmetic happens here; the caller computed amount inside its atomic
// unit.
func (r *balancesRepo) SetAmount(ctx context.Context, userID string, amount int64, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_balances
		    SET amount=$2, updated_at=$3, synced=false
		  WHERE user_id=$1`,
		userID, amount, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkSynced is conditional on updated_at: a mutation that committed after
// the mirror read the row bumps updated_at, the update matches nothing and
// the row stays unsynced for the next push. Zero rows affected is not an
// error.
func (r *balancesRepo) MarkSynced(ctx context.Context, userID string, updatedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_balances SET synced=true
		  WHERE user_id=$1 AND updated_at=$2 AND synced=false`,
		userID, updatedAt,
	)
	return err
}

func (r *balancesRepo) ListUnsynced(ctx context.Context) ([]models.UserBalance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, email, amount, updated_at, synced
		   FROM user_balances
		  WHERE synced=false`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserBalance
	for rows.Next() {
		var b models.UserBalance
		if err := rows.Scan(&b.ID, &b.UserID, &b.Email, &b.Amount, &b.UpdatedAt, &b.Synced); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
