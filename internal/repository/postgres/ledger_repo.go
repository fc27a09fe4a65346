package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jalanin/wallet-backend/internal/models"
)

type ledgerRepo struct{ db DBTX }

func (r *ledgerRepo) Append(ctx context.Context, e models.LedgerEntry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ledger_entries (
		   id, user_id, counterparty_id, type, source, service_type,
		   amount, balance_before, balance_after,
		   rental_id, vehicle_id, description, created_at, synced
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.UserID, e.CounterpartyID, e.Type, e.Source, e.ServiceType,
		e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.RentalID, e.VehicleID, e.Description, e.CreatedAt, e.Synced,
	)
	return e.ID, err
}

func (r *ledgerRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, counterparty_id, type, source, service_type,
		        amount, balance_before, balance_after,
		        rental_id, vehicle_id, description, created_at, synced
		   FROM ledger_entries
		  WHERE user_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *ledgerRepo) ListUnsynced(ctx context.Context) ([]models.LedgerEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, counterparty_id, type, source, service_type,
		        amount, balance_before, balance_after,
		        rental_id, vehicle_id, description, created_at, synced
		   FROM ledger_entries
		  WHERE synced=false
		  ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *ledgerRepo) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE ledger_entries SET synced=true WHERE id = ANY($1)`, ids)
	return err
}

func scanEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.CounterpartyID, &e.Type, &e.Source, &e.ServiceType,
			&e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&e.RentalID, &e.VehicleID, &e.Description, &e.CreatedAt, &e.Synced,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
