package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jalanin/wallet-backend/internal/models"
)

type incomesRepo struct{ db DBTX }

func (r *incomesRepo) Create(ctx context.Context, rec models.IncomeRecord) (models.IncomeRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO income_records (
		   id, recipient_id, amount, status, service_type,
		   rental_id, vehicle_id, description, balance_synced, synced
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING created_at`,
		rec.ID, rec.RecipientID, rec.Amount, rec.Status, rec.ServiceType,
		rec.RentalID, rec.VehicleID, rec.Description, rec.BalanceSynced, rec.Synced,
	).Scan(&rec.CreatedAt)
	return rec, err
}

func (r *incomesRepo) ListUnreconciled(ctx context.Context, recipientID string) ([]models.IncomeRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, recipient_id, amount, status, service_type,
		        rental_id, vehicle_id, description, balance_synced, synced, created_at
		   FROM income_records
		  WHERE recipient_id=$1 AND status=$2 AND balance_synced=false
		  ORDER BY created_at`,
		recipientID, models.IncomeCompleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIncomes(rows)
}

// ClaimForBalance wins only if the row has not been reconciled yet. Run it
// in the same transaction as the credit so a crash cannot separate the two.
func (r *incomesRepo) ClaimForBalance(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE income_records
		    SET balance_synced=true, synced=false
		  WHERE id=$1 AND balance_synced=false`,
		id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *incomesRepo) ListUnsynced(ctx context.Context) ([]models.IncomeRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, recipient_id, amount, status, service_type,
		        rental_id, vehicle_id, description, balance_synced, synced, created_at
		   FROM income_records
		  WHERE synced=false
		  ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIncomes(rows)
}

// MarkSynced matches on balance_synced and status so a row a reconciliation
// sweep claimed after the mirror read it stays unsynced; the claimed state
// gets uploaded on the next push instead of being hidden.
func (r *incomesRepo) MarkSynced(ctx context.Context, rec models.IncomeRecord) error {
	_, err := r.db.Exec(ctx,
		`UPDATE income_records SET synced=true
		  WHERE id=$1 AND balance_synced=$2 AND status=$3 AND synced=false`,
		rec.ID, rec.BalanceSynced, rec.Status)
	return err
}

func scanIncomes(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.IncomeRecord, error) {
	var out []models.IncomeRecord
	for rows.Next() {
		var rec models.IncomeRecord
		if err := rows.Scan(
			&rec.ID, &rec.RecipientID, &rec.Amount, &rec.Status, &rec.ServiceType,
			&rec.RentalID, &rec.VehicleID, &rec.Description, &rec.BalanceSynced, &rec.Synced, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
