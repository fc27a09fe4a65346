package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jalanin/wallet-backend/internal/metrics"
	"github.com/jalanin/wallet-backend/internal/models"
	"github.com/jalanin/wallet-backend/internal/repository"
)

// errAlreadyReconciled aborts a per-row unit when a concurrent sweep won the
// claim on the same income row. Not an error for the sweep, just a skip.
var errAlreadyReconciled = errors.New("income row already reconciled")

// IncomeService converts completed income records into wallet credits
// exactly once. The balance_synced flag on each row is the idempotency
// boundary: it flips false→true in the same atomic unit as the credit, so a
// crash, a re-download from the mirror, or a concurrent sweep can never
// credit the same row twice.
type IncomeService struct {
	repos  repository.Repos
	txr    repository.TxRunner
	wallet *WalletService
	log    *slog.Logger
}

func NewIncomeService(repos repository.Repos, txr repository.TxRunner, wallet *WalletService, log *slog.Logger) *IncomeService {
	return &IncomeService{repos: repos, txr: txr, wallet: wallet, log: log}
}

// Record stores an income row produced by a completed payment. The row stays
// out of the wallet until Reconcile picks it up.
func (s *IncomeService) Record(ctx context.Context, rec models.IncomeRecord) (models.IncomeRecord, error) {
	if rec.Amount <= 0 {
		return models.IncomeRecord{}, ErrInvalidAmount
	}
	if _, err := s.repos.Users.GetByID(ctx, rec.RecipientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.IncomeRecord{}, ErrUserNotFound
		}
		return models.IncomeRecord{}, err
	}
	if rec.Status == "" {
		rec.Status = models.IncomePending
	}
	return s.repos.Incomes.Create(ctx, rec)
}

// Reconcile sweeps the recipient's unprocessed COMPLETED income rows into
// wallet credits. Each row is its own atomic unit; one bad row is logged and
// skipped (its flag stays false, so a later sweep retries it) and the sweep
// continues. Returns how many rows were credited.
func (s *IncomeService) Reconcile(ctx context.Context, recipientID string) (int, error) {
	rows, err := s.repos.Incomes.ListUnreconciled(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		s.log.Debug("no income to reconcile", "recipient_id", recipientID)
		return 0, nil
	}

	u, err := s.repos.Users.GetByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	if _, err := s.wallet.Initialize(ctx, recipientID); err != nil {
		return 0, err
	}

	source := incomeSource(u.Role)
	processed := 0
	for _, rec := range rows {
		op := WalletOp{
			UserID:      recipientID,
			Amount:      rec.Amount,
			Source:      source,
			Description: incomeDescription(rec),
			ServiceType: rec.ServiceType,
			RentalID:    rec.RentalID,
			VehicleID:   rec.VehicleID,
		}
		err := s.txr.WithTx(ctx, func(r repository.Repos) error {
			claimed, err := r.Incomes.ClaimForBalance(ctx, rec.ID)
			if err != nil {
				return err
			}
			if !claimed {
				return errAlreadyReconciled
			}
			return creditTx(ctx, r, op)
		})
		switch {
		case errors.Is(err, errAlreadyReconciled):
			continue
		case err != nil:
			s.log.Error("income reconcile failed", "income_id", rec.ID, "recipient_id", recipientID, "err", err)
			continue
		}
		processed++
		metrics.IncomeReconciled.Inc()
	}

	if processed > 0 {
		s.log.Info("income reconciled", "recipient_id", recipientID, "rows", processed)
		// Propagate updated balances and balance_synced flags outward.
		s.wallet.mirrorSync(true)
	}
	return processed, nil
}

func incomeSource(role string) models.EntrySource {
	if role == models.RoleDriver {
		return models.SourceDriverServiceFee
	}
	return models.SourcePaymentFromRenter
}

func incomeDescription(rec models.IncomeRecord) string {
	if rec.Description != "" {
		return rec.Description
	}
	return fmt.Sprintf("income %s", rec.ID)
}
