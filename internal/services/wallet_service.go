package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jalanin/wallet-backend/internal/metrics"
	"github.com/jalanin/wallet-backend/internal/models"
	"github.com/jalanin/wallet-backend/internal/repository"
	"github.com/jalanin/wallet-backend/internal/worker"
)

// InitialBalance seeds every new wallet. Demo money for the rental flows.
const InitialBalance int64 = 4_500_000

const mirrorPushTimeout = 30 * time.Second

// Pusher is the cloud mirror: best-effort upload of unsynced rows. Its
// failures never fail the wallet operation that triggered it.
type Pusher interface {
	PushBalances(ctx context.Context) error
	PushLedger(ctx context.Context) error
	PushIncomes(ctx context.Context) error
}

// WalletOp carries the parameters of a single debit or credit.
type WalletOp struct {
	UserID      string
	Amount      int64
	Source      models.EntrySource
	Description string
	RelatedUser *string
	ServiceType *models.ServiceType
	RentalID    *string
	VehicleID   *string
}

// TransferOp carries a paired debit+credit between two users.
type TransferOp struct {
	FromUserID  string
	ToUserID    string
	Amount      int64
	Source      models.EntrySource
	Description string
	ServiceType *models.ServiceType
	RentalID    *string
	VehicleID   *string
}

// WalletService owns every mutation of user_balances and every
// ledger_entries insert. Each operation re-reads state inside one
// serializable transaction; nothing trusts a balance read earlier.
type WalletService struct {
	repos  repository.Repos
	txr    repository.TxRunner
	wp     *worker.Pool
	pusher Pusher
	log    *slog.Logger
}

func NewWalletService(repos repository.Repos, txr repository.TxRunner, wp *worker.Pool, pusher Pusher, log *slog.Logger) *WalletService {
	return &WalletService{repos: repos, txr: txr, wp: wp, pusher: pusher, log: log}
}

// Initialize creates the wallet for userID if it does not exist yet, seeded
// with InitialBalance plus one CREDIT/INITIAL_BALANCE entry. An existing
// wallet is returned untouched, whatever its amount: re-running
// initialization (every login does) must never reset a balance the mirror
// might still restore.
func (s *WalletService) Initialize(ctx context.Context, userID string) (models.UserBalance, error) {
	if b, err := s.repos.Balances.Get(ctx, userID); err == nil {
		return b, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return models.UserBalance{}, err
	}

	var out models.UserBalance
	created := false
	err := s.txr.WithTx(ctx, func(r repository.Repos) error {
		// Second existence check inside the unit; a concurrent
		// initialization may have won the race since the read above.
		if b, err := r.Balances.Get(ctx, userID); err == nil {
			out = b
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		u, err := r.Users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		now := time.Now().UTC()
		b := models.UserBalance{
			UserID:    u.ID,
			Email:     u.Email,
			Amount:    InitialBalance,
			UpdatedAt: now,
		}
		id, err := r.Balances.Insert(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id

		if _, err := r.Ledger.Append(ctx, models.LedgerEntry{
			UserID:        u.ID,
			Type:          models.EntryCredit,
			Source:        models.SourceInitialBalance,
			Amount:        InitialBalance,
			BalanceBefore: 0,
			BalanceAfter:  InitialBalance,
			Description:   "initial wallet balance",
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		out = b
		created = true
		return nil
	})
	if err != nil {
		// The in-unit existence check runs on a snapshot and cannot see an
		// insert that committed after the unit began; the loser of two
		// first-time initializations surfaces here as a unique violation or
		// a serialization failure. The wallet exists now, so adopt it.
		if errors.Is(err, repository.ErrConflict) {
			return s.repos.Balances.Get(ctx, userID)
		}
		return models.UserBalance{}, err
	}

	if created {
		metrics.WalletOpsTotal.WithLabelValues("initialize").Inc()
		s.audit(userID, "wallet_initialized", map[string]any{"amount": out.Amount})
		s.mirrorSync(false)
	}
	return out, nil
}

// Debit decreases the user's balance. ErrInsufficientFunds aborts the unit
// with no changes written.
func (s *WalletService) Debit(ctx context.Context, op WalletOp) error {
	if op.Amount <= 0 {
		s.log.Warn("debit rejected", "user_id", op.UserID, "amount", op.Amount, "err", ErrInvalidAmount)
		return ErrInvalidAmount
	}
	if _, err := s.Initialize(ctx, op.UserID); err != nil {
		return err
	}

	err := s.txr.WithTx(ctx, func(r repository.Repos) error {
		return debitTx(ctx, r, op)
	})
	if err != nil {
		s.opFailed("debit", op, err)
		return err
	}

	metrics.WalletOpsTotal.WithLabelValues("debit").Inc()
	s.audit(op.UserID, "debit", map[string]any{"amount": op.Amount, "source": op.Source})
	s.mirrorSync(false)
	return nil
}

// Credit increases the user's balance. There is no upper bound check.
func (s *WalletService) Credit(ctx context.Context, op WalletOp) error {
	if op.Amount <= 0 {
		s.log.Warn("credit rejected", "user_id", op.UserID, "amount", op.Amount, "err", ErrInvalidAmount)
		return ErrInvalidAmount
	}
	if _, err := s.Initialize(ctx, op.UserID); err != nil {
		return err
	}

	err := s.txr.WithTx(ctx, func(r repository.Repos) error {
		return creditTx(ctx, r, op)
	})
	if err != nil {
		s.opFailed("credit", op, err)
		return err
	}

	metrics.WalletOpsTotal.WithLabelValues("credit").Inc()
	s.audit(op.UserID, "credit", map[string]any{"amount": op.Amount, "source": op.Source})
	s.mirrorSync(false)
	return nil
}

// Transfer moves amount from one wallet to another as one atomic unit,
// writing a DEBIT entry for the sender and a CREDIT entry for the receiver.
// Both wallets must already exist.
func (s *WalletService) Transfer(ctx context.Context, op TransferOp) error {
	if op.Amount <= 0 {
		s.log.Warn("transfer rejected", "from", op.FromUserID, "amount", op.Amount, "err", ErrInvalidAmount)
		return ErrInvalidAmount
	}
	if op.FromUserID == op.ToUserID {
		return ErrSelfTransfer
	}

	// Early reject on a stale read; the authoritative check happens again
	// inside the transaction.
	from, err := s.repos.Balances.Get(ctx, op.FromUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrWalletNotFound
		}
		return err
	}
	if _, err := s.repos.Balances.Get(ctx, op.ToUserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrWalletNotFound
		}
		return err
	}
	if from.Amount < op.Amount {
		metrics.InsufficientFunds.Inc()
		s.log.Info("transfer rejected: insufficient balance",
			"from", op.FromUserID, "amount", op.Amount, "balance", from.Amount)
		return ErrInsufficientFunds
	}

	err = s.txr.WithTx(ctx, func(r repository.Repos) error {
		fromB, err := r.Balances.Get(ctx, op.FromUserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		toB, err := r.Balances.Get(ctx, op.ToUserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		if fromB.Amount < op.Amount {
			return ErrInsufficientFunds
		}

		now := time.Now().UTC()
		if err := r.Balances.SetAmount(ctx, op.FromUserID, fromB.Amount-op.Amount, now); err != nil {
			return err
		}
		if err := r.Balances.SetAmount(ctx, op.ToUserID, toB.Amount+op.Amount, now); err != nil {
			return err
		}

		// Paired entries share amount, source, description and correlation
		// ids; each names the other side as counterparty.
		if _, err := r.Ledger.Append(ctx, models.LedgerEntry{
			UserID:         op.FromUserID,
			CounterpartyID: &op.ToUserID,
			Type:           models.EntryDebit,
			Source:         op.Source,
			ServiceType:    op.ServiceType,
			Amount:         op.Amount,
			BalanceBefore:  fromB.Amount,
			BalanceAfter:   fromB.Amount - op.Amount,
			RentalID:       op.RentalID,
			VehicleID:      op.VehicleID,
			Description:    op.Description,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		_, err = r.Ledger.Append(ctx, models.LedgerEntry{
			UserID:         op.ToUserID,
			CounterpartyID: &op.FromUserID,
			Type:           models.EntryCredit,
			Source:         op.Source,
			ServiceType:    op.ServiceType,
			Amount:         op.Amount,
			BalanceBefore:  toB.Amount,
			BalanceAfter:   toB.Amount + op.Amount,
			RentalID:       op.RentalID,
			VehicleID:      op.VehicleID,
			Description:    op.Description,
			CreatedAt:      now,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			metrics.InsufficientFunds.Inc()
		} else {
			metrics.WalletOpsFailed.Inc()
		}
		s.log.Warn("transfer failed", "from", op.FromUserID, "to", op.ToUserID, "amount", op.Amount, "err", err)
		return err
	}

	metrics.WalletOpsTotal.WithLabelValues("transfer").Inc()
	s.audit(op.FromUserID, "transfer", map[string]any{
		"to": op.ToUserID, "amount": op.Amount, "source": op.Source,
	})
	s.mirrorSync(false)
	return nil
}

// Balance returns the wallet row, initializing it on first access.
func (s *WalletService) Balance(ctx context.Context, userID string) (models.UserBalance, error) {
	return s.Initialize(ctx, userID)
}

func (s *WalletService) History(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	return s.repos.Ledger.ListByUser(ctx, userID, limit, offset)
}

// ----------------- atomic-unit helpers -----------------

// debitTx runs the authoritative check-and-write inside an already-open
// atomic unit. The balance is re-read here; values read before the unit
// started are only good for early rejects.
func debitTx(ctx context.Context, r repository.Repos, op WalletOp) error {
	b, err := r.Balances.Get(ctx, op.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrWalletVanished
		}
		return err
	}
	if b.Amount < op.Amount {
		return ErrInsufficientFunds
	}
	return applyTx(ctx, r, op, models.EntryDebit, b.Amount, b.Amount-op.Amount)
}

// creditTx is debitTx without the funds check; credits cannot fail for
// insufficient funds. Shared with the income reconciliation sweep.
func creditTx(ctx context.Context, r repository.Repos, op WalletOp) error {
	b, err := r.Balances.Get(ctx, op.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrWalletVanished
		}
		return err
	}
	return applyTx(ctx, r, op, models.EntryCredit, b.Amount, b.Amount+op.Amount)
}

func applyTx(ctx context.Context, r repository.Repos, op WalletOp, typ models.EntryType, before, after int64) error {
	now := time.Now().UTC()
	if err := r.Balances.SetAmount(ctx, op.UserID, after, now); err != nil {
		return err
	}
	_, err := r.Ledger.Append(ctx, models.LedgerEntry{
		UserID:         op.UserID,
		CounterpartyID: op.RelatedUser,
		Type:           typ,
		Source:         op.Source,
		ServiceType:    op.ServiceType,
		Amount:         op.Amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		RentalID:       op.RentalID,
		VehicleID:      op.VehicleID,
		Description:    op.Description,
		CreatedAt:      now,
	})
	return err
}

// ----------------- side channels -----------------

func (s *WalletService) opFailed(op string, w WalletOp, err error) {
	if errors.Is(err, ErrInsufficientFunds) {
		metrics.InsufficientFunds.Inc()
		s.log.Info("rejected: insufficient balance", "op", op, "user_id", w.UserID, "amount", w.Amount)
		return
	}
	metrics.WalletOpsFailed.Inc()
	s.log.Error("wallet operation failed", "op", op, "user_id", w.UserID, "amount", w.Amount, "err", err)
}

func (s *WalletService) audit(entityID, action string, details map[string]any) {
	_ = s.repos.AuditLogs.Create(context.Background(), models.AuditLog{
		EntityType: "wallet",
		EntityID:   &entityID,
		Action:     action,
		Details:    details,
	})
}

// mirrorSync pushes unsynced rows to the cloud mirror off the request path.
// Failures are logged and counted, never returned: local state stays the
// source of truth until a later push succeeds.
func (s *WalletService) mirrorSync(includeIncomes bool) {
	s.wp.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorPushTimeout)
		defer cancel()
		if err := s.pusher.PushBalances(ctx); err != nil {
			metrics.MirrorPushFailed.Inc()
			s.log.Warn("mirror push balances", "err", err)
		}
		if err := s.pusher.PushLedger(ctx); err != nil {
			metrics.MirrorPushFailed.Inc()
			s.log.Warn("mirror push ledger", "err", err)
		}
		if includeIncomes {
			if err := s.pusher.PushIncomes(ctx); err != nil {
				metrics.MirrorPushFailed.Inc()
				s.log.Warn("mirror push incomes", "err", err)
			}
		}
	})
}
