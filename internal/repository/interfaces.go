package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jalanin/wallet-backend/internal/models"
)

// ErrNotFound is returned by Get-style queries when no row exists.
var ErrNotFound = errors.New("not found")

// ErrConflict reports that a concurrent transaction won a race for the same
// row: a unique violation on insert, or a serialization failure.
var ErrConflict = errors.New("conflict")

type Users interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// Balances is the access layer for wallet rows. It performs no arithmetic:
// SetAmount overwrites the stored amount with a value the caller computed
// inside an atomic unit.
type Balances interface {
	Get(ctx context.Context, userID string) (models.UserBalance, error)
	Insert(ctx context.Context, b models.UserBalance) (int64, error)
	SetAmount(ctx context.Context, userID string, amount int64, now time.Time) error
	// MarkSynced flips synced=true only while the row still carries
	// updatedAt. A row mutated after it was read stays unsynced so the
	// newer amount gets uploaded by a later push.
	MarkSynced(ctx context.Context, userID string, updatedAt time.Time) error
	ListUnsynced(ctx context.Context) ([]models.UserBalance, error)
}

// Ledger is append-only; entries never change after insert except for the
// synced flag.
type Ledger interface {
	Append(ctx context.Context, e models.LedgerEntry) (string, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
	ListUnsynced(ctx context.Context) ([]models.LedgerEntry, error)
	MarkSynced(ctx context.Context, ids []string) error
}

type Incomes interface {
	Create(ctx context.Context, rec models.IncomeRecord) (models.IncomeRecord, error)
	// ListUnreconciled returns COMPLETED rows with balance_synced=false.
	ListUnreconciled(ctx context.Context, recipientID string) ([]models.IncomeRecord, error)
	// ClaimForBalance flips balance_synced false→true and reports whether
	// this call won the flip. A false return means another sweep already
	// credited the row.
	ClaimForBalance(ctx context.Context, id string) (bool, error)
	ListUnsynced(ctx context.Context) ([]models.IncomeRecord, error)
	// MarkSynced flips synced=true only while the stored row still matches
	// rec's balance_synced and status; a row that changed since the read
	// stays unsynced.
	MarkSynced(ctx context.Context, rec models.IncomeRecord) error
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// Repos bundles the access layer. A bundle is bound either to the pool or,
// inside TxRunner.WithTx, to one open database transaction.
type Repos struct {
	Users     Users
	Balances  Balances
	Ledger    Ledger
	Incomes   Incomes
	AuditLogs AuditLogs
}

// TxRunner runs fn as one atomic unit: every call made through the Repos
// handed to fn commits or rolls back together.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(Repos) error) error
}
