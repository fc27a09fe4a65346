package models

import "time"

type IncomeStatus string

const (
	IncomePending   IncomeStatus = "PENDING"
	IncomeCompleted IncomeStatus = "COMPLETED"
)

// IncomeRecord is money owed to an owner or driver from a completed rental
// payment. BalanceSynced goes false→true exactly once, when the amount has
// been credited to the recipient's wallet; reconciliation skips rows that
// are already true.
type IncomeRecord struct {
	ID            string       `json:"id"`
	RecipientID   string       `json:"recipient_id"`
	Amount        int64        `json:"amount"`
	Status        IncomeStatus `json:"status"`
	ServiceType   *ServiceType `json:"service_type,omitempty"`
	RentalID      *string      `json:"rental_id,omitempty"`
	VehicleID     *string      `json:"vehicle_id,omitempty"`
	Description   string       `json:"description"`
	BalanceSynced bool         `json:"balance_synced"`
	Synced        bool         `json:"synced"`
	CreatedAt     time.Time    `json:"created_at"`
}
