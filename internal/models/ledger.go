package models

import "time"

type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// EntrySource classifies where the money movement came from.
type EntrySource string

const (
	SourcePaymentFromRenter EntrySource = "PAYMENT_FROM_RENTER"
	SourcePaymentFromOwner  EntrySource = "PAYMENT_FROM_OWNER"
	SourceDriverServiceFee  EntrySource = "DRIVER_SERVICE_FEE"
	SourceDeliveryFee       EntrySource = "DELIVERY_FEE"
	SourceRentalPayment     EntrySource = "RENTAL_PAYMENT"
	SourceInitialBalance    EntrySource = "INITIAL_BALANCE"
)

// ServiceType qualifies driver-related entries.
type ServiceType string

const (
	ServicePersonalDriver ServiceType = "PERSONAL_VEHICLE_DRIVER"
	ServiceDeliveryDriver ServiceType = "DELIVERY_ONLY_DRIVER"
	ServiceRentalDriver   ServiceType = "RENTAL_ASSIGNED_DRIVER"
)

// LedgerEntry is one immutable row of the audit log. Exactly one row is
// written per balance mutation (a transfer writes one per side). Only the
// Synced flag may change after insert.
type LedgerEntry struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	CounterpartyID *string      `json:"counterparty_id,omitempty"`
	Type           EntryType    `json:"type"`
	Source         EntrySource  `json:"source"`
	ServiceType    *ServiceType `json:"service_type,omitempty"`
	Amount         int64        `json:"amount"`
	BalanceBefore  int64        `json:"balance_before"`
	BalanceAfter   int64        `json:"balance_after"`
	RentalID       *string      `json:"rental_id,omitempty"`
	VehicleID      *string      `json:"vehicle_id,omitempty"`
	Description    string       `json:"description"`
	CreatedAt      time.Time    `json:"created_at"`
	Synced         bool         `json:"synced"`
}
