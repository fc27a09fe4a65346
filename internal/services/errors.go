package services

import "errors"

var (
	// ErrInvalidAmount and ErrInsufficientFunds are normal outcomes, not
	// faults; callers surface them as 4xx / user-facing messages.
	ErrInvalidAmount     = errors.New("amount must be > 0")
	ErrInsufficientFunds = errors.New("insufficient balance")

	ErrUserNotFound = errors.New("user not found")
	// ErrWalletNotFound: the operation requires an already-initialized
	// wallet (transfer never creates one implicitly).
	ErrWalletNotFound = errors.New("wallet not initialized")
	// ErrWalletVanished: the wallet row disappeared between initialization
	// and the atomic mutation. Invariant violation, not retried.
	ErrWalletVanished = errors.New("wallet row missing after initialization")

	ErrSelfTransfer = errors.New("cannot transfer to self")
)
