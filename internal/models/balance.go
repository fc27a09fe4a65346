package models

import "time"

// UserBalance is the single wallet row per user. Amount is in whole currency
// units. Synced drops to false on every local mutation and is raised again
// by the cloud mirror once the row has been uploaded.
type UserBalance struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
	Synced    bool      `json:"synced"`
}
