package models

import (
	"errors"
	"strings"
	"time"
)

const (
	RolePassenger = "PASSENGER"
	RoleOwner     = "OWNER"
	RoleDriver    = "DRIVER"
	RoleAdmin     = "ADMIN"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Validate() error {
	if len(strings.TrimSpace(u.Username)) < 3 {
		return errors.New("username too short")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.New("invalid email")
	}
	switch u.Role {
	case "":
		u.Role = RolePassenger
	case RolePassenger, RoleOwner, RoleDriver, RoleAdmin:
	default:
		return errors.New("unknown role")
	}
	return nil
}
