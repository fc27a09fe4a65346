package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalanin/wallet-backend/internal/models"
)

func TestRegisterAndLogin(t *testing.T) {
	store := newMemStore()
	svc := NewUserService(store.repos().Users)
	ctx := context.Background()

	u, err := svc.Register(ctx, "  budi  ", "Budi@Example.com", "s3cret", models.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, "budi", u.Username)
	assert.Equal(t, "budi@example.com", u.Email)
	assert.Equal(t, models.RoleOwner, u.Role)

	got, err := svc.Login(ctx, "budi@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Login(ctx, "budi@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	store := newMemStore()
	svc := NewUserService(store.repos().Users)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ab", "a@b.com", "pw", "")
	assert.Error(t, err, "username too short")

	_, err = svc.Register(ctx, "valid", "not-an-email", "pw", "")
	assert.Error(t, err)

	_, err = svc.Register(ctx, "valid", "a@b.com", "pw", "SUPERUSER")
	assert.Error(t, err, "unknown role")

	u, err := svc.Register(ctx, "valid", "a@b.com", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, models.RolePassenger, u.Role, "role defaults to passenger")
}
