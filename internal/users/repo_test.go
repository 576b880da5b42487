package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateUserDTO{Email: "buyer@example.com", Username: "buyer", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, enums.RoleUser, created.Role)

	byEmail, err := repo.FindByEmail(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	mixedCase, err := repo.FindByEmail(ctx, "  Buyer@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, mixedCase.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUpdates(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "a@example.com", Username: "a", PasswordHash: "old"})
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, at))
	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "new"))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLoginAt)
	assert.True(t, at.Equal(reloaded.LastLoginAt.UTC()))
	assert.Equal(t, "new", reloaded.PasswordHash)
}
