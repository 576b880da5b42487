package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/internal/users"
	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/security"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "marketplace", ExpirationMinutes: 30}

func buildTestService(t *testing.T) (Service, *users.Repository, *clock.Manual) {
	t.Helper()
	hasher, err := security.NewHasher(config.PasswordConfig{
		ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32,
	})
	require.NoError(t, err)
	repo := users.NewRepository(dbtest.Open(t))
	clk := clock.NewManual(time.Now())
	svc, err := NewService(ServiceParams{UserRepo: repo, Hasher: hasher, JWTConfig: testJWT, Clock: clk})
	require.NoError(t, err)
	return svc, repo, clk
}

func TestRegisterIssuesUserToken(t *testing.T) {
	svc, _, _ := buildTestService(t)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "  Buyer@Example.com ",
		Username: "buyer",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", resp.User.Email)
	assert.Equal(t, enums.RoleUser, resp.User.Role)

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := buildTestService(t)
	ctx := context.Background()
	req := RegisterRequest{Email: "dup@example.com", Username: "dup", Password: "correct-horse"}

	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	req.Email = "DUP@example.com"
	_, err = svc.Register(ctx, req)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, _, _ := buildTestService(t)
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Username: "abc", Password: "short"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestLoginRecordsLastLogin(t *testing.T) {
	svc, repo, clk := buildTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{Email: "login@example.com", Username: "login", Password: "correct-horse"})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	resp, err := svc.Login(ctx, LoginRequest{Email: "LOGIN@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	user, err := repo.FindByID(ctx, registered.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)
	assert.WithinDuration(t, clk.Now(), *user.LastLoginAt, time.Second)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := buildTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterRequest{Email: "x@example.com", Username: "xxx", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Email: "x@example.com", Password: "wrong-horse"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}
