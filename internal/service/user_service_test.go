package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/repository/memory"
	"github.com/spec-kit/auth-service/pkg/util/errorutil"
)

func seedUser(t *testing.T, users *memory.UserRepository, email, org string) *domain.User {
	t.Helper()
	u := &domain.User{
		OrganizationID: org,
		Email:          email,
		PasswordHash:   "hash",
		Name:           "User",
		Role:           domain.RoleClientUser,
		Permissions:    []domain.Permission{},
		IsActive:       true,
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestUserService_GetAndList(t *testing.T) {
	users := memory.NewUserRepository()
	svc := NewUserService(users, memory.NewRefreshTokenRepository(), zap.NewNop())
	ctx := context.Background()

	a := seedUser(t, users, "a@example.com", "org-1")
	seedUser(t, users, "b@example.com", "org-1")
	seedUser(t, users, "c@example.com", "org-2")

	profile, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", profile.Email)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	list, err := svc.ListByOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	empty, err := svc.ListByOrganization(ctx, "org-9")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUserService_UpdateProfile(t *testing.T) {
	users := memory.NewUserRepository()
	svc := NewUserService(users, memory.NewRefreshTokenRepository(), nil)
	ctx := context.Background()

	a := seedUser(t, users, "a@example.com", "org-1")
	seedUser(t, users, "b@example.com", "org-1")

	title := "CTO"
	name := "Alice"
	profile, err := svc.UpdateProfile(ctx, a.ID, ProfileUpdate{Name: &name, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)
	require.NotNil(t, profile.Title)
	assert.Equal(t, "CTO", *profile.Title)

	taken := "b@example.com"
	_, err = svc.UpdateProfile(ctx, a.ID, ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = svc.UpdateProfile(ctx, a.ID, ProfileUpdate{})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", errorutil.ToDomainError(err).Code)

	_, err = svc.UpdateProfile(ctx, "missing", ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_PermissionsAndRole(t *testing.T) {
	users := memory.NewUserRepository()
	svc := NewUserService(users, memory.NewRefreshTokenRepository(), nil)
	ctx := context.Background()
	a := seedUser(t, users, "a@example.com", "org-1")

	profile, err := svc.SetPermissions(ctx, a.ID, []domain.Permission{domain.PermissionManageUsers, domain.PermissionViewBids})
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Permission{domain.PermissionManageUsers, domain.PermissionViewBids}, profile.Permissions)

	_, err = svc.SetPermissions(ctx, a.ID, []domain.Permission{"DROP_TABLES"})
	assert.Error(t, err)

	profile, err = svc.SetRole(ctx, a.ID, domain.RoleClientAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleClientAdmin, profile.Role)

	_, err = svc.SetRole(ctx, a.ID, "OWNER")
	assert.Error(t, err)
}

func TestUserService_SetPermissionsStoresASet(t *testing.T) {
	users := memory.NewUserRepository()
	svc := NewUserService(users, memory.NewRefreshTokenRepository(), nil)
	ctx := context.Background()
	a := seedUser(t, users, "a@example.com", "org-1")

	profile, err := svc.SetPermissions(ctx, a.ID, []domain.Permission{domain.PermissionViewBids, domain.PermissionViewBids, domain.PermissionSubmitBid})
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{domain.PermissionViewBids, domain.PermissionSubmitBid}, profile.Permissions)

	stored, err := users.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{domain.PermissionViewBids, domain.PermissionSubmitBid}, stored.Permissions)

	_, err = svc.SetPermissions(ctx, a.ID, []domain.Permission{domain.PermissionViewBids, "NOT_A_PERMISSION"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", errorutil.ToDomainError(err).Code)
}

func TestUserService_DeactivateRevokesSessions(t *testing.T) {
	users := memory.NewUserRepository()
	refresh := memory.NewRefreshTokenRepository()
	svc := NewUserService(users, refresh, nil)
	ctx := context.Background()
	a := seedUser(t, users, "a@example.com", "org-1")

	require.NoError(t, refresh.Create(ctx, &domain.RefreshToken{UserID: a.ID, Token: "t1", ExpiresAt: time.Now().Add(time.Hour)}))

	profile, err := svc.Deactivate(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, profile.IsActive)

	live, err := refresh.ListLiveByUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	profile, err = svc.Activate(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, profile.IsActive)

	_, err = svc.Deactivate(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
