package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// ProfileUpdate carries editable profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	Email    *string
	Name     *string
	Title    *string
	Phone    *string
	Timezone *string
}

// UserService exposes account administration.
type UserService struct {
	users   repository.UserRepository
	refresh repository.RefreshTokenRepository
	logger  *zap.Logger
}

// NewUserService creates the service.
func NewUserService(users repository.UserRepository, refresh repository.RefreshTokenRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, refresh: refresh, logger: logger}
}

// Get returns the public profile of a user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.UserProfile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapErr("get user", err)
	}
	return user.Profile(), nil
}

// ListByOrganization returns the profiles of every user in the organization.
func (s *UserService) ListByOrganization(ctx context.Context, orgID string) ([]*domain.UserProfile, error) {
	users, err := s.users.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	profiles := make([]*domain.UserProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// UpdateProfile applies a partial profile update.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*domain.UserProfile, error) {
	update := domain.UserUpdate{
		Email:    in.Email,
		Name:     in.Name,
		Title:    in.Title,
		Phone:    in.Phone,
		Timezone: in.Timezone,
	}
	if update.Empty() {
		return nil, errorutil.NewValidationError("no fields to update", nil)
	}
	return s.apply(ctx, "update profile", id, update)
}

// SetPermissions replaces the permission set of the user.
func (s *UserService) SetPermissions(ctx context.Context, id string, perms []domain.Permission) (*domain.UserProfile, error) {
	set, err := domain.PermissionSet(perms)
	if err != nil {
		return nil, errorutil.NewValidationError("invalid permission", map[string]any{"permissions": err.Error()})
	}
	return s.apply(ctx, "set permissions", id, domain.UserUpdate{Permissions: &set})
}

// SetRole changes the role of the user.
func (s *UserService) SetRole(ctx context.Context, id string, role domain.Role) (*domain.UserProfile, error) {
	if !role.Valid() {
		return nil, errorutil.NewValidationError("invalid role", map[string]any{"role": role})
	}
	return s.apply(ctx, "set role", id, domain.UserUpdate{Role: &role})
}

// Activate re-enables a deactivated account.
func (s *UserService) Activate(ctx context.Context, id string) (*domain.UserProfile, error) {
	active := true
	return s.apply(ctx, "activate user", id, domain.UserUpdate{IsActive: &active})
}

// Deactivate disables the account and revokes all of its refresh tokens.
func (s *UserService) Deactivate(ctx context.Context, id string) (*domain.UserProfile, error) {
	active := false
	profile, err := s.apply(ctx, "deactivate user", id, domain.UserUpdate{IsActive: &active})
	if err != nil {
		return nil, err
	}
	n, err := s.refresh.RevokeByUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deactivate user: revoke sessions: %w", err)
	}
	s.logger.Info("user deactivated", zap.String("user_id", id), zap.Int64("revoked_tokens", n))
	return profile, nil
}

func (s *UserService) apply(ctx context.Context, op, id string, update domain.UserUpdate) (*domain.UserProfile, error) {
	user, err := s.users.Update(ctx, id, update)
	if err != nil {
		return nil, s.mapErr(op, err)
	}
	return user.Profile(), nil
}

func (s *UserService) mapErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrDuplicateEmail
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
