// Package memory provides thread-safe in-memory implementations of the repository
// contracts. They are used by tests and by local runs without POSTGRES_DSN.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/repository"
)

var (
	_ repository.UserRepository          = (*UserRepository)(nil)
	_ repository.RefreshTokenRepository  = (*RefreshTokenRepository)(nil)
	_ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)
)

// UserRepository stores users keyed by id with an email index.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

// NewUserRepository creates an empty user store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (m *UserRepository) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(user)
}

func (m *UserRepository) create(user *domain.User) error {
	if _, exists := m.byEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	now := m.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	m.byID[user.ID] = cloneUser(user)
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getByID(id)
}

func (m *UserRepository) getByID(id string) (*domain.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getByEmail(email)
}

func (m *UserRepository) getByEmail(email string) (*domain.User, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(m.byID[id]), nil
}

func (m *UserRepository) ListByOrganization(_ context.Context, orgID string) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listByOrganization(orgID)
}

func (m *UserRepository) listByOrganization(orgID string) ([]*domain.User, error) {
	users := []*domain.User{}
	for _, u := range m.byID {
		if u.OrganizationID == orgID {
			users = append(users, cloneUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *UserRepository) Update(_ context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(id, update)
}

func (m *UserRepository) update(id string, update domain.UserUpdate) (*domain.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.Email != nil && *update.Email != u.Email {
		if _, taken := m.byEmail[*update.Email]; taken {
			return nil, repository.ErrDuplicateEmail
		}
		delete(m.byEmail, u.Email)
		m.byEmail[*update.Email] = id
		u.Email = *update.Email
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Title != nil {
		u.Title = stringPtr(*update.Title)
	}
	if update.Phone != nil {
		u.Phone = stringPtr(*update.Phone)
	}
	if update.Timezone != nil {
		u.Timezone = stringPtr(*update.Timezone)
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.Permissions != nil {
		u.Permissions = append([]domain.Permission(nil), (*update.Permissions)...)
	}
	if update.IsActive != nil {
		u.IsActive = *update.IsActive
	}
	u.UpdatedAt = m.now()
	return cloneUser(u), nil
}

func (m *UserRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLastLogin(id, at)
}

func (m *UserRepository) updateLastLogin(id string, at time.Time) error {
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLogin = &at
	u.UpdatedAt = m.now()
	return nil
}

// RefreshTokenRepository stores refresh tokens keyed by id with a value index.
type RefreshTokenRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.RefreshToken
	byToken map[string]string
	now     func() time.Time
}

// NewRefreshTokenRepository creates an empty refresh token store.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{
		byID:    make(map[string]*domain.RefreshToken),
		byToken: make(map[string]string),
		now:     time.Now,
	}
}

func (m *RefreshTokenRepository) Create(_ context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(token)
}

func (m *RefreshTokenRepository) create(token *domain.RefreshToken) error {
	token.ID = uuid.NewString()
	token.CreatedAt = m.now()
	stored := *token
	m.byID[token.ID] = &stored
	m.byToken[token.Token] = token.ID
	return nil
}

func (m *RefreshTokenRepository) GetByToken(_ context.Context, value string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByToken(value)
}

func (m *RefreshTokenRepository) getByToken(value string) (*domain.RefreshToken, error) {
	id, ok := m.byToken[value]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *RefreshTokenRepository) GetByID(_ context.Context, id string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByID(id)
}

func (m *RefreshTokenRepository) getByID(id string) (*domain.RefreshToken, error) {
	t, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *RefreshTokenRepository) ListLiveByUser(_ context.Context, userID string) ([]*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLiveByUser(userID)
}

func (m *RefreshTokenRepository) listLiveByUser(userID string) ([]*domain.RefreshToken, error) {
	now := m.now()
	tokens := []*domain.RefreshToken{}
	for _, t := range m.byID {
		if t.UserID == userID && t.Live(now) {
			cp := *t
			tokens = append(tokens, &cp)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.After(tokens[j].CreatedAt) })
	return tokens, nil
}

func (m *RefreshTokenRepository) RevokeByID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeByID(id)
}

func (m *RefreshTokenRepository) revokeByID(id string) (bool, error) {
	t, ok := m.byID[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	now := m.now()
	t.RevokedAt = &now
	return true, nil
}

func (m *RefreshTokenRepository) RevokeByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeByUser(userID)
}

func (m *RefreshTokenRepository) revokeByUser(userID string) (int64, error) {
	now := m.now()
	var n int64
	for _, t := range m.byID {
		if t.UserID == userID && t.RevokedAt == nil {
			revokedAt := now
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (m *RefreshTokenRepository) RevokeExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeExpired()
}

func (m *RefreshTokenRepository) revokeExpired() (int64, error) {
	now := m.now()
	var n int64
	for _, t := range m.byID {
		if t.RevokedAt == nil && !t.ExpiresAt.After(now) {
			revokedAt := now
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

// PasswordResetRepository stores reset tickets by jti.
type PasswordResetRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.PasswordResetTicket
	now     func() time.Time
}

// NewPasswordResetRepository creates an empty ticket store.
func NewPasswordResetRepository() *PasswordResetRepository {
	return &PasswordResetRepository{tickets: make(map[string]*domain.PasswordResetTicket), now: time.Now}
}

func (m *PasswordResetRepository) Create(_ context.Context, ticket *domain.PasswordResetTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(ticket)
}

func (m *PasswordResetRepository) create(ticket *domain.PasswordResetTicket) error {
	ticket.CreatedAt = m.now()
	stored := *ticket
	m.tickets[ticket.ID] = &stored
	return nil
}

func (m *PasswordResetRepository) MarkUsed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markUsed(id)
}

func (m *PasswordResetRepository) markUsed(id string) (bool, error) {
	t, ok := m.tickets[id]
	now := m.now()
	if !ok || t.UsedAt != nil || !t.ExpiresAt.After(now) {
		return false, nil
	}
	t.UsedAt = &now
	return true, nil
}

func (m *PasswordResetRepository) InvalidateByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidateByUser(userID)
}

func (m *PasswordResetRepository) invalidateByUser(userID string) (int64, error) {
	now := m.now()
	var n int64
	for _, t := range m.tickets {
		if t.UserID == userID && t.UsedAt == nil {
			usedAt := now
			t.UsedAt = &usedAt
			n++
		}
	}
	return n, nil
}

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	cp.Permissions = append([]domain.Permission(nil), u.Permissions...)
	if u.LastLogin != nil {
		at := *u.LastLogin
		cp.LastLogin = &at
	}
	return &cp
}

func stringPtr(s string) *string {
	return &s
}
