package memory

import (
	"context"
	"time"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/repository"
)

var _ repository.Transactor = (*Transactor)(nil)

// Transactor serializes units of work over the in-memory stores. It holds every
// store lock for the duration of fn and restores a snapshot when fn fails.
// fn must only use the Stores it is given; calling the stores directly deadlocks.
type Transactor struct {
	users   *UserRepository
	refresh *RefreshTokenRepository
	resets  *PasswordResetRepository
}

// NewTransactor binds the stores that take part in a unit of work. resets may be nil.
func NewTransactor(users *UserRepository, refresh *RefreshTokenRepository, resets *PasswordResetRepository) *Transactor {
	return &Transactor{users: users, refresh: refresh, resets: resets}
}

func (t *Transactor) WithinTx(_ context.Context, fn func(repository.Stores) error) error {
	t.users.mu.Lock()
	defer t.users.mu.Unlock()
	t.refresh.mu.Lock()
	defer t.refresh.mu.Unlock()

	restores := []func(){t.users.snapshot(), t.refresh.snapshot()}
	stores := repository.Stores{
		Users:         userTx{t.users},
		RefreshTokens: refreshTx{t.refresh},
	}
	if t.resets != nil {
		t.resets.mu.Lock()
		defer t.resets.mu.Unlock()
		restores = append(restores, t.resets.snapshot())
		stores.PasswordResets = resetTx{t.resets}
	}

	committed := false
	defer func() {
		if !committed {
			for _, restore := range restores {
				restore()
			}
		}
	}()

	if err := fn(stores); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *UserRepository) snapshot() func() {
	byID := make(map[string]*domain.User, len(m.byID))
	for id, u := range m.byID {
		byID[id] = cloneUser(u)
	}
	byEmail := make(map[string]string, len(m.byEmail))
	for email, id := range m.byEmail {
		byEmail[email] = id
	}
	return func() {
		m.byID = byID
		m.byEmail = byEmail
	}
}

func (m *RefreshTokenRepository) snapshot() func() {
	byID := make(map[string]*domain.RefreshToken, len(m.byID))
	for id, t := range m.byID {
		cp := *t
		byID[id] = &cp
	}
	byToken := make(map[string]string, len(m.byToken))
	for value, id := range m.byToken {
		byToken[value] = id
	}
	return func() {
		m.byID = byID
		m.byToken = byToken
	}
}

func (m *PasswordResetRepository) snapshot() func() {
	tickets := make(map[string]*domain.PasswordResetTicket, len(m.tickets))
	for id, t := range m.tickets {
		cp := *t
		tickets[id] = &cp
	}
	return func() {
		m.tickets = tickets
	}
}

// userTx, refreshTx and resetTx run against stores whose locks the Transactor already holds.
type userTx struct{ m *UserRepository }

func (u userTx) Create(_ context.Context, user *domain.User) error { return u.m.create(user) }
func (u userTx) GetByID(_ context.Context, id string) (*domain.User, error) {
	return u.m.getByID(id)
}
func (u userTx) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return u.m.getByEmail(email)
}
func (u userTx) ListByOrganization(_ context.Context, orgID string) ([]*domain.User, error) {
	return u.m.listByOrganization(orgID)
}
func (u userTx) Update(_ context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	return u.m.update(id, update)
}
func (u userTx) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return u.m.updateLastLogin(id, at)
}

type refreshTx struct{ m *RefreshTokenRepository }

func (r refreshTx) Create(_ context.Context, token *domain.RefreshToken) error {
	return r.m.create(token)
}
func (r refreshTx) GetByToken(_ context.Context, value string) (*domain.RefreshToken, error) {
	return r.m.getByToken(value)
}
func (r refreshTx) GetByID(_ context.Context, id string) (*domain.RefreshToken, error) {
	return r.m.getByID(id)
}
func (r refreshTx) ListLiveByUser(_ context.Context, userID string) ([]*domain.RefreshToken, error) {
	return r.m.listLiveByUser(userID)
}
func (r refreshTx) RevokeByID(_ context.Context, id string) (bool, error) { return r.m.revokeByID(id) }
func (r refreshTx) RevokeByUser(_ context.Context, userID string) (int64, error) {
	return r.m.revokeByUser(userID)
}
func (r refreshTx) RevokeExpired(context.Context) (int64, error) { return r.m.revokeExpired() }

type resetTx struct{ m *PasswordResetRepository }

func (r resetTx) Create(_ context.Context, ticket *domain.PasswordResetTicket) error {
	return r.m.create(ticket)
}
func (r resetTx) MarkUsed(_ context.Context, id string) (bool, error) { return r.m.markUsed(id) }
func (r resetTx) InvalidateByUser(_ context.Context, userID string) (int64, error) {
	return r.m.invalidateByUser(userID)
}
