package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/pkg/util/errorutil"
)

var errConnReset = errors.New("connection reset")

// flakyTx injects store failures into the units of work of an inner Transactor.
type flakyTx struct {
	inner          repository.Transactor
	revokeFailures int
	updateFailures int
}

func (f *flakyTx) WithinTx(ctx context.Context, fn func(repository.Stores) error) error {
	return f.inner.WithinTx(ctx, func(st repository.Stores) error {
		st.Users = flakyUsers{UserRepository: st.Users, tx: f}
		st.RefreshTokens = flakyRefresh{RefreshTokenRepository: st.RefreshTokens, tx: f}
		return fn(st)
	})
}

type flakyUsers struct {
	repository.UserRepository
	tx *flakyTx
}

func (u flakyUsers) Update(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	if u.tx.updateFailures > 0 {
		u.tx.updateFailures--
		return nil, errConnReset
	}
	return u.UserRepository.Update(ctx, id, update)
}

type flakyRefresh struct {
	repository.RefreshTokenRepository
	tx *flakyTx
}

func (r flakyRefresh) RevokeByUser(ctx context.Context, userID string) (int64, error) {
	if r.tx.revokeFailures > 0 {
		r.tx.revokeFailures--
		return 0, errConnReset
	}
	return r.RefreshTokenRepository.RevokeByUser(ctx, userID)
}

func TestChangePassword_FailedRewriteLeavesCredentialsUntouched(t *testing.T) {
	tests := []struct {
		name  string
		flaky flakyTx
	}{
		{name: "session revocation fails", flaky: flakyTx{revokeFailures: 1}},
		{name: "hash update fails after revocation", flaky: flakyTx{updateFailures: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			ctx := context.Background()
			registered := f.register(t, "alice@example.com", "old-pw")
			login, err := f.svc.Login(ctx, "alice@example.com", "old-pw")
			require.NoError(t, err)

			flaky := tt.flaky
			flaky.inner = f.deps.Tx
			svc := f.rebuild(t, func(d *SessionDependencies) { d.Tx = &flaky })

			err = svc.ChangePassword(ctx, registered.ID, "old-pw", "new-pw")
			require.ErrorIs(t, err, errConnReset)

			_, err = f.svc.Login(ctx, "alice@example.com", "new-pw")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			_, err = f.svc.RefreshToken(ctx, login.Tokens.RefreshToken)
			assert.NoError(t, err, "sessions stay live when the password did not change")

			// The store recovered: the caller can simply retry with the old password.
			require.NoError(t, svc.ChangePassword(ctx, registered.ID, "old-pw", "new-pw"))
			sessions, err := f.svc.ListSessions(ctx, registered.ID)
			require.NoError(t, err)
			assert.Empty(t, sessions)
			_, err = f.svc.Login(ctx, "alice@example.com", "new-pw")
			assert.NoError(t, err)
		})
	}
}

func TestChangePassword_RejectsConcurrentlyChangedHash(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	registered := f.register(t, "alice@example.com", "old-pw")

	// Another change lands between the password check and the rewrite.
	racing := &racingTx{inner: f.deps.Tx, before: func() {
		hash := "rotated-elsewhere"
		_, err := f.users.Update(ctx, registered.ID, domain.UserUpdate{PasswordHash: &hash})
		require.NoError(t, err)
	}}
	svc := f.rebuild(t, func(d *SessionDependencies) { d.Tx = racing })

	err := svc.ChangePassword(ctx, registered.ID, "old-pw", "new-pw")
	assert.ErrorIs(t, err, ErrIncorrectCurrentPassword)

	stored, err := f.users.GetByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated-elsewhere", stored.PasswordHash)
}

type racingTx struct {
	inner  repository.Transactor
	before func()
}

func (r *racingTx) WithinTx(ctx context.Context, fn func(repository.Stores) error) error {
	r.before()
	return r.inner.WithinTx(ctx, fn)
}

func TestConfirmResetPassword_FailedRewriteKeepsTicket(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "old-pw")
	login, err := f.svc.Login(ctx, "alice@example.com", "old-pw")
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, "alice@example.com"))
	token := resetTokenFor(t, f)

	flaky := &flakyTx{inner: f.deps.Tx, updateFailures: 1}
	svc := f.rebuild(t, func(d *SessionDependencies) { d.Tx = flaky })

	err = svc.ConfirmResetPassword(ctx, token, "new-pw")
	require.ErrorIs(t, err, errConnReset)
	_, err = f.svc.RefreshToken(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err, "revocation rolled back with the failed rewrite")

	require.NoError(t, svc.ConfirmResetPassword(ctx, token, "new-pw"))
	_, err = f.svc.Login(ctx, "alice@example.com", "new-pw")
	assert.NoError(t, err)

	err = svc.ConfirmResetPassword(ctx, token, "newer-pw")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestConfirmResetPassword_RejectedPasswordKeepsTicket(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "old-pw")

	require.NoError(t, f.svc.ResetPassword(ctx, "alice@example.com"))
	token := resetTokenFor(t, f)

	err := f.svc.ConfirmResetPassword(ctx, token, "")
	require.Error(t, err)
	assert.Equal(t, errorutil.CodeValidation, errorutil.ToDomainError(err).Code)

	assert.NoError(t, f.svc.ConfirmResetPassword(ctx, token, "new-pw"))
}

func TestRegister_StoresPermissionSet(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	profile, err := f.svc.Register(ctx, RegisterInput{
		OrganizationID: "org-1",
		Email:          "alice@example.com",
		Password:       "pw",
		Name:           "Alice",
		Role:           domain.RoleClientUser,
		Permissions:    []domain.Permission{domain.PermissionViewBids, domain.PermissionViewBids, domain.PermissionSubmitBid},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{domain.PermissionViewBids, domain.PermissionSubmitBid}, profile.Permissions)

	stored, err := f.users.GetByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{domain.PermissionViewBids, domain.PermissionSubmitBid}, stored.Permissions)

	_, err = f.svc.Register(ctx, RegisterInput{
		Email:       "bob@example.com",
		Password:    "pw",
		Name:        "Bob",
		Role:        domain.RoleClientUser,
		Permissions: []domain.Permission{domain.PermissionViewBids, "NOT_A_PERMISSION"},
	})
	require.Error(t, err)
	assert.Equal(t, errorutil.CodeValidation, errorutil.ToDomainError(err).Code)
	_, err = f.users.GetByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// gatedResets blocks ticket writes until release is closed.
type gatedResets struct {
	repository.PasswordResetRepository
	release chan struct{}
	creates atomic.Int32
}

func (g *gatedResets) Create(ctx context.Context, ticket *domain.PasswordResetTicket) error {
	<-g.release
	g.creates.Add(1)
	return g.PasswordResetRepository.Create(ctx, ticket)
}

// countingUsers counts email lookups.
type countingUsers struct {
	repository.UserRepository
	lookups atomic.Int32
}

func (c *countingUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	c.lookups.Add(1)
	return c.UserRepository.GetByEmail(ctx, email)
}

func TestResetPassword_KnownAndUnknownEmailsDoTheSameWorkBeforeResponding(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "pw")

	gate := &gatedResets{PasswordResetRepository: f.resets, release: make(chan struct{})}
	users := &countingUsers{UserRepository: f.users}
	svc := f.rebuild(t, func(d *SessionDependencies) {
		d.PasswordReset = gate
		d.Users = users
	})
	release := sync.OnceFunc(func() { close(gate.release) })
	t.Cleanup(release)

	for _, email := range []string{"nobody@example.com", "alice@example.com"} {
		done := make(chan error, 1)
		go func() { done <- svc.ResetPassword(ctx, email) }()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("reset for %s waited on the ticket store", email)
		}
	}
	assert.Equal(t, int32(2), users.lookups.Load())
	assert.Equal(t, int32(0), gate.creates.Load(), "no ticket write on the response path")

	release()
	svc.Wait()
	assert.Equal(t, int32(1), gate.creates.Load(), "only the known email gets a ticket")

	requested := f.dispatcher.ofType(events.EventPasswordResetRequested)
	require.Len(t, requested, 1)
	token := requested[0].Payload.(events.PasswordResetRequestedPayload).ResetToken
	assert.NoError(t, svc.ConfirmResetPassword(ctx, token, "new-pw"), "ticket persisted before delivery")
}
