package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/domain"
)

func TestRefreshTokenRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs("user-1", "opaque-value", expires).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("rt-1", time.Now()))

	token := &domain.RefreshToken{UserID: "user-1", Token: "opaque-value", ExpiresAt: expires}
	require.NoError(t, NewRefreshTokenRepository(mock).Create(context.Background(), token))
	assert.Equal(t, "rt-1", token.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Create_Failure(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnError(errors.New("disk full"))

	err := NewRefreshTokenRepository(mock).Create(context.Background(), &domain.RefreshToken{UserID: "user-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRefreshTokenRepository_GetByToken(t *testing.T) {
	mock := newMockPool(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token=$1")).
		WithArgs("opaque-value").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked_at"}).
			AddRow("rt-1", "user-1", "opaque-value", now.Add(time.Hour), now, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token=$1")).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRefreshTokenRepository(mock)

	token, err := repo.GetByToken(context.Background(), "opaque-value")
	require.NoError(t, err)
	assert.Equal(t, "rt-1", token.ID)
	assert.Nil(t, token.RevokedAt)
	assert.True(t, token.Live(now))

	_, err = repo.GetByToken(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeByID_IsConditional(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "live token is revoked", affected: 1, want: true},
		{name: "already revoked token is untouched", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL")).
				WithArgs("rt-1").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			got, err := NewRefreshTokenRepository(mock).RevokeByID(context.Background(), "rt-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRefreshTokenRepository_RevokeByUser(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=$1 AND revoked_at IS NULL")).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := NewRefreshTokenRepository(mock).RevokeByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeExpired(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta("WHERE expires_at <= NOW() AND revoked_at IS NULL")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	n, err := NewRefreshTokenRepository(mock).RevokeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_ListLiveByUser(t *testing.T) {
	mock := newMockPool(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id=$1 AND revoked_at IS NULL AND expires_at > NOW()")).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked_at"}).
			AddRow("rt-2", "user-1", "v2", now.Add(time.Hour), now, nil).
			AddRow("rt-1", "user-1", "v1", now.Add(time.Hour), now.Add(-time.Minute), nil))

	tokens, err := NewRefreshTokenRepository(mock).ListLiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "rt-2", tokens[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_MarkUsedOnce(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE password_reset_tokens SET used_at=NOW()")).
		WithArgs("jti-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE password_reset_tokens SET used_at=NOW()")).
		WithArgs("jti-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPasswordResetRepository(mock)
	first, err := repo.MarkUsed(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkUsed(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO password_reset_tokens")).
		WithArgs("jti-1", "user-1", expires).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	ticket := &domain.PasswordResetTicket{ID: "jti-1", UserID: "user-1", ExpiresAt: expires}
	require.NoError(t, NewPasswordResetRepository(mock).Create(context.Background(), ticket))
	assert.False(t, ticket.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
