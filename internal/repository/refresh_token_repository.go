package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/auth-service/internal/domain"
)

// RefreshTokenRepository is the refresh token store.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByToken(ctx context.Context, value string) (*domain.RefreshToken, error)
	GetByID(ctx context.Context, id string) (*domain.RefreshToken, error)
	// ListLiveByUser returns unrevoked, unexpired tokens of the user.
	ListLiveByUser(ctx context.Context, userID string) ([]*domain.RefreshToken, error)
	// RevokeByID revokes the token only if it is not yet revoked and reports whether a row changed.
	RevokeByID(ctx context.Context, id string) (bool, error)
	// RevokeByUser revokes every unrevoked token of the user and returns how many rows changed.
	RevokeByUser(ctx context.Context, userID string) (int64, error)
	// RevokeExpired marks expired, unrevoked tokens as revoked and returns how many rows changed.
	RevokeExpired(ctx context.Context) (int64, error)
}

type refreshTokenRepository struct {
	db DBTX
}

// NewRefreshTokenRepository returns a Postgres-backed implementation.
func NewRefreshTokenRepository(db DBTX) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

const refreshTokenColumns = `id, user_id, token, expires_at, created_at, revoked_at`

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (user_id, token, expires_at)
        VALUES ($1, $2, $3)
        RETURNING id, created_at`

	if err := r.db.QueryRow(ctx, query,
		token.UserID,
		token.Token,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt); err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

func (r *refreshTokenRepository) GetByToken(ctx context.Context, value string) (*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token=$1`
	var t domain.RefreshToken
	if err := r.db.QueryRow(ctx, query, value).Scan(
		&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &t.RevokedAt,
	); err != nil {
		return nil, wrapNotFound(err, "querying refresh token")
	}
	return &t, nil
}

func (r *refreshTokenRepository) GetByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id=$1`
	var t domain.RefreshToken
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &t.RevokedAt,
	); err != nil {
		return nil, wrapNotFound(err, "querying refresh token by id")
	}
	return &t, nil
}

func (r *refreshTokenRepository) ListLiveByUser(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens
        WHERE user_id=$1 AND revoked_at IS NULL AND expires_at > NOW()
        ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []*domain.RefreshToken{}
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &t.RevokedAt); err != nil {
			return nil, fmt.Errorf("scanning refresh token row: %w", err)
		}
		tokens = append(tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refresh token rows: %w", err)
	}
	return tokens, nil
}

func (r *refreshTokenRepository) RevokeByID(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL`

	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("revoking refresh token: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *refreshTokenRepository) RevokeByUser(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=$1 AND revoked_at IS NULL`

	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user refresh tokens: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *refreshTokenRepository) RevokeExpired(ctx context.Context) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at=NOW() WHERE expires_at <= NOW() AND revoked_at IS NULL`

	cmd, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("revoking expired refresh tokens: %w", err)
	}
	return cmd.RowsAffected(), nil
}
