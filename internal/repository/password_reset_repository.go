package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/auth-service/internal/domain"
)

// PasswordResetRepository records issued reset envelopes by jti so each can be consumed once.
type PasswordResetRepository interface {
	Create(ctx context.Context, ticket *domain.PasswordResetTicket) error
	// MarkUsed consumes the ticket only if it is unused and unexpired, reporting whether it did.
	MarkUsed(ctx context.Context, id string) (bool, error)
	// InvalidateByUser consumes every outstanding ticket of the user.
	InvalidateByUser(ctx context.Context, userID string) (int64, error)
}

type passwordResetRepository struct {
	db DBTX
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(db DBTX) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, ticket *domain.PasswordResetTicket) error {
	const query = `
        INSERT INTO password_reset_tokens (id, user_id, expires_at)
        VALUES ($1, $2, $3)
        RETURNING created_at`
	if err := r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.UserID,
		ticket.ExpiresAt,
	).Scan(&ticket.CreatedAt); err != nil {
		return fmt.Errorf("inserting password reset ticket: %w", err)
	}
	return nil
}

func (r *passwordResetRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	const query = `
        UPDATE password_reset_tokens SET used_at=NOW()
        WHERE id=$1 AND used_at IS NULL AND expires_at > NOW()`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("consuming password reset ticket: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *passwordResetRepository) InvalidateByUser(ctx context.Context, userID string) (int64, error) {
	const query = `
        UPDATE password_reset_tokens SET used_at=NOW()
        WHERE user_id=$1 AND used_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidating password reset tickets: %w", err)
	}
	return cmd.RowsAffected(), nil
}
