// Package repository holds the credential and refresh-token store contracts
// together with their PostgreSQL implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail is returned when the unique email constraint is violated.
	ErrDuplicateEmail = errors.New("repository: email already exists")
)

// DBTX is the subset of pgxpool.Pool the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Stores groups the repositories that take part in one unit of work.
// PasswordResets is nil when reset tickets are not tracked.
type Stores struct {
	Users          UserRepository
	RefreshTokens  RefreshTokenRepository
	PasswordResets PasswordResetRepository
}

// Transactor runs fn against repositories bound to a single transaction.
// Every write made through the Stores is rolled back when fn returns an error.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgTransactor struct {
	db TxBeginner
}

// NewTransactor returns a Transactor that opens a pgx transaction per call.
func NewTransactor(db TxBeginner) Transactor {
	return &pgTransactor{db: db}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(Stores) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(Stores{
		Users:          NewUserRepository(tx),
		RefreshTokens:  NewRefreshTokenRepository(tx),
		PasswordResets: NewPasswordResetRepository(tx),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
