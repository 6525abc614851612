// Package store defines the persistence contracts for the auth service.
//
// The root Store interface exposes repository accessors plus transaction
// helpers. Implementations live under store/drivers.
package store

import (
	"context"
	"errors"

	"github.com/karinja/auth/internal/auth/domain"
)

// Common errors returned by store implementations.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root persistence interface. It can be backed by a plain
// connection or by an open transaction (see Tx).
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	// Tx starts a read/write transaction. The returned Tx exposes the same
	// repositories scoped to that transaction.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing on nil error and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// ApplyMigrations brings the schema up to date. Safe to call on every
	// startup.
	ApplyMigrations() error

	// Ping verifies the underlying connection is alive.
	Ping(ctx context.Context) error

	Close() error
}

// Tx is a transaction-scoped Store. Rollback is safe to call after Commit.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash looks a token up by its fingerprint. Revoked and
	// expired rows are still returned; callers decide how to treat them.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	RevokeRefreshToken(ctx context.Context, hash string) error
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error
	DeleteExpiredRefreshTokens(ctx context.Context) error
}
