package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karinja/auth/internal/auth/domain"
	"github.com/karinja/auth/internal/auth/store"
	"github.com/karinja/auth/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "auth.db")
	s, err := NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestUser(t *testing.T, s *Store) domain.User {
	t.Helper()

	u := domain.User{
		ID:           idx.New().String(),
		Username:     "user-" + idx.New().String(),
		PasswordHash: "$argon2id$fake",
		Role:         domain.RoleJobSeeker,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser(t, s)

	byID, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Username, byID.Username)
	require.Equal(t, u.Role, byID.Role)
	require.False(t, byID.CreatedAt.IsZero())

	byName, err := s.Users().GetUserByUsername(ctx, u.Username)
	require.NoError(t, err)
	require.Equal(t, u.ID, byName.ID)
}

func TestUsersNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Users().GetUserByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsersDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser(t, s)

	dup := domain.User{
		ID:           idx.New().String(),
		Username:     u.Username,
		PasswordHash: "$argon2id$fake",
		Role:         domain.RoleEmployer,
	}
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
}

func TestRefreshTokensLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser(t, s)

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: "fp-1",
		JKT:       "thumb-1",
		ClientJWK: `{"kty":"EC"}`,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, rt))

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "fp-1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)
	require.Equal(t, "thumb-1", got.JKT)
	require.False(t, got.Revoked)

	require.NoError(t, s.RefreshTokens().RevokeRefreshToken(ctx, "fp-1"))

	got, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, got.Revoked)
}

func TestRefreshTokensRevokeAllForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser(t, s)
	other := newTestUser(t, s)

	for i, userID := range []string{u.ID, u.ID, other.ID} {
		rt := domain.RefreshToken{
			ID:        idx.New().String(),
			UserID:    userID,
			TokenHash: "fp-" + string(rune('a'+i)),
			JKT:       "thumb",
			ClientJWK: `{"kty":"EC"}`,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, rt))
	}

	require.NoError(t, s.RefreshTokens().RevokeAllUserRefreshTokens(ctx, u.ID))

	for _, hash := range []string{"fp-a", "fp-b"} {
		got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		require.NoError(t, err)
		require.True(t, got.Revoked)
	}

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "fp-c")
	require.NoError(t, err)
	require.False(t, got.Revoked)
}

func TestRefreshTokensDeleteExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser(t, s)

	expired := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: "fp-expired",
		JKT:       "thumb",
		ClientJWK: `{"kty":"EC"}`,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	live := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: "fp-live",
		JKT:       "thumb",
		ClientJWK: `{"kty":"EC"}`,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, expired))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, live))

	require.NoError(t, s.RefreshTokens().DeleteExpiredRefreshTokens(ctx))

	_, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "fp-expired")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "fp-live")
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		u := domain.User{
			ID:           idx.New().String(),
			Username:     "txuser",
			PasswordHash: "$argon2id$fake",
			Role:         domain.RoleJobSeeker,
		}
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetUserByUsername(ctx, "txuser")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, domain.User{
			ID:           idx.New().String(),
			Username:     "committed",
			PasswordHash: "$argon2id$fake",
			Role:         domain.RoleEmployer,
		})
	})
	require.NoError(t, err)

	u, err := s.Users().GetUserByUsername(ctx, "committed")
	require.NoError(t, err)
	require.Equal(t, domain.RoleEmployer, u.Role)
}
