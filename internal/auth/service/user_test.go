package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karinja/auth/internal/auth/domain"
	"github.com/karinja/auth/internal/auth/store/drivers/sqlite"
	"github.com/karinja/auth/pkg/cryptox"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()

	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	return &UserService{Store: st}
}

func TestRegisterHashesPassword(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "s3cret-password", domain.RoleEmployer)
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.Equal(t, domain.RoleEmployer, u.Role)

	stored, err := svc.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-password", stored.PasswordHash)
	require.NoError(t, cryptox.VerifyPassword("s3cret-password", stored.PasswordHash))
}

func TestRegisterValidation(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		role     string
		wantErr  error
	}{
		{"short username", "ab", "s3cret-password", domain.RoleJobSeeker, ErrBadUsername},
		{"short password", "alice", "short", domain.RoleJobSeeker, ErrWeakPassword},
		{"unknown role", "alice", "s3cret-password", "admin", ErrInvalidRole},
		{"empty role", "alice", "s3cret-password", "", ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.password, tt.role)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "s3cret-password", domain.RoleJobSeeker)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other-password", domain.RoleEmployer)
	require.ErrorIs(t, err, ErrUsernameTaken)
}
