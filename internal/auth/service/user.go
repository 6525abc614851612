package service

import (
	"context"
	"errors"
	"strings"

	"github.com/karinja/auth/internal/auth/domain"
	"github.com/karinja/auth/internal/auth/store"
	"github.com/karinja/auth/pkg/cryptox"
	"github.com/karinja/auth/pkg/idx"
)

var (
	ErrUsernameTaken = errors.New("username_taken")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrWeakPassword  = errors.New("weak_password")
	ErrBadUsername   = errors.New("bad_username")
)

const (
	minUsernameLength = 3
	minPasswordLength = 8
)

type UserService struct {
	Store store.Store
}

// Register creates a marketplace account. Role must be one of the two
// account types; the password is argon2id-hashed before it touches the
// store.
func (s *UserService) Register(ctx context.Context, username, password, role string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLength {
		return domain.User{}, ErrBadUsername
	}
	if len(password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}
	if role != domain.RoleJobSeeker && role != domain.RoleEmployer {
		return domain.User{}, ErrInvalidRole
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}

	return u, nil
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}
