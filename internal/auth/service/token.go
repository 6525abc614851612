package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/karinja/auth/internal/auth/domain"
	"github.com/karinja/auth/internal/auth/store"
	"github.com/karinja/auth/pkg/cryptox"
	"github.com/karinja/auth/pkg/dpopx"
	"github.com/karinja/auth/pkg/idx"
	"github.com/karinja/auth/pkg/jwtx"
	"github.com/karinja/auth/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrInvalidProof       = errors.New("invalid_dpop_proof")
)

// TokenService issues key-bound access tokens and rotated refresh tokens.
// Every session is pinned to the device key presented at login: access
// tokens carry the key thumbprint in cnf.jkt, and refresh rotations demand
// a DPoP proof signed by that same key.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Proofs     *dpopx.Verifier
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Login verifies the credentials and issues a fresh session bound to
// clientJWK, the device public key the client registered for this login.
func (s *TokenService) Login(
	ctx context.Context,
	username, password string,
	clientJWK jwtx.JWK,
) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("password verification failed", "username", username)
		return nil, ErrInvalidCredentials
	}

	jkt, err := dpopx.Thumbprint(clientJWK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	accessToken, err := s.signAccess(u, jkt, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	jwkJSON, err := json.Marshal(clientJWK)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		JKT:       jkt,
		ClientJWK: string(jwkJSON),
		ExpiresAt: now.Add(s.RefreshTTL),
		Revoked:   false,
	}

	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		AccessTTL:    s.AccessTTL,
		RefreshTTL:   s.RefreshTTL,
		Role:         u.Role,
		UserID:       u.ID,
	}, nil
}

// Refresh rotates a session. The caller presents the opaque refresh token
// plus a DPoP proof for the refresh request itself; the proof must be signed
// by the device key the session was bound to at login. On success the old
// refresh token is revoked and a new one issued atomically.
//
// The returned pair omits Role and UserID: clients carry identity forward
// from the login response.
func (s *TokenService) Refresh(
	ctx context.Context,
	refreshOpaque string,
	proof, method, uri string,
) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if rt.Revoked || now.After(rt.ExpiresAt) {
		return nil, ErrInvalidRefresh
	}

	// Proof-of-possession: the proof must verify on its own terms and be
	// signed by the key registered for this session.
	verified, err := s.Proofs.Verify(proof, method, uri)
	if err != nil {
		l.Warn("refresh proof rejected", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	if verified.Thumbprint != rt.JKT {
		l.Warn("refresh proof key mismatch", "user_id", rt.UserID)
		return nil, ErrInvalidProof
	}

	u, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	accessToken, err := s.signAccess(u, rt.JKT, now)
	if err != nil {
		return nil, err
	}

	newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	newRT := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(newOpaque),
		JKT:       rt.JKT,
		ClientJWK: rt.ClientJWK,
		ExpiresAt: now.Add(s.RefreshTTL),
		Revoked:   false,
	}

	// Atomically: revoke old token and create new one
	if err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
			return err
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, newRT)
	}); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newOpaque,
		AccessTTL:    s.AccessTTL,
		RefreshTTL:   s.RefreshTTL,
	}, nil
}

// RevokeRefreshToken revokes a single refresh token (by its opaque value).
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshOpaque string) error {
	return s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(refreshOpaque))
}

// RevokeAllSessions revokes every active refresh token for a user.
func (s *TokenService) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
}

func (s *TokenService) signAccess(u domain.User, jkt string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(
		u.ID,       // subject
		u.Role,     // role
		u.Username, // username
		jkt,        // device key thumbprint (cnf.jkt)
		s.AccessTTL,
		s.Issuer,
		nil, // no audience restriction
		now,
	)
	// Use GetSigner() to distribute signing across multiple keys
	signer := s.KeyManager.GetSigner()
	return signer.Sign(claims)
}
