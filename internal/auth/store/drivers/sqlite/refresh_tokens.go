package sqlite

import (
	"context"
	"time"

	"github.com/karinja/auth/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens
			(id, user_id, token_hash, jkt, client_jwk, expires_at, revoked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.JKT, t.ClientJWK, t.ExpiresAt.UTC(), t.Revoked, now, now,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, jkt, client_jwk, expires_at, revoked, created_at, updated_at
		FROM refresh_tokens WHERE token_hash = ?`, hash,
	)

	var t domain.RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.JKT, &t.ClientJWK,
		&t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = ?
		WHERE token_hash = ?`, time.Now().UTC(), hash,
	)
	return err
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = ?
		WHERE user_id = ? AND revoked = FALSE`, time.Now().UTC(), userID,
	)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked = TRUE`,
		time.Now().UTC(),
	)
	return err
}
