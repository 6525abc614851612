package domain

import "time"

// TokenPair is what the token endpoints hand back: the short-lived access
// token (JWT) and the opaque rotated refresh token. Role and UserID are only
// populated at login; refresh responses omit them.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Role         string
	UserID       string
}

// RefreshToken models the stored refresh token record in the DB. The opaque
// value itself is never persisted, only its fingerprint. JKT and ClientJWK
// pin the row to the device key registered at login so a refresh can be
// proof-checked against the same key.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	JKT       string // RFC 7638 thumbprint of the device public key
	ClientJWK string // device public key as JWK JSON
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
