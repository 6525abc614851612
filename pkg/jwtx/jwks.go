package jwtx

import (
	"crypto/ecdsa"
	"encoding/base64"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
// Only ECDSA P-256 keys are issued by this service.
type JWK struct {
	Kty string `json:"kty"`           // key type: "EC"
	Use string `json:"use,omitempty"` // what we use it for: "sig"
	Alg string `json:"alg,omitempty"` // algorithm: "ES256"
	Kid string `json:"kid,omitempty"` // key ID

	Crv string `json:"crv,omitempty"` // curve: "P-256"
	X   string `json:"x,omitempty"`   // base64url x-coordinate
	Y   string `json:"y,omitempty"`   // base64url y-coordinate
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewES256JWK builds a JWK for an ECDSA P-256 public key.
func NewES256JWK(kid, use, alg string, pub *ecdsa.PublicKey) JWK {
	// P-256 coordinates are 32 bytes each; pad for consistent encoding.
	xBytes := pub.X.Bytes()
	yBytes := pub.Y.Bytes()

	x := make([]byte, 32)
	y := make([]byte, 32)
	copy(x[32-len(xBytes):], xBytes)
	copy(y[32-len(yBytes):], yBytes)

	return JWK{
		Kty: "EC",
		Use: use,
		Alg: alg,
		Kid: kid,
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}
