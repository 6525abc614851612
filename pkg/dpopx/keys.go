package dpopx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/karinja/auth/pkg/jwtx"
)

// GenerateKey creates a fresh ECDSA P-256 device key pair.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("dpopx: key generation failed: %w", err)
	}
	return key, nil
}

// PrivateJWK is the JSON Web Key form of an EC P-256 private key. It is what
// clients persist between sessions; the public half is always derived from
// it rather than stored separately.
type PrivateJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d"`
}

// ExportPrivateJWK converts a P-256 private key to its JWK form.
func ExportPrivateJWK(key *ecdsa.PrivateKey) PrivateJWK {
	return PrivateJWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(padCoord(key.PublicKey.X)),
		Y:   base64.RawURLEncoding.EncodeToString(padCoord(key.PublicKey.Y)),
		D:   base64.RawURLEncoding.EncodeToString(padCoord(key.D)),
	}
}

// Key reconstructs the ECDSA private key from its JWK form.
func (j PrivateJWK) Key() (*ecdsa.PrivateKey, error) {
	if j.Kty != "EC" || j.Crv != "P-256" {
		return nil, errors.New("dpopx: not an EC P-256 private JWK")
	}

	xb, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, fmt.Errorf("dpopx: decode x: %w", err)
	}
	yb, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return nil, fmt.Errorf("dpopx: decode y: %w", err)
	}
	db, err := base64.RawURLEncoding.DecodeString(j.D)
	if err != nil {
		return nil, fmt.Errorf("dpopx: decode d: %w", err)
	}

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		},
		D: new(big.Int).SetBytes(db),
	}, nil
}

// PublicJWK derives the public JWK from a private JWK by dropping the
// private scalar. The coordinates are carried over unchanged so the derived
// key always matches the stored private key.
func (j PrivateJWK) PublicJWK() jwtx.JWK {
	return jwtx.JWK{
		Kty: j.Kty,
		Crv: j.Crv,
		X:   j.X,
		Y:   j.Y,
	}
}

// PublicJWKFromKey converts a P-256 public key to a bare JWK suitable for
// embedding in a proof header.
func PublicJWKFromKey(pub *ecdsa.PublicKey) jwtx.JWK {
	return jwtx.JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(padCoord(pub.X)),
		Y:   base64.RawURLEncoding.EncodeToString(padCoord(pub.Y)),
	}
}

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of an EC public JWK,
// base64url encoded. The hash input uses the fixed lexicographic member
// order {crv, kty, x, y} with no whitespace.
func Thumbprint(j jwtx.JWK) (string, error) {
	if j.Kty != "EC" {
		return "", errors.New("dpopx: thumbprint requires an EC key")
	}
	canonical := fmt.Sprintf(`{"crv":%q,"kty":%q,"x":%q,"y":%q}`, j.Crv, j.Kty, j.X, j.Y)
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// EncodeClientJWK serialises a public JWK for the X-Client-JWK header:
// the JWK's JSON bytes, hex encoded.
func EncodeClientJWK(j jwtx.JWK) (string, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("dpopx: marshal client jwk: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// DecodeClientJWK reverses EncodeClientJWK.
func DecodeClientJWK(s string) (jwtx.JWK, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return jwtx.JWK{}, fmt.Errorf("dpopx: decode client jwk hex: %w", err)
	}

	var j jwtx.JWK
	if err := json.Unmarshal(raw, &j); err != nil {
		return jwtx.JWK{}, fmt.Errorf("dpopx: unmarshal client jwk: %w", err)
	}
	if j.Kty != "EC" || j.Crv != "P-256" || j.X == "" || j.Y == "" {
		return jwtx.JWK{}, errors.New("dpopx: client jwk is not a usable EC P-256 key")
	}

	return j, nil
}

// ECDSAKey converts an EC public JWK into a crypto key for verification.
func ECDSAKey(j jwtx.JWK) (*ecdsa.PublicKey, error) {
	if j.Kty != "EC" || j.Crv != "P-256" {
		return nil, errors.New("dpopx: not an EC P-256 JWK")
	}

	xb, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, fmt.Errorf("dpopx: decode x: %w", err)
	}
	yb, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return nil, fmt.Errorf("dpopx: decode y: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xb),
		Y:     new(big.Int).SetBytes(yb),
	}, nil
}

// padCoord left-pads a P-256 field element to 32 bytes.
func padCoord(v *big.Int) []byte {
	b := v.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
