package dpopx

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GenerateProof builds a DPoP proof JWT for the given request, signed with
// the device's private key. Every call produces a fresh jti and iat, so a
// retried request must call this again rather than reuse an earlier proof.
func GenerateProof(method, uri string, key *ecdsa.PrivateKey) (string, error) {
	if key == nil {
		return "", fmt.Errorf("dpopx: nil signing key")
	}

	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"htm": strings.ToUpper(method),
		"htu": uri,
		"iat": time.Now().Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	t.Header["typ"] = "dpop+jwt"
	t.Header["jwk"] = PublicJWKFromKey(&key.PublicKey)

	proof, err := t.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("dpopx: proof signing failed: %w", err)
	}
	return proof, nil
}

// SignRequest attaches a freshly generated proof to req under the DPoP
// header. The proof is bound to req's method and URL.
type headerSetter interface {
	Set(key, value string)
}

// ProofHeader is the HTTP header name proofs travel in.
const ProofHeader = "DPoP"

// SetProofHeader generates a proof for (method, uri) and writes it to h.
func SetProofHeader(h headerSetter, method, uri string, key *ecdsa.PrivateKey) error {
	proof, err := GenerateProof(method, uri, key)
	if err != nil {
		return err
	}
	h.Set(ProofHeader, proof)
	return nil
}
