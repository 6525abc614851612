package dpopx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/karinja/auth/pkg/jwtx"
)

// Proof is the validated content of a DPoP proof.
type Proof struct {
	JTI        string
	Method     string
	URI        string
	IssuedAt   time.Time
	JWK        jwtx.JWK
	Thumbprint string
}

// VerifierOptions tune proof acceptance.
type VerifierOptions struct {
	// MaxAge is how far in the past a proof's iat may lie.
	MaxAge time.Duration

	// ClockSkew is the tolerance applied on both ends of the iat window.
	ClockSkew time.Duration
}

// Verifier validates DPoP proofs against the expected request binding.
type Verifier struct {
	cache  ReplayCache
	maxAge time.Duration
	skew   time.Duration
}

// NewVerifier creates a proof verifier backed by the given replay cache.
func NewVerifier(cache ReplayCache, opts VerifierOptions) *Verifier {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 5 * time.Minute
	}
	if opts.ClockSkew <= 0 {
		opts.ClockSkew = 30 * time.Second
	}
	return &Verifier{cache: cache, maxAge: opts.MaxAge, skew: opts.ClockSkew}
}

// Verify checks proof against the request's method and URI. The checks run
// in a fixed order so a forged header never influences which algorithm or
// key is used: header shape first, then signature with the embedded key,
// then claim bindings, then replay.
func (v *Verifier) Verify(proof, method, uri string) (*Proof, error) {
	if proof == "" {
		return nil, ErrMalformed
	}

	var embedded jwtx.JWK

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(proof, claims, func(t *jwt.Token) (any, error) {
		if typ, _ := t.Header["typ"].(string); typ != "dpop+jwt" {
			return nil, ErrWrongType
		}

		rawJWK, ok := t.Header["jwk"]
		if !ok {
			return nil, ErrMissingJWK
		}

		jwkMap, ok := rawJWK.(map[string]any)
		if !ok {
			return nil, ErrMissingJWK
		}
		if _, hasD := jwkMap["d"]; hasD {
			return nil, ErrPrivateKeyInProof
		}

		// Round-trip through JSON into the typed JWK.
		raw, err := json.Marshal(jwkMap)
		if err != nil {
			return nil, ErrMissingJWK
		}
		if err := json.Unmarshal(raw, &embedded); err != nil {
			return nil, ErrMissingJWK
		}

		return ECDSAKey(embedded)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}

	jti, _ := claims["jti"].(string)
	if jti == "" || len(jti) > maxJTILength {
		return nil, ErrInvalidJTI
	}

	htm, _ := claims["htm"].(string)
	if htm == "" || htm != strings.ToUpper(method) {
		return nil, ErrMethodMismatch
	}

	htu, _ := claims["htu"].(string)
	wantURI, err := NormalizeURI(uri)
	if err != nil {
		return nil, err
	}
	gotURI, err := NormalizeURI(htu)
	if err != nil || gotURI != wantURI {
		return nil, ErrURIMismatch
	}

	iatRaw, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrStaleProof
	}
	iat := time.Unix(int64(iatRaw), 0)
	now := time.Now()
	if iat.Before(now.Add(-v.maxAge-v.skew)) || iat.After(now.Add(v.skew)) {
		return nil, ErrStaleProof
	}

	thumb, err := Thumbprint(embedded)
	if err != nil {
		return nil, err
	}

	if err := v.cache.CheckAndStore(jti, v.maxAge+v.skew); err != nil {
		return nil, err
	}

	return &Proof{
		JTI:        jti,
		Method:     htm,
		URI:        gotURI,
		IssuedAt:   iat,
		JWK:        embedded,
		Thumbprint: thumb,
	}, nil
}
