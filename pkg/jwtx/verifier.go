package jwtx

import "errors"

// Verifier validates a JWT and returns the claims if it is legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// ES256Adapter wraps the concrete ES256 verifier in the common interface.
type ES256Adapter struct{ *ES256Verifier }

func (a ES256Adapter) Verify(token string) (Claims, error) {
	c, err := a.ES256Verifier.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	return *c, nil
}

// NewCommonES256 returns a Verifier using the ES256 implementation wrapped
// in the common interface.
func NewCommonES256(keys *KeySet, issuer string, audience []string) Verifier {
	return ES256Adapter{NewVerifierES256(keys, issuer, audience)}
}
