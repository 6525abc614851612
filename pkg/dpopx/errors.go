package dpopx

import "errors"

var (
	// ErrMalformed indicates the proof is not a well-formed JWT.
	ErrMalformed = errors.New("dpopx: malformed proof")

	// ErrWrongType indicates the typ header is not "dpop+jwt".
	ErrWrongType = errors.New("dpopx: wrong token type")

	// ErrWrongAlg indicates the alg header is not ES256.
	ErrWrongAlg = errors.New("dpopx: unsupported algorithm")

	// ErrMissingJWK indicates the proof header carries no public key.
	ErrMissingJWK = errors.New("dpopx: missing jwk header")

	// ErrPrivateKeyInProof indicates the embedded JWK contains private
	// key material.
	ErrPrivateKeyInProof = errors.New("dpopx: jwk header contains private key")

	// ErrMethodMismatch indicates the htm claim does not match the request.
	ErrMethodMismatch = errors.New("dpopx: htm mismatch")

	// ErrURIMismatch indicates the htu claim does not match the request.
	ErrURIMismatch = errors.New("dpopx: htu mismatch")

	// ErrStaleProof indicates iat is outside the acceptance window.
	ErrStaleProof = errors.New("dpopx: proof issued outside acceptance window")

	// ErrInvalidJTI indicates a missing or unusable jti claim.
	ErrInvalidJTI = errors.New("dpopx: invalid jti")

	// ErrReplay indicates the jti has been seen before.
	ErrReplay = errors.New("dpopx: proof replay detected")

	// ErrCacheFull indicates the replay cache hit its entry limit.
	ErrCacheFull = errors.New("dpopx: replay cache full")

	// ErrThumbprintMismatch indicates the proof key does not match the
	// key the token is bound to.
	ErrThumbprintMismatch = errors.New("dpopx: key thumbprint mismatch")
)
