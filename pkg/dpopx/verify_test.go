package dpopx

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()

	cache := NewMemoryReplayCache(1000, time.Minute)
	t.Cleanup(cache.Stop)

	return NewVerifier(cache, VerifierOptions{})
}

func TestVerify_ValidProof(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	proof, err := GenerateProof("POST", "https://api.example.com/refresh-token/", key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	got, err := v.Verify(proof, "POST", "https://api.example.com/refresh-token/")
	require.NoError(t, err)

	require.Equal(t, "POST", got.Method)
	require.Equal(t, "https://api.example.com/refresh-token/", got.URI)
	require.NotEmpty(t, got.JTI)

	wantThumb, err := Thumbprint(PublicJWKFromKey(&key.PublicKey))
	require.NoError(t, err)
	require.Equal(t, wantThumb, got.Thumbprint)
}

func TestVerify_NormalizesURIs(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	proof, err := GenerateProof("GET", "HTTPS://API.Example.com:443/v1/userinfo", key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/v1/userinfo?page=2")
	require.NoError(t, err, "query strings and default ports must not break the htu match")
}

func TestVerify_MethodMismatch(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	proof, err := GenerateProof("GET", "https://api.example.com/x", key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "POST", "https://api.example.com/x")
	require.ErrorIs(t, err, ErrMethodMismatch)
}

func TestVerify_URIMismatch(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	proof, err := GenerateProof("GET", "https://api.example.com/x", key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/y")
	require.ErrorIs(t, err, ErrURIMismatch)
}

func TestVerify_Replay(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	proof, err := GenerateProof("GET", "https://api.example.com/x", key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/x")
	require.NoError(t, err)

	_, err = v.Verify(proof, "GET", "https://api.example.com/x")
	require.ErrorIs(t, err, ErrReplay)
}

func TestVerify_WrongType(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"htm": "GET",
		"htu": "https://api.example.com/x",
		"iat": time.Now().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["typ"] = "JWT"
	tok.Header["jwk"] = PublicJWKFromKey(&key.PublicKey)
	proof, err := tok.SignedString(key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/x")
	require.ErrorIs(t, err, ErrWrongType)
}

func TestVerify_MissingJWK(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"htm": "GET",
		"htu": "https://api.example.com/x",
		"iat": time.Now().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["typ"] = "dpop+jwt"
	proof, err := tok.SignedString(key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/x")
	require.ErrorIs(t, err, ErrMissingJWK)
}

func TestVerify_RejectsPrivateKeyInHeader(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"htm": "GET",
		"htu": "https://api.example.com/x",
		"iat": time.Now().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["typ"] = "dpop+jwt"
	tok.Header["jwk"] = ExportPrivateJWK(key)
	proof, err := tok.SignedString(key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/x")
	require.ErrorIs(t, err, ErrPrivateKeyInProof)
}

func TestVerify_StaleProof(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"htm": "GET",
		"htu": "https://api.example.com/x",
		"iat": time.Now().Add(-time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["typ"] = "dpop+jwt"
	tok.Header["jwk"] = PublicJWKFromKey(&key.PublicKey)
	proof, err := tok.SignedString(key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/x")
	require.ErrorIs(t, err, ErrStaleProof)
}

func TestVerify_TamperedSignature(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	// Sign with one key but advertise another in the header.
	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"htm": "GET",
		"htu": "https://api.example.com/x",
		"iat": time.Now().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["typ"] = "dpop+jwt"
	tok.Header["jwk"] = PublicJWKFromKey(&other.PublicKey)
	proof, err := tok.SignedString(key)
	require.NoError(t, err)

	v := newTestVerifier(t)
	_, err = v.Verify(proof, "GET", "https://api.example.com/x")
	require.Error(t, err)
}

func TestVerify_Garbage(t *testing.T) {
	v := newTestVerifier(t)

	for _, proof := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		_, err := v.Verify(proof, "GET", "https://api.example.com/x")
		require.Error(t, err, "proof %q should fail", proof)
	}
}
