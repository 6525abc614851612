package authsdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karinja/auth/pkg/dpopx"
)

// authServer is an in-process stand-in for the authentication service. It
// validates the wire contract the SDK is expected to follow and serves a
// protected endpoint that rejects stale access tokens.
type authServer struct {
	t *testing.T

	mu            sync.Mutex
	loginCalls    int
	refreshCalls  int
	apiCalls      int
	seenJTIs      []string
	seenClientJWK string

	currentAccess string
}

func (as *authServer) counts() (loginCalls, refreshCalls, apiCalls int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.loginCalls, as.refreshCalls, as.apiCalls
}

func proofJTI(t *testing.T, proof string) string {
	t.Helper()
	parts := strings.Split(proof, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, json.Unmarshal(raw, &claims))
	jti, _ := claims["jti"].(string)
	require.NotEmpty(t, jti)
	return jti
}

func newAuthServer(t *testing.T) (*authServer, *httptest.Server) {
	t.Helper()

	as := &authServer{t: t, currentAccess: "A1"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/", func(w http.ResponseWriter, r *http.Request) {
		as.mu.Lock()
		defer as.mu.Unlock()
		as.loginCalls++

		require.NoError(t, r.ParseForm())
		if r.PostFormValue("username") != "alice" || r.PostFormValue("password") != "correct-pw" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
			return
		}

		clientJWK := r.Header.Get("X-Client-JWK")
		_, err := dpopx.DecodeClientJWK(clientJWK)
		require.NoError(t, err, "X-Client-JWK must be hex-encoded JWK JSON")
		as.seenClientJWK = clientJWK

		as.currentAccess = "A1"
		json.NewEncoder(w).Encode(TokenBundle{
			AccessToken:      "A1",
			RefreshToken:     "R1",
			AccessExpiresIn:  900,
			RefreshExpiresIn: 604800,
			Role:             "job_seeker",
			UserID:           "user-42",
		})
	})

	mux.HandleFunc("POST /refresh-token/", func(w http.ResponseWriter, r *http.Request) {
		as.mu.Lock()
		defer as.mu.Unlock()
		as.refreshCalls++

		require.Empty(t, r.Header.Get("Content-Type"), "refresh carries no body")
		require.NotEmpty(t, r.Header.Get("DPoP"), "refresh must carry a proof")
		as.seenJTIs = append(as.seenJTIs, proofJTI(t, r.Header.Get("DPoP")))

		if r.Header.Get("Authorization") != "Bearer R1" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
			return
		}

		as.currentAccess = "A2"
		// Identity claims intentionally omitted.
		json.NewEncoder(w).Encode(TokenBundle{
			AccessToken:      "A2",
			RefreshToken:     "R2",
			AccessExpiresIn:  900,
			RefreshExpiresIn: 604800,
		})
	})

	mux.HandleFunc("GET /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		as.mu.Lock()
		defer as.mu.Unlock()
		as.apiCalls++

		require.NotEmpty(t, r.Header.Get("DPoP"))
		as.seenJTIs = append(as.seenJTIs, proofJTI(t, r.Header.Get("DPoP")))

		if r.Header.Get("Authorization") != "Bearer "+as.currentAccess {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"jobs":[]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return as, srv
}

func login(t *testing.T, c *SDKClient) *TokenBundle {
	t.Helper()
	bundle, err := c.Login(context.Background(), "alice", "correct-pw")
	require.NoError(t, err)
	return bundle
}

func TestLogin_Success(t *testing.T) {
	as, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)

	bundle := login(t, c)
	require.Equal(t, "A1", bundle.AccessToken)
	require.Equal(t, "R1", bundle.RefreshToken)
	require.Equal(t, "job_seeker", bundle.Role)
	require.Equal(t, "user-42", bundle.UserID)

	stored, err := c.Store.LoadTokens()
	require.NoError(t, err)
	require.Equal(t, bundle, stored)

	key, err := c.Store.LoadKey()
	require.NoError(t, err)
	require.NotNil(t, key, "private key must be persisted")

	// The registered public JWK matches the stored private key.
	decoded, err := dpopx.DecodeClientJWK(as.seenClientJWK)
	require.NoError(t, err)
	require.Equal(t, key.PublicJWK(), decoded)
}

func TestLogin_BadCredentials(t *testing.T) {
	_, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)

	_, err := c.Login(context.Background(), "alice", "wrong-pw")

	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	require.Equal(t, http.StatusUnauthorized, loginErr.StatusCode)
	require.Contains(t, loginErr.Body, "invalid_grant")

	// The store is untouched on a failed login.
	stored, err := c.Store.LoadTokens()
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestLogin_FreshKeyPerLogin(t *testing.T) {
	_, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)

	login(t, c)
	key1, err := c.Store.LoadKey()
	require.NoError(t, err)

	login(t, c)
	key2, err := c.Store.LoadKey()
	require.NoError(t, err)

	require.NotEqual(t, key1.D, key2.D, "every login mints a new key pair")
}

func TestDo_AttachesAuthAndProof(t *testing.T) {
	as, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)
	login(t, c)

	req, err := http.NewRequest(http.MethodGet, "/v1/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("X-Custom", "kept")

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, _, apiCalls := as.counts()
	require.Equal(t, 1, apiCalls)
	require.Equal(t, "kept", req.Header.Get("X-Custom"), "caller headers are never dropped")
}

func TestDo_NotAuthenticated_NoNetwork(t *testing.T) {
	as, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)

	req, err := http.NewRequest(http.MethodGet, "/v1/jobs", nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	require.ErrorIs(t, err, ErrNotAuthenticated)
	_, refreshCalls, apiCalls := as.counts()
	require.Zero(t, apiCalls, "no network call may happen without a session")
	require.Zero(t, refreshCalls)
}

func TestDo_RefreshAndRetryOn401(t *testing.T) {
	as, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)
	login(t, c)

	// Invalidate A1 server-side so the first attempt 401s.
	as.mu.Lock()
	as.currentAccess = "A2"
	as.mu.Unlock()

	req, err := http.NewRequest(http.MethodGet, "/v1/jobs", nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, refreshCalls, apiCalls := as.counts()
	require.Equal(t, 1, refreshCalls, "exactly one refresh")
	require.Equal(t, 2, apiCalls, "exactly one retry")

	// Every proof in the exchange carried a distinct jti.
	as.mu.Lock()
	jtis := append([]string(nil), as.seenJTIs...)
	as.mu.Unlock()
	seen := map[string]bool{}
	for _, jti := range jtis {
		require.False(t, seen[jti], "jti %s reused", jti)
		seen[jti] = true
	}

	// Identity claims survived the rotation.
	stored, err := c.Store.LoadTokens()
	require.NoError(t, err)
	require.Equal(t, "A2", stored.AccessToken)
	require.Equal(t, "R2", stored.RefreshToken)
	require.Equal(t, "job_seeker", stored.Role)
	require.Equal(t, "user-42", stored.UserID)
}

func TestDo_RefreshFailureClearsSession(t *testing.T) {
	as, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)
	login(t, c)

	// Make both the access token and the refresh token invalid.
	as.mu.Lock()
	as.currentAccess = "A2"
	as.mu.Unlock()
	stored, err := c.Store.LoadTokens()
	require.NoError(t, err)
	stored.RefreshToken = "revoked"
	require.NoError(t, c.Store.SaveTokens(stored))

	req, err := http.NewRequest(http.MethodGet, "/v1/jobs", nil)
	require.NoError(t, err)

	_, err = c.Do(req)

	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.Equal(t, http.StatusUnauthorized, refreshErr.StatusCode)

	tokens, err := c.Store.LoadTokens()
	require.NoError(t, err)
	require.Nil(t, tokens, "tokens cleared after failed refresh")
	key, err := c.Store.LoadKey()
	require.NoError(t, err)
	require.Nil(t, key, "device key cleared after failed refresh")

	// A follow-up call short-circuits locally.
	req2, err := http.NewRequest(http.MethodGet, "/v1/jobs", nil)
	require.NoError(t, err)
	_, err = c.Do(req2)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefresh_NoSession(t *testing.T) {
	_, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRefresh_CarriesIdentityForward(t *testing.T) {
	_, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)
	login(t, c)

	bundle, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", bundle.AccessToken)
	require.Equal(t, "R2", bundle.RefreshToken)
	require.Equal(t, "job_seeker", bundle.Role, "role carried forward from prior bundle")
	require.Equal(t, "user-42", bundle.UserID)
}

func TestLogout_Idempotent(t *testing.T) {
	as, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)
	login(t, c)

	l1, r1, a1 := as.counts()

	require.NoError(t, c.Logout())
	require.NoError(t, c.Logout(), "second logout is a no-op")

	tokens, err := c.Store.LoadTokens()
	require.NoError(t, err)
	require.Nil(t, tokens)

	l2, r2, a2 := as.counts()
	require.Equal(t, l1+r1+a1, l2+r2+a2, "logout never touches the network")
}

func TestDo_Concurrent401sSingleRefresh(t *testing.T) {
	as, srv := newAuthServer(t)
	c := NewSDKClient(srv.URL, nil)
	login(t, c)

	as.mu.Lock()
	as.currentAccess = "A2"
	as.mu.Unlock()

	const callers = 8
	var wg sync.WaitGroup
	var failures atomic.Int64

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, "/v1/jobs", nil)
			if err != nil {
				failures.Add(1)
				return
			}
			resp, err := c.Do(req)
			if err != nil || resp.StatusCode != http.StatusOK {
				failures.Add(1)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	require.Zero(t, failures.Load())
	_, refreshCalls, _ := as.counts()
	require.Equal(t, 1, refreshCalls,
		"concurrent 401s must collapse into a single refresh")
}

func TestFileSessionStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSessionStore(dir)
	require.NoError(t, err)

	// Empty slots load as nil without error.
	tokens, err := store.LoadTokens()
	require.NoError(t, err)
	require.Nil(t, tokens)
	key, err := store.LoadKey()
	require.NoError(t, err)
	require.Nil(t, key)

	bundle := &TokenBundle{AccessToken: "A", RefreshToken: "R", Role: "employer", UserID: "u1"}
	require.NoError(t, store.SaveTokens(bundle))

	k, err := dpopx.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, store.SaveKey(dpopx.ExportPrivateJWK(k)))

	gotTokens, err := store.LoadTokens()
	require.NoError(t, err)
	require.Equal(t, bundle, gotTokens)

	gotKey, err := store.LoadKey()
	require.NoError(t, err)
	require.NotNil(t, gotKey)

	// Slots clear independently.
	require.NoError(t, store.ClearTokens())
	gotTokens, err = store.LoadTokens()
	require.NoError(t, err)
	require.Nil(t, gotTokens)
	gotKey, err = store.LoadKey()
	require.NoError(t, err)
	require.NotNil(t, gotKey, "clearing tokens must not clear the key")

	require.NoError(t, store.ClearKey())
	require.NoError(t, store.ClearKey(), "clearing an empty slot is fine")
}
