package authsdk

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/karinja/auth/pkg/dpopx"
)

// Endpoint paths on the authentication service.
const (
	loginPath   = "/login/"
	refreshPath = "/refresh-token/"
)

// SDKClient is a client for the Karinja authentication service. It holds the
// session state in a SessionStore and signs every authenticated request with
// a single-use DPoP proof.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      SessionStore

	// refreshMu serialises refreshes so concurrent 401s trigger exactly one
	// round trip; late arrivals reuse the winner's bundle.
	refreshMu sync.Mutex
}

// NewSDKClient creates a client against baseURL. A nil store defaults to an
// in-memory one.
func NewSDKClient(baseURL string, store SessionStore) *SDKClient {
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Store: store,
	}
}

// Login authenticates with username and password. A brand-new device key
// pair is minted on every call; on success the token bundle and private key
// overwrite whatever the store held before. On a non-2xx response the store
// is left untouched and a *LoginError carries the status and body.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*TokenBundle, error) {
	key, err := dpopx.GenerateKey()
	if err != nil {
		return nil, &CryptoError{Op: "key generation", Err: err}
	}

	privateJWK := dpopx.ExportPrivateJWK(key)
	clientJWK, err := dpopx.EncodeClientJWK(privateJWK.PublicJWK())
	if err != nil {
		return nil, &CryptoError{Op: "jwk export", Err: err}
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+loginPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Client-JWK", clientJWK)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &LoginError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var bundle TokenBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("authsdk: decode login response: %w", err)
	}

	if err := c.Store.SaveKey(privateJWK); err != nil {
		return nil, err
	}
	if err := c.Store.SaveTokens(&bundle); err != nil {
		return nil, err
	}

	return &bundle, nil
}

// Do performs an authenticated request. The request URL may be relative, in
// which case it is resolved against BaseURL. The caller's headers are
// preserved; only Authorization and DPoP are set by the client.
//
// On a 401 the client refreshes the session once, rebuilds a fresh proof,
// and retries exactly once, returning the retry response whatever its
// status. If the refresh fails the session is cleared and the refresh error
// is returned. Without a stored session, Do fails with ErrNotAuthenticated
// before any network traffic.
func (c *SDKClient) Do(req *http.Request) (*http.Response, error) {
	bundle, err := c.Store.LoadTokens()
	if err != nil {
		return nil, err
	}
	keyJWK, err := c.Store.LoadKey()
	if err != nil {
		return nil, err
	}
	if bundle == nil || bundle.AccessToken == "" || keyJWK == nil {
		return nil, ErrNotAuthenticated
	}

	if err := c.resolveURL(req); err != nil {
		return nil, err
	}

	key, err := keyJWK.Key()
	if err != nil {
		return nil, &CryptoError{Op: "key import", Err: err}
	}

	if err := c.sign(req, bundle.AccessToken, key); err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The retry needs a replayable body.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()

	fresh, err := c.refresh(req.Context(), bundle.AccessToken)
	if err != nil {
		c.clearSession()
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	// A proof is single-use; the retry gets a fresh jti and iat.
	if err := c.sign(retry, fresh.AccessToken, key); err != nil {
		return nil, err
	}

	return c.HTTPClient.Do(retry)
}

// Refresh exchanges the stored refresh token for a new bundle. Concurrent
// calls are serialised; only one request reaches the server.
func (c *SDKClient) Refresh(ctx context.Context) (*TokenBundle, error) {
	return c.refresh(ctx, "")
}

// refresh performs the refresh round trip. staleAccess, when non-empty, is
// the access token the caller saw fail; if the store already holds a
// different one by the time the lock is acquired, another caller has
// refreshed and its bundle is reused.
func (c *SDKClient) refresh(ctx context.Context, staleAccess string) (*TokenBundle, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	prior, err := c.Store.LoadTokens()
	if err != nil {
		return nil, err
	}
	keyJWK, err := c.Store.LoadKey()
	if err != nil {
		return nil, err
	}
	if prior == nil || prior.RefreshToken == "" || keyJWK == nil {
		return nil, ErrNoRefreshToken
	}

	if staleAccess != "" && prior.AccessToken != staleAccess {
		return prior, nil
	}

	key, err := keyJWK.Key()
	if err != nil {
		return nil, &CryptoError{Op: "key import", Err: err}
	}

	refreshURL := c.BaseURL + refreshPath
	proof, err := dpopx.GenerateProof(http.MethodPost, refreshURL, key)
	if err != nil {
		return nil, &CryptoError{Op: "proof signing", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+prior.RefreshToken)
	req.Header.Set(dpopx.ProofHeader, proof)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.clearSession()
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var bundle TokenBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("authsdk: decode refresh response: %w", err)
	}

	// The refresh endpoint omits identity claims; carry them forward so the
	// session keeps its role and user id across rotations.
	if bundle.Role == "" {
		bundle.Role = prior.Role
	}
	if bundle.UserID == "" {
		bundle.UserID = prior.UserID
	}

	if err := c.Store.SaveTokens(&bundle); err != nil {
		return nil, err
	}

	return &bundle, nil
}

// Logout clears the stored tokens and device key. It is idempotent and never
// touches the network.
func (c *SDKClient) Logout() error {
	return c.clearSession()
}

// UserInfo fetches the authenticated account's profile.
func (c *SDKClient) UserInfo(ctx context.Context) (*UserInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/v1/userinfo", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewOAuth2Error(resp.StatusCode, ErrorCodeInvalidToken, string(body))
	}

	var info UserInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SessionBundle returns the currently stored token bundle, or nil when no
// session exists.
func (c *SDKClient) SessionBundle() *TokenBundle {
	bundle, _ := c.Store.LoadTokens()
	return bundle
}

func (c *SDKClient) clearSession() error {
	tokErr := c.Store.ClearTokens()
	keyErr := c.Store.ClearKey()
	if tokErr != nil {
		return tokErr
	}
	return keyErr
}

// resolveURL rewrites a relative request URL against BaseURL.
func (c *SDKClient) resolveURL(req *http.Request) error {
	if req.URL.IsAbs() {
		return nil
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	req.URL = base.ResolveReference(req.URL)
	req.Host = ""
	return nil
}

// sign sets the Authorization and DPoP headers for the request, leaving all
// other headers alone.
func (c *SDKClient) sign(req *http.Request, accessToken string, key *ecdsa.PrivateKey) error {
	proof, err := dpopx.GenerateProof(req.Method, req.URL.String(), key)
	if err != nil {
		return &CryptoError{Op: "proof signing", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set(dpopx.ProofHeader, proof)
	return nil
}
