package authsdk

import "github.com/karinja/auth/pkg/jwtx"

// TokenBundle is the persisted session state returned by the login and
// refresh endpoints. Expiry hints are carried for display purposes only;
// the client never enforces TTLs locally and relies on the server's 401s.
type TokenBundle struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque rotated refresh token
	RefreshToken string `json:"refresh_token"`

	// AccessExpiresIn is the access token lifetime hint in seconds
	AccessExpiresIn int `json:"access_expires_in,omitempty"`

	// RefreshExpiresIn is the refresh token lifetime hint in seconds
	RefreshExpiresIn int `json:"refresh_expires_in,omitempty"`

	// Role is the account role, e.g. "job_seeker" or "employer".
	// The refresh endpoint omits it; the client carries it forward.
	Role string `json:"role,omitempty"`

	// UserID identifies the authenticated account. Carried forward across
	// refreshes like Role.
	UserID string `json:"user_id,omitempty"`
}

// UserInfoResponse is returned from the GET /v1/userinfo endpoint.
type UserInfoResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// RegisterRequest creates a new marketplace account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"` // "job_seeker" or "employer"
}

// RegisterResponse contains the created account's identity.
type RegisterResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// JWKSResponse is the body of the JWKS discovery endpoint.
type JWKSResponse = jwtx.JWKS

// HealthResponse is returned by the livez and readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
