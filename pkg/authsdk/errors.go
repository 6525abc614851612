package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/karinja/auth/pkg/httpx"
)

var (
	// ErrNotAuthenticated is returned by Do when no stored session exists.
	// No network request is made in that case.
	ErrNotAuthenticated = errors.New("authsdk: not authenticated")

	// ErrNoRefreshToken is returned by Refresh when the store holds no
	// refresh token or device key.
	ErrNoRefreshToken = errors.New("authsdk: no refresh token")
)

// CryptoError wraps a failure in device key generation or proof signing.
// These are fatal for the operation; there is no algorithm fallback.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("authsdk: crypto unavailable during %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// LoginError is returned when the login endpoint responds non-2xx.
// The local store is left untouched.
type LoginError struct {
	StatusCode int
	Body       string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("authsdk: login failed: status=%d body=%s", e.StatusCode, e.Body)
}

// RefreshError is returned when the refresh endpoint responds non-2xx.
// The local session has been cleared by the time the caller sees it.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("authsdk: refresh failed: status=%d body=%s", e.StatusCode, e.Body)
}

// OAuth2Error represents a standard OAuth2-style error response. It is used
// by the server handlers to write HTTP responses and by the SDK to surface
// structured endpoint errors.
type OAuth2Error struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the error code (e.g. "invalid_request", "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this OAuth2Error to an HTTP response writer.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// Error codes shared between the server handlers and SDK.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInvalidGrant   = "invalid_grant"
	ErrorCodeInvalidToken   = "invalid_token"
	ErrorCodeInvalidProof   = "invalid_dpop_proof"
	ErrorCodeServerError    = "server_error"
)

var (
	// ErrInvalidRequest is returned when the request is malformed or missing
	// required parameters.
	ErrInvalidRequest = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidGrant is returned when credentials or a refresh token are
	// invalid, expired, or revoked.
	ErrInvalidGrant = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidGrant,
		Description: "invalid credentials",
	}

	// ErrInvalidToken is returned when the access token is missing, invalid,
	// expired or revoked.
	ErrInvalidToken = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	// ErrInvalidProof is returned when the DPoP proof fails verification.
	ErrInvalidProof = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidProof,
		Description: "the DPoP proof is missing or invalid",
	}

	// ErrServerError is returned for unexpected internal failures.
	ErrServerError = &OAuth2Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrMethodNotAllowed is returned when the HTTP method is not allowed.
	ErrMethodNotAllowed = &OAuth2Error{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}

	// ErrInvalidContentType is returned when a form endpoint receives a
	// different content type.
	ErrInvalidContentType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "content-type must be application/x-www-form-urlencoded",
	}
)

// NewOAuth2Error creates an OAuth2Error with a custom description.
func NewOAuth2Error(statusCode int, code, description string) *OAuth2Error {
	return &OAuth2Error{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}
