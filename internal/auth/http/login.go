package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/karinja/auth/internal/auth/service"
	"github.com/karinja/auth/pkg/authsdk"
	"github.com/karinja/auth/pkg/dpopx"
	"github.com/karinja/auth/pkg/httpx"
	"github.com/karinja/auth/pkg/slogx"
)

// LoginHandler serves POST /login/.
//
// Credentials arrive as application/x-www-form-urlencoded fields. The
// X-Client-JWK header must carry the device public key that all tokens of
// the new session will be bound to; without it no session can be issued.
type LoginHandler struct {
	TokenService *service.TokenService
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	username := strings.TrimSpace(r.Form.Get("username"))
	password := r.Form.Get("password")
	if username == "" || password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	clientJWK, err := dpopx.DecodeClientJWK(r.Header.Get("X-Client-JWK"))
	if err != nil {
		authsdk.NewOAuth2Error(
			http.StatusBadRequest,
			authsdk.ErrorCodeInvalidRequest,
			"a valid X-Client-JWK header is required",
		).WriteError(w)
		return
	}

	pair, err := h.TokenService.Login(ctx, username, password, clientJWK)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrInvalidProof):
			authsdk.ErrInvalidProof.WriteError(w)
		default:
			log.Error("login failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	response := authsdk.TokenBundle{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresIn:  int(pair.AccessTTL.Seconds()),
		RefreshExpiresIn: int(pair.RefreshTTL.Seconds()),
		Role:             pair.Role,
		UserID:           pair.UserID,
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
