package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/karinja/auth/internal/auth/service"
	"github.com/karinja/auth/pkg/authsdk"
	"github.com/karinja/auth/pkg/httpx"
	"github.com/karinja/auth/pkg/slogx"
)

// RegisterHandler serves POST /register/: public account creation with a
// JSON body.
type RegisterHandler struct {
	UserService *service.UserService
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		authsdk.NewOAuth2Error(
			http.StatusBadRequest,
			authsdk.ErrorCodeInvalidRequest,
			"content-type must be application/json",
		).WriteError(w)
		return
	}

	var req authsdk.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.UserService.Register(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			authsdk.NewOAuth2Error(
				http.StatusConflict,
				authsdk.ErrorCodeInvalidRequest,
				"username already taken",
			).WriteError(w)
		case errors.Is(err, service.ErrBadUsername),
			errors.Is(err, service.ErrWeakPassword),
			errors.Is(err, service.ErrInvalidRole):
			authsdk.NewOAuth2Error(
				http.StatusBadRequest,
				authsdk.ErrorCodeInvalidRequest,
				err.Error(),
			).WriteError(w)
		default:
			log.Error("register failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	response := authsdk.RegisterResponse{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
	}

	httpx.WriteJSON(w, http.StatusCreated, response)
}
