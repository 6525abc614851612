package http

import (
	"net/http"

	"github.com/karinja/auth/internal/auth/service"
	"github.com/karinja/auth/pkg/authsdk"
	"github.com/karinja/auth/pkg/httpx"
	"github.com/karinja/auth/pkg/slogx"
)

type UserInfoHandler struct {
	UserService *service.UserService
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// Get subject (user ID) from request context.
	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.UserService.GetUserByID(ctx, userID)
	if err != nil {
		log.Warn("failed to load user", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	response := authsdk.UserInfoResponse{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
