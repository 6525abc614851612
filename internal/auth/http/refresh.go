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

// RefreshHandler serves POST /refresh-token/.
//
// The opaque refresh token travels as a bearer credential and the request
// carries a DPoP proof signed by the session's device key. The response
// omits identity fields; clients carry role and user id forward from login.
type RefreshHandler struct {
	TokenService *service.TokenService
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	refreshOpaque := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	if refreshOpaque == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	proof := r.Header.Get(dpopx.ProofHeader)
	if proof == "" {
		authsdk.ErrInvalidProof.WriteError(w)
		return
	}

	pair, err := h.TokenService.Refresh(ctx, refreshOpaque, proof, r.Method, requestURL(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefresh):
			authsdk.ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrInvalidProof):
			authsdk.ErrInvalidProof.WriteError(w)
		default:
			log.Error("refresh failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	response := authsdk.TokenBundle{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresIn:  int(pair.AccessTTL.Seconds()),
		RefreshExpiresIn: int(pair.RefreshTTL.Seconds()),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

// requestURL rebuilds the absolute URL for proof verification. Query and
// fragment are dropped during normalization, so only the path matters.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}
