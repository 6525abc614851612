package http

import (
	"net/http"
	"time"

	"github.com/karinja/auth/pkg/authsdk"
	"github.com/karinja/auth/pkg/httpx"
)

// LivezHandler is the liveness probe: always 200 while the process runs.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}
