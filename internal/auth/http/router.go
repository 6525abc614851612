package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/karinja/auth/internal/auth/service"
	"github.com/karinja/auth/internal/auth/store"
	"github.com/karinja/auth/pkg/dpopx"
	"github.com/karinja/auth/pkg/httpx"
	"github.com/karinja/auth/pkg/jwtx"
	"github.com/karinja/auth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	proofs       *dpopx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	TokenService *service.TokenService
	UserService  *service.UserService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	proofs *dpopx.Verifier,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		proofs:       proofs,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSessions() {
	// POST /login/ - strict rate limit by IP + username to slow brute force
	loginHandler := &LoginHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /login/",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// POST /refresh-token/ - moderate rate limit; every client session
	// refreshes periodically
	refreshHandler := &RefreshHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /refresh-token/",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /register/ - strict rate limit by IP (public signup endpoint)
	registerHandler := &RegisterHandler{UserService: r.UserService}
	r.Mux.Handle("POST /register/",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /.well-known/jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UserInfoHandler{UserService: r.UserService}

	// Authenticated endpoint: bearer token first, then the DPoP binding
	// check against the token's cnf.jkt.
	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.DPoPMiddleware(r.proofs),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)
}

func (r *Router) registerSystem() {
	// Health check endpoints - high limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
