package httpx

import (
	"net/http"

	"github.com/karinja/auth/pkg/dpopx"
	"github.com/karinja/auth/pkg/jwtx"
	"github.com/karinja/auth/pkg/slogx"
)

// DPoPMiddleware verifies the DPoP proof on requests carrying a key-bound
// access token. It must run after AuthnMiddleware: the cnf.jkt claim of the
// verified token is compared against the thumbprint of the key that signed
// the proof. Tokens without a cnf claim pass through untouched.
func DPoPMiddleware(v *dpopx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			claims, _ := ctx.Value(CtxKeyClaims).(jwtx.Claims)
			if claims.Cnf == nil || claims.Cnf.JKT == "" {
				next.ServeHTTP(w, r)
				return
			}

			proof, err := v.Verify(r.Header.Get(dpopx.ProofHeader), r.Method, requestURL(r))
			if err != nil {
				log.Warn("dpop proof rejected", "err", err)
				writeProofError(w, "the DPoP proof is missing or invalid")
				return
			}

			if proof.Thumbprint != claims.Cnf.JKT {
				log.Warn("dpop key mismatch", "user_id", claims.Subject)
				writeProofError(w, "proof key does not match token binding")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestURL rebuilds the absolute URL the client signed into the proof.
// Query and fragment are irrelevant: proof URIs are normalized without them.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

// RFC 9449 §7.1 error response for proof failures.
func writeProofError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `DPoP error="invalid_dpop_proof", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
