package httpserver

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/auth"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/httputil"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// WithAuth requires a bearer credential when token auth is configured:
// either a token from /api/auth/token or the API key itself. An
// unconfigured service runs open; the connector is meant to sit on a
// private network either way.
func WithAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if svc == nil || !svc.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing bearer token"})
				return
			}
			subject, err := svc.ParseToken(parts[1])
			if err != nil {
				if !svc.VerifyKey(parts[1]) {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid token"})
					return
				}
				subject = "api-key"
			}
			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Subject(r *http.Request) (string, bool) {
	v := r.Context().Value(subjectKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AccessLog writes one line per API request, with the authenticated
// subject when the auth middleware resolved one.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := Subject(r)
		if !ok {
			subject = "-"
		}
		log.Printf("%s %s subject=%s", r.Method, r.URL.Path, subject)
		next.ServeHTTP(w, r)
	})
}
