package http

import (
	"context"
	"net/http"

	"github.com/beisanytime/shiurhub/identity"
)

type contextKey int

const (
	emailContextKey contextKey = iota
	adminContextKey
)

// IdentityMiddleware resolves the caller's identity once per request and
// places it on the context. Requests with an invalid bearer token are
// rejected here; anonymous requests pass through and individual handlers
// decide whether identity is required.
func IdentityMiddleware(verifier *identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := verifier.FromRequest(r)
			if err != nil {
				HandleError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), emailContextKey, email)
			ctx = context.WithValue(ctx, adminContextKey, verifier.IsAdmin(r, email))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EmailFromContext returns the caller's email, or "" for anonymous
// requests.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailContextKey).(string)
	return email
}

// IsAdminFromContext reports whether the caller is an administrator.
func IsAdminFromContext(ctx context.Context) bool {
	admin, _ := ctx.Value(adminContextKey).(bool)
	return admin
}
