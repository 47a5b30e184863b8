package httpapi

import (
	"net/http"
	"strings"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
)

// publicPaths need no bearer token. Everything else behind the API requires
// an authenticated principal.
func isPublicPath(path string) bool {
	if strings.HasPrefix(path, "/auth/") && path != "/auth/me" {
		return true
	}
	switch path {
	case "/healthz", "/readyz", "/metrics", "/v1/info":
		return true
	}
	return false
}

// withAuth resolves the bearer token into a principal and stores it on the
// request context. Public paths pass through untouched.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		p, err := a.guard.Authenticate(header)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), p)
		if token, ok := bearerFromHeader(header); ok {
			ctx = auth.ContextWithToken(ctx, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerFromHeader(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
