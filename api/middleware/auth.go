package middleware

import (
	"net/http"
	"strings"

	"github.com/paygrid/paygrid-backend/api/responses"
	pkgauth "github.com/paygrid/paygrid-backend/pkg/auth"
	"github.com/paygrid/paygrid-backend/pkg/config"
	pkgerrors "github.com/paygrid/paygrid-backend/pkg/errors"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// calling account and role.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithAccount(r.Context(), claims.Account)
			ctx = WithRole(ctx, claims.Role)
			if logg != nil {
				ctx = logg.WithAccount(ctx, claims.Account)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
