package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/rentloop-backend/api/responses"
	pkgAuth "github.com/angelmondragon/rentloop-backend/pkg/auth"
	"github.com/angelmondragon/rentloop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth requires a bearer access token and seeds the context with the caller's
// id and role. Every rejection carries a WWW-Authenticate challenge.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="rentloop"`)
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="rentloop", error="invalid_token", error_description=%q`, msg))
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}
			userID := claims.UserID()

			ctx := withPrincipal(r.Context(), principal{UserID: userID, Role: claims.Role})
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the credential from an Authorization header. Other
// schemes are rejected rather than treated as a raw token.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
