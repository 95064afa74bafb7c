package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	pkgAuth "github.com/devanshkukreja/looms-backend/pkg/auth"
	"github.com/devanshkukreja/looms-backend/pkg/config"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
)

const cartTokenHeader = "X-Cart-Token"

// CartOwner resolves who the cart belongs to. A valid bearer token binds the
// cart to the user; otherwise an opaque cart token identifies the anonymous
// shopper, minted on first contact and echoed back so the client can keep it.
func CartOwner(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			owner := ""
			if token := bearerToken(r); token != "" {
				if claims, err := pkgAuth.ParseAccessToken(cfg, token); err == nil {
					owner = "user:" + claims.UserID.String()
					ctx = context.WithValue(ctx, ctxUserID, claims.UserID.String())
					ctx = context.WithValue(ctx, ctxBearer, token)
				}
			}
			if owner == "" {
				anon := strings.TrimSpace(r.Header.Get(cartTokenHeader))
				if anon == "" {
					anon = uuid.NewString()
				}
				owner = "anon:" + anon
				w.Header().Set(cartTokenHeader, anon)
			}

			ctx = context.WithValue(ctx, ctxCartOwner, owner)
			if logg != nil {
				ctx = logg.WithCartOwner(ctx, owner)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
