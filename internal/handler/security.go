package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
)

// APIKeyHeader is the header clients put their key in. A bearer token in
// Authorization is accepted as well.
const APIKeyHeader = "api_key"

func presentedKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}

// RequireAPIKey rejects requests without a valid key granting scope.
func RequireAPIKey(a *auth.Authenticator, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := a.Authenticate(r.Context(), presentedKey(r))
			if err != nil {
				zctx.From(r.Context()).Debug("API key rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !key.Allows(scope) {
				writeError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			ctx := zctx.With(r.Context(), zap.String("api_key_id", key.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
