package authn

import (
	"net/http"
	"strings"

	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
	"github.com/stacklok/mcp-session-gateway/pkg/verifier"
)

// RequireBearer returns chi-compatible middleware that enforces bearer
// token authentication on every request it wraps, per spec §4.6.
// resourceMetadataURL is advertised in WWW-Authenticate challenges so
// clients can discover the protected-resource metadata document.
func RequireBearer(v verifier.Verifier, resourceMetadataURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", BearerChallenge(resourceMetadataURL, ""))
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			info, err := v.VerifyAccessToken(r.Context(), token)
			if err != nil {
				logger.Infow("bearer gate rejected request", "tokenPrefix", tokenPrefix(token), "error", err)
				w.Header().Set("WWW-Authenticate", BearerChallenge(resourceMetadataURL, string(ghaerrors.TypeInvalidToken)))
				http.Error(w, "invalid_token", http.StatusUnauthorized)
				return
			}

			identity := &Identity{
				UserID:               info.UserID,
				ClientID:             info.ClientID,
				Scopes:               info.Scopes,
				Token:                token,
				UpstreamInstallation: info.UpstreamInstallation,
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func tokenPrefix(token string) string {
	const n = 8
	if len(token) <= n {
		return token
	}
	return token[:n]
}
