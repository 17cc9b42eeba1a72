package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
)

// Authenticate parses an optional bearer token. Requests without an
// Authorization header continue anonymously; a present but invalid token is
// rejected with 401.
func Authenticate(tokens *TokenIssuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := bearerToken(header)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "malformed authorization header")
				return
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				if logger != nil && !errors.Is(err, ErrTokenExpired) {
					logger.Warn("bearer token rejected", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: claims.Subject, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
