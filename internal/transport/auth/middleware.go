package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"debtster/internal/domain"
)

type ctxKey string

const (
	UserIDKey  ctxKey = "userID"
	TokenIDKey ctxKey = "tokenID"
)

// TokenResolver turns a presented plaintext token into its stored record.
type TokenResolver interface {
	FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error)
	TouchLastUsed(ctx context.Context, id int64) error
}

// SanctumMiddleware authenticates requests with a bearer personal access
// token. WebSocket clients cannot set headers, so a ?token= query parameter
// is accepted as a fallback.
func SanctumMiddleware(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plain := bearerToken(r)
			if plain == "" {
				plain = r.URL.Query().Get("token")
			}
			if plain == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			pat, err := tokens.FindTokenByPlainToken(r.Context(), plain)
			if err != nil {
				log.Printf("[AUTH] token lookup failed for %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := tokens.TouchLastUsed(r.Context(), pat.ID); err != nil {
				log.Printf("[AUTH] touch last_used for token %d failed: %v", pat.ID, err)
			}

			ctx := context.WithValue(r.Context(), UserIDKey, pat.UserID)
			ctx = context.WithValue(ctx, TokenIDKey, pat.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func GetUserID(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok {
		return 0, errors.New("userID not found in context")
	}
	return userID, nil
}

// GetTokenID returns the id of the token the request authenticated with,
// needed by logout to revoke exactly that token.
func GetTokenID(ctx context.Context) (int64, error) {
	tokenID, ok := ctx.Value(TokenIDKey).(int64)
	if !ok {
		return 0, errors.New("tokenID not found in context")
	}
	return tokenID, nil
}
