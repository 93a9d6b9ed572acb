package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vidiosphere/backend/internal/auth"
)

type authCtxKey string

const identityKey authCtxKey = "identity"

// Identity is the authenticated principal attached to the request context.
type Identity struct {
	UserID string
	Handle string
	Email  string
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity stores an identity on the context. Exposed for handler tests.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Authenticate verifies the access token from the Authorization header or the
// accessToken cookie and attaches the decoded identity to the context. An
// expired token is reported distinctly so clients know to refresh.
func Authenticate(issuer *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if cookie, err := r.Cookie("accessToken"); err == nil {
					token = cookie.Value
				}
			}
			if token == "" {
				unauthorized(w, "authentication required")
				return
			}

			claims, err := issuer.VerifyAccessToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					unauthorized(w, "access token expired")
					return
				}
				unauthorized(w, "invalid access token")
				return
			}

			identity := Identity{
				UserID: claims.Subject,
				Handle: claims.Handle,
				Email:  claims.Email,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuthenticate attaches an identity when a valid access token is
// present and passes the request through untouched otherwise. Used on public
// endpoints whose responses are personalised for signed-in viewers.
func OptionalAuthenticate(issuer *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if cookie, err := r.Cookie("accessToken"); err == nil {
					token = cookie.Value
				}
			}
			if token != "" {
				if claims, err := issuer.VerifyAccessToken(token); err == nil {
					identity := Identity{
						UserID: claims.Subject,
						Handle: claims.Handle,
						Email:  claims.Email,
					}
					r = r.WithContext(WithIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
