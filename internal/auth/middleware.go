package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/getsentry/sentry-go"

	"chat-backend/internal/observability"
	"chat-backend/internal/users"
)

type identityContextKey struct{}

// Guard authenticates requests: token presence, signature and expiry,
// revocation, and that the user still exists. RequireRole adds a role check.
type Guard struct {
	tokens      *TokenService
	revocations RevocationStore
	users       users.Store
	logger      *observability.Logger
}

func NewGuard(tokens *TokenService, revocations RevocationStore, store users.Store, logger *observability.Logger) *Guard {
	return &Guard{tokens: tokens, revocations: revocations, users: store, logger: logger}
}

func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "no token provided")
			return
		}

		claims, err := g.tokens.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		blacklisted, err := g.revocations.IsBlacklisted(r.Context(), token)
		if err != nil {
			g.fail(w, r, "guard_revocation_check_failed", err, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
		if blacklisted {
			writeError(w, http.StatusUnauthorized, "token has been revoked")
			return
		}

		exists, err := g.users.Exists(r.Context(), claims.UserID)
		if err != nil {
			g.fail(w, r, "guard_user_lookup_failed", err, http.StatusInternalServerError, "internal server error")
			return
		}
		if !exists {
			writeError(w, http.StatusUnauthorized, "user no longer exists")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, Identity{UserID: claims.UserID, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole must be wrapped by Middleware. It rejects identities whose role
// is not one of roles with 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "no token provided")
				return
			}
			if err := checkRole(identity, roles); err != nil {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkRole(identity Identity, allowed []string) error {
	if slices.Contains(allowed, identity.Role) {
		return nil
	}
	return &ForbiddenError{Required: allowed, Actual: identity.Role}
}

func (g *Guard) fail(w http.ResponseWriter, r *http.Request, event string, err error, status int, message string) {
	g.logger.Error(event, map[string]any{"error": err.Error(), "path": r.URL.Path})
	if !errors.Is(err, context.Canceled) {
		sentry.CaptureException(err)
	}
	writeError(w, status, message)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// UserIDFromContext adapts IdentityFromContext to users.IdentityFunc.
func UserIDFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return identity.UserID, true
}

// requestToken reads the access cookie, falling back to a Bearer header for
// non-browser clients.
func requestToken(r *http.Request) string {
	if token := cookieValue(r, AccessCookieName); token != "" {
		return token
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
