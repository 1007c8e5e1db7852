package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/token"
	"github.com/nurksbr/siber-sub001/utils"
	"go.uber.org/zap"
)

// SessionResolver resolves a session token to the identity behind it
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

// AuthMiddleware guards JSON APIs with the session endpoint's resolution
type AuthMiddleware struct {
	resolver SessionResolver
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(resolver SessionResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger,
	}
}

// RequireAuth is a middleware that requires a valid session
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		tok := ExtractToken(r)
		if tok == "" {
			m.logger.Debug("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "")
			return
		}

		identity, err := m.resolver.Resolve(ctx, tok)
		if err != nil {
			m.logger.Info("session rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "")
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", identity.ID))

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}

// RequireRole is a middleware that requires a specific role. It must run
// after RequireAuth.
func (m *AuthMiddleware) RequireRole(role models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			identity, ok := GetIdentityFromContext(ctx)
			if !ok {
				m.logger.Error("identity not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "")
				return
			}

			if !identity.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("required_role", string(role)),
					zap.String("user_role", string(identity.Role)))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken extracts the session token from the Authorization header
// ("Bearer TOKEN") or the session cookie. The header takes precedence.
func ExtractToken(r *http.Request) string {
	if tok := extractBearerToken(r); tok != "" {
		return tok
	}
	return CookieToken(r)
}

// CookieToken returns the session cookie value, or "" when absent
func CookieToken(r *http.Request) string {
	cookie, err := r.Cookie(token.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
