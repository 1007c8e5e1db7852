package middleware

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/nurksbr/siber-sub001/models"
	"go.uber.org/zap"
)

// GateState is the outcome of the route gate's token check
type GateState int

const (
	// GateNoToken means the request carries no session cookie
	GateNoToken GateState = iota
	// GateTokenInvalid means the cookie failed verification
	GateTokenInvalid
	// GateTokenValid means the cookie verified
	GateTokenValid
)

func (s GateState) String() string {
	switch s {
	case GateNoToken:
		return "NO_TOKEN"
	case GateTokenInvalid:
		return "TOKEN_INVALID"
	case GateTokenValid:
		return "TOKEN_VALID"
	default:
		return "UNKNOWN"
	}
}

// CallbackParam is the login page query parameter holding the original destination
const CallbackParam = "callbackUrl"

// TokenVerifier checks a session token's signature and expiry
type TokenVerifier interface {
	Verify(tokenString string) (models.Identity, error)
}

// RouteGate redirects unauthenticated requests for protected pages to the
// login page. It only inspects the cookie and the token signature; it never
// consults the database.
type RouteGate struct {
	verifier  TokenVerifier
	prefixes  []string
	loginPath string
	logger    *zap.Logger
}

// NewRouteGate creates a gate for the given protected prefixes
func NewRouteGate(verifier TokenVerifier, prefixes []string, loginPath string, logger *zap.Logger) *RouteGate {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSuffix(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &RouteGate{
		verifier:  verifier,
		prefixes:  cleaned,
		loginPath: loginPath,
		logger:    logger,
	}
}

// Protected reports whether p falls under a protected prefix. The router
// matches the raw path, so p is protected when either its raw or its cleaned
// form is under a prefix.
func (g *RouteGate) Protected(p string) bool {
	if p == "" {
		return false
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return g.underPrefix(p) || g.underPrefix(path.Clean(p))
}

func (g *RouteGate) underPrefix(p string) bool {
	for _, prefix := range g.prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// routedPaths returns the paths the router may match r on
func routedPaths(r *http.Request) []string {
	if r.URL.RawPath != "" && r.URL.RawPath != r.URL.Path {
		return []string{r.URL.Path, r.URL.RawPath}
	}
	return []string{r.URL.Path}
}

// Evaluate runs the gate's transition for r
func (g *RouteGate) Evaluate(r *http.Request) GateState {
	tok := CookieToken(r)
	if tok == "" {
		return GateNoToken
	}
	if _, err := g.verifier.Verify(tok); err != nil {
		return GateTokenInvalid
	}
	return GateTokenValid
}

// LoginRedirect builds the login URL that returns the user to r's path and query
func (g *RouteGate) LoginRedirect(r *http.Request) string {
	return g.loginPath + "?" + CallbackParam + "=" + url.QueryEscape(r.URL.RequestURI())
}

// Handler applies the gate to requests under the protected prefixes. Other
// paths pass through without any check.
func (g *RouteGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protected := false
		for _, p := range routedPaths(r) {
			if g.Protected(p) {
				protected = true
				break
			}
		}
		if !protected {
			next.ServeHTTP(w, r)
			return
		}

		state := g.Evaluate(r)
		if state == GateTokenValid {
			next.ServeHTTP(w, r)
			return
		}

		g.logger.Debug("route gate redirect",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Stringer("state", state))
		http.Redirect(w, r, g.LoginRedirect(r), http.StatusFound)
	})
}
