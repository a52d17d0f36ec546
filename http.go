package identity

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultSessionContextKey is the router locals key holding the Session.
const DefaultSessionContextKey = "session"

// DefaultAuthScheme is the Authorization header scheme.
const DefaultAuthScheme = "Bearer"

// RouteGuard protects routes with session verification and role checks. It
// reads the session token from the Authorization header, falling back to the
// session cookie, and makes the verified Session available through the
// router locals and the standard context.
type RouteGuard struct {
	sessions     SessionIssuer
	contextKey   string
	authScheme   string
	cookieName   string
	logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// RouteGuardOption customizes the guard.
type RouteGuardOption func(*RouteGuard)

// WithGuardContextKey overrides the locals key for the session.
func WithGuardContextKey(key string) RouteGuardOption {
	return func(g *RouteGuard) {
		if key != "" {
			g.contextKey = key
		}
	}
}

// WithGuardCookieName overrides the fallback session cookie name.
func WithGuardCookieName(name string) RouteGuardOption {
	return func(g *RouteGuard) {
		if name != "" {
			g.cookieName = name
		}
	}
}

// WithGuardLogger overrides the logger.
func WithGuardLogger(logger Logger) RouteGuardOption {
	return func(g *RouteGuard) {
		g.logger = normalizeLogger(logger)
	}
}

// NewRouteGuard returns a new guard backed by the given session issuer.
func NewRouteGuard(sessions SessionIssuer, opts ...RouteGuardOption) *RouteGuard {
	g := &RouteGuard{
		sessions:   sessions,
		contextKey: DefaultSessionContextKey,
		authScheme: DefaultAuthScheme,
		cookieName: DefaultSessionContextKey,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	if g.ErrorHandler == nil {
		g.ErrorHandler = g.defaultErrHandler
	}

	return g
}

// Protected verifies the session token before the handler runs.
func (g *RouteGuard) Protected() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			raw, err := g.extractToken(c)
			if err != nil {
				return g.ErrorHandler(c, err)
			}

			session, err := g.sessions.SessionFromToken(raw)
			if err != nil {
				return g.ErrorHandler(c, err)
			}

			c.Locals(g.contextKey, session)
			c.SetContext(WithSessionContext(c.Context(), session))

			return hf(c)
		}
	}
}

// RequireRoles refuses sessions holding none of the given roles. It expects
// Protected to have run earlier in the chain.
func (g *RouteGuard) RequireRoles(required ...RoleName) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			session := g.SessionFromRouter(c)
			if session == nil {
				return g.ErrorHandler(c, ErrSessionInvalid)
			}

			if err := RequireAnyRole(session, required...); err != nil {
				return g.ErrorHandler(c, err)
			}

			return hf(c)
		}
	}
}

// SessionFromRouter returns the verified session stored by Protected, or nil.
func (g *RouteGuard) SessionFromRouter(c router.Context) Session {
	if session, ok := c.Locals(g.contextKey).(Session); ok {
		return session
	}

	if session, ok := SessionFromContext(c.Context()); ok {
		return session
	}

	return nil
}

// SetSessionCookie stores the session token in an HTTP only cookie.
func (g *RouteGuard) SetSessionCookie(c router.Context, token string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// ClearSessionCookie expires the session cookie.
func (g *RouteGuard) ClearSessionCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     g.cookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) extractToken(c router.Context) (string, error) {
	header := c.GetString(router.HeaderAuthorization, "")
	if header != "" {
		l := len(g.authScheme)
		if len(header) > l+1 && strings.EqualFold(header[:l], g.authScheme) {
			return strings.TrimSpace(header[l:]), nil
		}
		return "", ErrSessionInvalid
	}

	if token := c.Cookies(g.cookieName); token != "" {
		return token, nil
	}

	return "", ErrSessionInvalid
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	g.logger.Info(
		"route guard rejected request %s %s: %s %s",
		c.Method(),
		c.Path(),
		richErr.Message,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status == 0 {
		switch richErr.Category {
		case goerrors.CategoryAuthz:
			status = http.StatusForbidden
		case goerrors.CategoryAuth:
			status = http.StatusUnauthorized
		default:
			status = http.StatusInternalServerError
		}
	}

	return c.JSON(status, map[string]any{
		"error": richErr,
	})
}
