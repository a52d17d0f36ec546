package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// SessionIssuer mints and validates session credentials. Injected into the
// account manager and the route guard so the signing scheme stays swappable.
type SessionIssuer interface {
	IssueSession(user *User, roles []RoleName) (string, error)
	SessionFromToken(raw string) (Session, error)
}

// JWTSessionIssuer signs sessions as HS256 JWTs.
type JWTSessionIssuer struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

var _ SessionIssuer = (*JWTSessionIssuer)(nil)

// SessionIssuerOption customizes session issuance.
type SessionIssuerOption func(*JWTSessionIssuer)

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(d time.Duration) SessionIssuerOption {
	return func(s *JWTSessionIssuer) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithSessionIssuer sets the iss claim.
func WithSessionIssuer(issuer string) SessionIssuerOption {
	return func(s *JWTSessionIssuer) {
		s.issuer = issuer
	}
}

// WithSessionAudience sets the aud claim.
func WithSessionAudience(audience ...string) SessionIssuerOption {
	return func(s *JWTSessionIssuer) {
		if len(audience) > 0 {
			s.audience = append(jwt.ClaimStrings{}, audience...)
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionIssuerOption {
	return func(s *JWTSessionIssuer) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSessionLogger overrides the logger.
func WithSessionLogger(logger Logger) SessionIssuerOption {
	return func(s *JWTSessionIssuer) {
		s.logger = normalizeLogger(logger)
	}
}

// NewSessionIssuer returns a JWT-backed SessionIssuer.
func NewSessionIssuer(signingKey []byte, opts ...SessionIssuerOption) *JWTSessionIssuer {
	s := &JWTSessionIssuer{
		signingKey: signingKey,
		ttl:        24 * time.Hour,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// IssueSession signs a session credential for the user with its role set.
func (s *JWTSessionIssuer) IssueSession(user *User, roles []RoleName) (string, error) {
	if user == nil {
		return "", goerrors.New("user must not be nil", goerrors.CategoryBadInput)
	}

	now := s.now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UID:   user.ID.String(),
		Email: user.Email,
		Roles: roleStrings(roles),
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session")
	}

	return signedString, nil
}

// SessionFromToken parses and validates a session credential.
func (s *JWTSessionIssuer) SessionFromToken(raw string) (Session, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Error("SessionFromToken unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		s.logger.Error("SessionFromToken could not decode or validate claims")
		return nil, ErrSessionInvalid
	}

	return sessionFromClaims(claims)
}
