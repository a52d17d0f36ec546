package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session holds attributes that are part of an authenticated session. It is
// the artifact Authenticate hands back; the surrounding application carries
// it in a cookie or bearer token.
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetEmail() string
	GetRoles() []RoleName
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	HasRole(role RoleName) bool
	HasAnyRole(roles ...RoleName) bool
}

var _ Session = (*SessionObject)(nil)

type SessionObject struct {
	UserID         string     `json:"user_id,omitempty"`
	Email          string     `json:"email,omitempty"`
	Roles          []RoleName `json:"roles,omitempty"`
	Audience       []string   `json:"audience,omitempty"`
	Issuer         string     `json:"issuer,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetEmail() string {
	return s.Email
}

func (s *SessionObject) GetRoles() []RoleName {
	return s.Roles
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

// HasRole checks if the session user holds a specific role
func (s *SessionObject) HasRole(role RoleName) bool {
	return ContainsRole(s.Roles, role)
}

// HasAnyRole checks if the session user holds at least one of the given roles
func (s *SessionObject) HasAnyRole(roles ...RoleName) bool {
	return ContainsAnyRole(s.Roles, roles...)
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s email=%s roles=%v iss=%s iat=%s",
		s.UserID,
		s.Email,
		s.Roles,
		s.Issuer,
		issuedAt,
	)
}

// SessionClaims is the JWT payload backing a session credential.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID   string   `json:"uid,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// UserID returns the subject user ID.
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

func sessionFromClaims(claims *SessionClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrSessionInvalid
	}

	roles := make([]RoleName, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		if role, ok := ParseRole(r); ok {
			roles = append(roles, role)
		}
	}

	session := &SessionObject{
		UserID: claims.UserID(),
		Email:  claims.Email,
		Roles:  roles,
		Issuer: claims.RegisteredClaims.Issuer,
	}

	if claims.RegisteredClaims.Audience != nil {
		session.Audience = append(session.Audience, claims.RegisteredClaims.Audience...)
	}

	if claims.RegisteredClaims.IssuedAt != nil {
		issuedAt := claims.RegisteredClaims.IssuedAt.Time
		session.IssuedAt = &issuedAt
	}

	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt := claims.RegisteredClaims.ExpiresAt.Time
		session.ExpirationDate = &expiresAt
	}

	return session, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
