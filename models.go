package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenPurpose discriminates the account token flows.
type TokenPurpose string

const (
	// PurposeConfirmEmail proves control of the registered email address.
	PurposeConfirmEmail TokenPurpose = "confirm-email"
	// PurposeResetPassword authorizes a password change without the old password.
	PurposeResetPassword TokenPurpose = "reset-password"
)

// IsValid reports whether the purpose is one of the supported flows.
func (p TokenPurpose) IsValid() bool {
	switch p {
	case PurposeConfirmEmail, PurposeResetPassword:
		return true
	default:
		return false
	}
}

// User is the account model. Email is stored lowercased and unique at the
// storage layer. Version backs optimistic concurrency on updates.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName       string     `bun:"full_name,notnull" json:"full_name,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	EmailConfirmed bool       `bun:"email_confirmed,notnull,default:false" json:"email_confirmed"`
	IsApproved     bool       `bun:"is_approved,notnull,default:false" json:"is_approved"`
	Version        int64      `bun:"version,notnull,default:0" json:"-"`
	Roles          []*Role    `bun:"m2m:user_roles,join:User=Role" json:"roles,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// CanAuthenticate returns the typed gate error blocking a login, or nil when
// both gates hold. Confirmation is reported before approval so the user
// learns the next step they control.
func (u *User) CanAuthenticate() error {
	if u == nil {
		return ErrInvalidCredentials
	}
	if !u.EmailConfirmed {
		return ErrEmailNotConfirmed
	}
	if !u.IsApproved {
		return ErrPendingApproval
	}
	return nil
}

// RoleNames returns the names of the loaded role memberships.
func (u *User) RoleNames() []RoleName {
	if u == nil || len(u.Roles) == 0 {
		return nil
	}
	names := make([]RoleName, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r != nil {
			names = append(names, RoleName(r.Name))
		}
	}
	return names
}

// Role is one of the fixed role set. Roles are seeded at bootstrap and are
// not user-creatable through the public surface.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserRole is the membership join row. Assignment is additive: inserting an
// existing pair is a no-op.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:usrrol"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id,omitempty"`
	User          *User     `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid" json:"role_id,omitempty"`
	Role          *Role     `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
}

// AccessToken is a single-use account token. Only the digest of the opaque
// value is persisted; the value itself leaves the process exactly once, in
// the notification email.
type AccessToken struct {
	bun.BaseModel `bun:"table:access_tokens,alias:tok"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	Digest        string       `bun:"digest,notnull,unique" json:"-"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumed reports whether the token was already redeemed.
func (t *AccessToken) Consumed() bool {
	return t != nil && t.ConsumedAt != nil
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *AccessToken) Expired(now time.Time) bool {
	return t != nil && !now.Before(t.ExpiresAt)
}

// NormalizeEmail lowercases and trims an email so lookups and the unique
// index agree on a canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
