package identity

// RoleName identifies one of the fixed roles.
type RoleName string

const (
	// RoleAdmin can run every administrative operation.
	RoleAdmin RoleName = "admin"
	// RoleManager can run the admin workflow but is not the bootstrap account.
	RoleManager RoleName = "manager"
	// RoleUser is a regular account with no administrative reach.
	RoleUser RoleName = "user"
)

// AdminRoles are the roles accepted by the admin workflow gate.
var AdminRoles = []RoleName{RoleAdmin, RoleManager}

// IsValid checks if the role is one of the predefined valid roles
func (r RoleName) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	default:
		return false
	}
}

func (r RoleName) String() string {
	return string(r)
}

// AllRoles returns the closed role set seeded at bootstrap.
func AllRoles() []RoleName {
	return []RoleName{RoleAdmin, RoleManager, RoleUser}
}

// ParseRole safely parses a string into a RoleName type
func ParseRole(roleStr string) (RoleName, bool) {
	role := RoleName(roleStr)
	return role, role.IsValid()
}

// ContainsRole reports membership of role in the given set.
func ContainsRole(roles []RoleName, role RoleName) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// ContainsAnyRole reports whether the set holds at least one of the required roles.
func ContainsAnyRole(roles []RoleName, required ...RoleName) bool {
	for _, want := range required {
		if ContainsRole(roles, want) {
			return true
		}
	}
	return false
}

// RequireAnyRole is the authorization gate used by the admin workflow: the
// acting session must hold at least one of the required roles.
func RequireAnyRole(session Session, required ...RoleName) error {
	if session == nil {
		return ErrForbidden
	}
	if !session.HasAnyRole(required...) {
		return ErrForbidden.WithMetadata(map[string]any{
			"user_id":  session.GetUserID(),
			"required": roleStrings(required),
		})
	}
	return nil
}

func roleStrings(roles []RoleName) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
