package access

import "strings"

// Role is a user's entitlement tier. The string values are persisted.
type Role string

const (
	RoleNormal     Role = "normal"
	RolePremium    Role = "premium"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

var roleRank = map[Role]int{
	RoleNormal:     1,
	RolePremium:    2,
	RoleModerator:  3,
	RoleAdmin:      4,
	RoleSuperAdmin: 5,
}

// ParseRole maps a stored or user-supplied value onto a Role.
// Unknown values fall back to RoleNormal.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleRank[r]; ok {
		return r
	}
	return RoleNormal
}

// Rank orders roles; unknown roles rank as normal.
func (r Role) Rank() int {
	if n, ok := roleRank[r]; ok {
		return n
	}
	return roleRank[RoleNormal]
}

// Staff reports whether the role bypasses usage limits outright.
func (r Role) Staff() bool {
	return r == RoleModerator || r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) Display() string {
	switch r {
	case RoleSuperAdmin:
		return "👑 Super Admin"
	case RoleAdmin:
		return "🛡️ Admin"
	case RoleModerator:
		return "🔨 Moderator"
	case RolePremium:
		return "💎 Premium"
	default:
		return "👤 Normal"
	}
}

// CanManage reports whether manager strictly outranks target.
func CanManage(manager, target Role) bool {
	return manager.Rank() > target.Rank()
}

// CanAssign reports whether manager may grant role through admin commands.
// Only the super admin hands out staff roles; any staff member can grant premium.
// Nobody assigns normal or superadmin this way.
func CanAssign(manager, role Role) bool {
	switch role {
	case RoleAdmin, RoleModerator:
		return manager == RoleSuperAdmin
	case RolePremium:
		return manager.Staff()
	default:
		return false
	}
}
