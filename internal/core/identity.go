package core

// Role is a user's permission tier. Tiers are ordered: a moderator can do
// everything a basic user can, an admin everything a moderator can.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Rank maps a role onto its position in the permission order.
// Unknown roles rank below RoleUser.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the permissions of other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// AccountKind distinguishes human users from registered bots.
type AccountKind string

const (
	AccountUser AccountKind = "user"
	AccountBot  AccountKind = "bot"
)

// Identity is the authenticated user record carried inside a signed token.
// It is reconstructed at token validation time and never persisted by the
// relay core itself. All fields are value types so equality is structural.
type Identity struct {
	Username     string      `json:"username"`
	Handle       string      `json:"handle"`
	Role         Role        `json:"permission_level"`
	Kind         AccountKind `json:"user_type"`
	ProviderSite string      `json:"provider_site,omitempty"`
	Banned       bool        `json:"banned"`
}
