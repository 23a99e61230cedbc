package access

// Role is the single effective role derived from a principal.
// Precedence is superuser > admin > staff > user; requests without an
// authenticated principal resolve to RoleAnonymous.
type Role string

const (
	RoleSuperuser Role = "superuser"
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleUser      Role = "user"
	RoleAnonymous Role = "anonymous"
)

// Action is an operation on an entity kind.
type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionMenu   Action = "menu"
)

// AllActions is the full action set used when computing access matrices.
var AllActions = []Action{ActionView, ActionAdd, ActionEdit, ActionDelete, ActionExport, ActionMenu}

// Principal is the authenticated (or anonymous) caller of a request.
type Principal struct {
	ID            int64
	Username      string
	Authenticated bool
	IsSuperuser   bool
	IsAdmin       bool
	IsStaff       bool

	// CompanyIDs are the companies the principal belongs to. They seed the
	// top level of every ownership hierarchy.
	CompanyIDs []int64
}

// Anonymous returns the principal used for unauthenticated requests.
func Anonymous() *Principal {
	return &Principal{}
}

// Role resolves the principal's effective role, most privileged flag first.
func (p *Principal) Role() Role {
	if p == nil || !p.Authenticated {
		return RoleAnonymous
	}
	switch {
	case p.IsSuperuser:
		return RoleSuperuser
	case p.IsAdmin:
		return RoleAdmin
	case p.IsStaff:
		return RoleStaff
	default:
		return RoleUser
	}
}

// Policy maps actions to per-role grants. A missing role is a denial; a
// missing action falls back to the default policy.
type Policy map[Action]map[Role]bool
