package access

// DefaultPolicy applies to every entity kind without an override for a given
// action. Every action defines a value for every role so that fallbacks never
// consult a partially specified row.
var DefaultPolicy = Policy{
	ActionView: {
		RoleSuperuser: true,
		RoleAdmin:     true,
		RoleStaff:     true,
		RoleUser:      true,
		RoleAnonymous: false,
	},
	ActionAdd: {
		RoleSuperuser: true,
		RoleAdmin:     true,
		RoleStaff:     false,
		RoleUser:      false,
		RoleAnonymous: false,
	},
	ActionEdit: {
		RoleSuperuser: true,
		RoleAdmin:     true,
		RoleStaff:     false,
		RoleUser:      false,
		RoleAnonymous: false,
	},
	ActionDelete: {
		RoleSuperuser: true,
		RoleAdmin:     true,
		RoleStaff:     false,
		RoleUser:      false,
		RoleAnonymous: false,
	},
	ActionExport: {
		RoleSuperuser: true,
		RoleAdmin:     true,
		RoleStaff:     true,
		RoleUser:      false,
		RoleAnonymous: false,
	},
	ActionMenu: {
		RoleSuperuser: true,
		RoleAdmin:     true,
		RoleStaff:     true,
		RoleUser:      true,
		RoleAnonymous: false,
	},
}

// DefaultOverrides is the shipped per-kind override table. Overrides may
// specify a subset of actions and, within an action, a subset of roles;
// anything missing falls back to DefaultPolicy.
var DefaultOverrides = map[string]Policy{
	"companies": {
		ActionView:   {RoleStaff: false, RoleUser: false},
		ActionAdd:    {RoleAdmin: false},
		ActionEdit:   {RoleAdmin: false},
		ActionDelete: {RoleAdmin: false},
		ActionExport: {RoleStaff: false},
		ActionMenu:   {RoleStaff: false, RoleUser: false},
	},
	"factories": {
		ActionAdd:  {RoleStaff: true},
		ActionEdit: {RoleStaff: true},
	},
	"machines": {
		ActionAdd:    {RoleStaff: true},
		ActionEdit:   {RoleStaff: true},
		ActionDelete: {RoleStaff: true},
	},
	"measurements": {
		ActionAdd:    {RoleStaff: true, RoleUser: true},
		ActionEdit:   {RoleStaff: true},
		ActionExport: {RoleUser: true},
	},
	"reports": {
		ActionExport: {RoleUser: true},
	},
}
