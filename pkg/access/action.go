package access

// Action is a privileged operation inside a module. Module visibility is
// checked first; actions narrow what a visible module lets a role do.
type Action string

const (
	ActionCreateAnnouncement Action = "announcement:create"
	ActionDeleteAnnouncement Action = "announcement:delete"
	ActionDeleteContent      Action = "content:delete"
	ActionIssueInvoice       Action = "invoice:create"
	ActionInviteUser         Action = "user:invite"
	ActionChangeRole         Action = "user:change-role"
	ActionGrantSuperAdmin    Action = "user:grant-super-admin"
	ActionUpdateSettings     Action = "settings:update"
)

var actionTable = map[Action][]Role{
	ActionCreateAnnouncement: {RoleSuperAdmin, RoleAdmin},
	ActionDeleteAnnouncement: {RoleSuperAdmin, RoleAdmin},
	ActionDeleteContent:      {RoleSuperAdmin, RoleAdmin},
	ActionIssueInvoice:       {RoleSuperAdmin, RoleAdmin, RoleAccountant},
	ActionInviteUser:         {RoleSuperAdmin, RoleAdmin},
	ActionChangeRole:         {RoleSuperAdmin, RoleAdmin},
	ActionGrantSuperAdmin:    {RoleSuperAdmin},
	ActionUpdateSettings:     {RoleSuperAdmin},
}

// Actions returns every defined action.
func Actions() []Action {
	out := make([]Action, 0, len(actionTable))
	for a := range actionTable {
		out = append(out, a)
	}
	return out
}

// CanPerform reports whether role may carry out action. Unknown actions and
// unknown roles are denied.
func CanPerform(role Role, action Action) bool {
	for _, r := range actionTable[action] {
		if r == role {
			return true
		}
	}
	return false
}
