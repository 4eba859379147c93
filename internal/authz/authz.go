// Package authz maps staff roles to the capabilities they hold.  Every
// protected route declares one capability; membership checks such as
// "admin or supervisor" are expressed through the same table.
package authz

import "github.com/qjdesk/complaint-desk/internal/model"

// Capability names one protected action.
type Capability string

const (
	ComplaintsRead    Capability = "complaints:read"
	ComplaintsResolve Capability = "complaints:resolve"
	UsersManage       Capability = "users:manage"
	SessionsSelf      Capability = "sessions:self"
)

var table = map[model.Role]map[Capability]bool{
	model.RoleAdmin: {
		ComplaintsRead:    true,
		ComplaintsResolve: true,
		UsersManage:       true,
		SessionsSelf:      true,
	},
	model.RoleSupervisor: {
		ComplaintsRead:    true,
		ComplaintsResolve: true,
		SessionsSelf:      true,
	},
	model.RoleStandard: {
		ComplaintsRead: true,
		SessionsSelf:   true,
	},
}

// Allowed reports whether role holds capability.  Unknown roles hold
// nothing.
func Allowed(role model.Role, c Capability) bool {
	return table[role][c]
}

// Capabilities returns the capabilities of role in a stable order.
func Capabilities(role model.Role) []Capability {
	out := make([]Capability, 0, 4)
	for _, c := range []Capability{ComplaintsRead, ComplaintsResolve, UsersManage, SessionsSelf} {
		if table[role][c] {
			out = append(out, c)
		}
	}
	return out
}
