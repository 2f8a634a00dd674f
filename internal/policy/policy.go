// Package policy holds the role based access table and the guard that enforces it.
//
// The table is the single source of truth for authorization: every route makes
// exactly one Guard call naming its resource and ability. A (role, resource)
// pair absent from the table, or an ability not listed for a present pair, is
// denied. There are no explicit deny entries.
package policy

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleSales   Role = "SALES"
	RoleSupport Role = "SUPPORT"
)

// Resource names a protected area of the application.
type Resource string

const (
	ResourceDashboard Resource = "dashboard"
	ResourceCustomers Resource = "customers"
	ResourceProducts  Resource = "products"
	ResourceSales     Resource = "sales"
	ResourceUsers     Resource = "users"
	ResourceTickets   Resource = "tickets"
	ResourceReports   Resource = "reports"
	ResourceAudit     Resource = "audit"
	ResourceCalendar  Resource = "calendar"
)

// Ability is an operation class granted per role and resource.
type Ability string

const (
	Read   Ability = "read"
	Create Ability = "create"
	Update Ability = "update"
	Delete Ability = "delete"
)

// Roles lists every role.
var Roles = []Role{RoleAdmin, RoleSales, RoleSupport}

// Resources lists every resource.
var Resources = []Resource{
	ResourceDashboard, ResourceCustomers, ResourceProducts, ResourceSales, ResourceUsers,
	ResourceTickets, ResourceReports, ResourceAudit, ResourceCalendar,
}

// Abilities lists every ability.
var Abilities = []Ability{Read, Create, Update, Delete}

type abilitySet map[Ability]struct{}

func set(abilities ...Ability) abilitySet {
	s := make(abilitySet, len(abilities))
	for _, a := range abilities {
		s[a] = struct{}{}
	}
	return s
}

var crud = []Ability{Read, Create, Update, Delete}

// table is never mutated after package initialisation.
var table = map[Role]map[Resource]abilitySet{
	RoleAdmin: {
		ResourceDashboard: set(Read),
		ResourceCustomers: set(crud...),
		ResourceProducts:  set(crud...),
		ResourceSales:     set(crud...),
		ResourceUsers:     set(crud...),
		ResourceTickets:   set(crud...),
		ResourceReports:   set(Read),
		ResourceAudit:     set(Read),
		ResourceCalendar:  set(Read),
	},
	RoleSales: {
		ResourceDashboard: set(Read),
		ResourceCustomers: set(Read, Create, Update),
		ResourceProducts:  set(Read),
		ResourceSales:     set(crud...),
		ResourceReports:   set(Read),
		ResourceTickets:   set(Read),
		ResourceAudit:     set(),
		ResourceCalendar:  set(Read),
	},
	RoleSupport: {
		ResourceDashboard: set(Read),
		ResourceCustomers: set(Read, Update),
		ResourceProducts:  set(Read),
		ResourceSales:     set(Read),
		ResourceReports:   set(Read),
		ResourceUsers:     set(),
		ResourceTickets:   set(Read, Create, Update),
		ResourceAudit:     set(),
		ResourceCalendar:  set(Read),
	},
}

// Can reports whether role may perform ability on resource.
func Can(role Role, resource Resource, ability Ability) bool {
	byResource, ok := table[role]
	if !ok {
		return false
	}
	abilities, ok := byResource[resource]
	if !ok {
		return false
	}
	_, ok = abilities[ability]
	return ok
}

// Grants returns the abilities role holds per resource, omitting empty entries.
func Grants(role Role) map[Resource][]Ability {
	out := make(map[Resource][]Ability)
	for _, res := range Resources {
		for _, a := range Abilities {
			if Can(role, res, a) {
				out[res] = append(out[res], a)
			}
		}
	}
	return out
}

// ParseRole validates a stored role name.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}
