package access

import "strings"

// Role is a staff or patient category. Only the enumerated values below are
// valid; anything else is treated as "no role".
type Role string

const (
	RoleSuperAdmin    Role = "super-admin"
	RoleAdmin         Role = "admin"
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleLabTechnician Role = "lab-technician"
	RoleRadiologist   Role = "radiologist"
	RoleReceptionist  Role = "receptionist"
	RoleAccountant    Role = "accountant"
	RolePatient       Role = "patient"
)

var allRoles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleDoctor,
	RoleNurse,
	RoleLabTechnician,
	RoleRadiologist,
	RoleReceptionist,
	RoleAccountant,
	RolePatient,
}

var roleLabels = map[Role]string{
	RoleSuperAdmin:    "Super Admin",
	RoleAdmin:         "Admin",
	RoleDoctor:        "Doctor",
	RoleNurse:         "Nurse",
	RoleLabTechnician: "Lab Technician",
	RoleRadiologist:   "Radiologist",
	RoleReceptionist:  "Receptionist",
	RoleAccountant:    "Accountant",
	RolePatient:       "Patient",
}

// AllRoles returns every valid role in canonical order.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the display name of the role, or "" for an invalid role.
func (r Role) Label() string {
	return roleLabels[r]
}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts the wire value as well as display labels and common
// spellings ("Accountant", "Lab Technician", "super_admin").
func ParseRole(s string) (Role, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	r := Role(norm)
	if !r.Valid() {
		return "", false
	}
	return r, true
}
