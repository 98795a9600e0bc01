package access

import (
	"testing"
)

// expected mirrors the permission table independently so a change to the
// table has to be made twice.
var expected = map[Role][]ModuleID{
	RoleSuperAdmin: {
		"dashboard", "patients", "doctor-mgmt", "appointments", "billing-mgmt",
		"pharmacy-mgmt", "lab-mgmt", "radiology-mgmt", "insurance-mgmt", "cms-mgmt",
		"communications", "hr-mgmt", "reports-mgmt", "user-mgmt", "settings",
	},
	RoleAdmin: {
		"dashboard", "patients", "doctor-mgmt", "appointments", "billing-mgmt",
		"pharmacy-mgmt", "lab-mgmt", "radiology-mgmt", "insurance-mgmt", "cms-mgmt",
		"communications", "hr-mgmt", "reports-mgmt", "user-mgmt",
	},
	RoleDoctor: {
		"dashboard", "patients", "appointments", "pharmacy-mgmt", "lab-mgmt",
		"radiology-mgmt", "communications", "reports-mgmt",
	},
	RoleNurse: {
		"dashboard", "patients", "appointments", "pharmacy-mgmt", "lab-mgmt", "communications",
	},
	RoleLabTechnician: {"dashboard", "lab-mgmt", "communications"},
	RoleRadiologist:   {"dashboard", "radiology-mgmt", "communications"},
	RoleReceptionist: {
		"dashboard", "patients", "doctor-mgmt", "appointments", "communications", "hr-mgmt",
	},
	RoleAccountant: {
		"dashboard", "billing-mgmt", "insurance-mgmt", "communications", "hr-mgmt", "reports-mgmt",
	},
	RolePatient: {"dashboard", "appointments"},
}

func TestIsModuleAllowed_Exhaustive(t *testing.T) {
	for _, role := range AllRoles() {
		want := make(map[ModuleID]bool)
		for _, id := range expected[role] {
			want[id] = true
		}
		for _, m := range Modules() {
			got := IsModuleAllowed(role, m.ID)
			if got != want[m.ID] {
				t.Errorf("IsModuleAllowed(%s, %s) = %v, want %v", role, m.ID, got, want[m.ID])
			}
		}
	}
}

func TestResolveAllowedModules_CanonicalOrder(t *testing.T) {
	for _, role := range AllRoles() {
		got := ResolveAllowedModules(role)
		want := expected[role]
		if len(got) != len(want) {
			t.Fatalf("%s: expected %d modules, got %d (%v)", role, len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s: position %d = %s, want %s", role, i, got[i], want[i])
			}
		}
	}
}

func TestResolveAllowedModules_UnknownRole(t *testing.T) {
	for _, role := range []Role{"", "janitor", "Admin", "root"} {
		got := ResolveAllowedModules(role)
		if got == nil {
			t.Errorf("%q: expected empty slice, got nil", role)
		}
		if len(got) != 0 {
			t.Errorf("%q: expected no modules, got %v", role, got)
		}
		if vis := VisibleModules(role); len(vis) != 0 {
			t.Errorf("%q: expected no visible modules, got %v", role, vis)
		}
	}
}

func TestVisibleModules_Accountant(t *testing.T) {
	role, ok := ParseRole("Accountant")
	if !ok {
		t.Fatal("expected Accountant to parse")
	}

	visible := make(map[ModuleID]bool)
	for _, m := range VisibleModules(role) {
		visible[m.ID] = true
		if m.Label == "" {
			t.Errorf("module %s has no label", m.ID)
		}
	}

	for _, id := range []ModuleID{ModulePatients, ModuleDoctors} {
		if visible[id] {
			t.Errorf("accountant should not see %s", id)
		}
	}
	for _, id := range []ModuleID{ModuleBilling, ModuleReports} {
		if !visible[id] {
			t.Errorf("accountant should see %s", id)
		}
	}
}

func TestModules_RequiredRolesDerivedFromTable(t *testing.T) {
	for _, m := range Modules() {
		for _, role := range AllRoles() {
			has := false
			for _, r := range m.RequiredRoles {
				if r == role {
					has = true
				}
			}
			if has != IsModuleAllowed(role, m.ID) {
				t.Errorf("module %s: RequiredRoles contains %s = %v, table says %v",
					m.ID, role, has, IsModuleAllowed(role, m.ID))
			}
		}
	}
}

func TestEveryRoleSeesDashboard(t *testing.T) {
	for _, role := range AllRoles() {
		if !IsModuleAllowed(role, DefaultModule) {
			t.Errorf("%s cannot open the default module", role)
		}
	}
}

func TestGuardModule(t *testing.T) {
	tests := []struct {
		role Role
		id   ModuleID
		want ModuleID
	}{
		{RoleAccountant, ModuleBilling, ModuleBilling},
		{RoleAccountant, ModulePatients, ModuleDashboard},
		{RolePatient, ModuleSettings, ModuleDashboard},
		{RoleSuperAdmin, ModuleSettings, ModuleSettings},
		{RoleAdmin, "no-such-module", ModuleDashboard},
		{"", ModuleDashboard, ""},
	}
	for _, tt := range tests {
		if got := GuardModule(tt.role, tt.id); got != tt.want {
			t.Errorf("GuardModule(%q, %q) = %q, want %q", tt.role, tt.id, got, tt.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"accountant", RoleAccountant, true},
		{"Accountant", RoleAccountant, true},
		{" Lab Technician ", RoleLabTechnician, true},
		{"super_admin", RoleSuperAdmin, true},
		{"SUPER-ADMIN", RoleSuperAdmin, true},
		{"janitor", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCanPerform(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionDeleteAnnouncement, true},
		{RoleDoctor, ActionDeleteAnnouncement, false},
		{RoleNurse, ActionCreateAnnouncement, false},
		{RoleAccountant, ActionIssueInvoice, true},
		{RoleReceptionist, ActionIssueInvoice, false},
		{RoleAdmin, ActionGrantSuperAdmin, false},
		{RoleSuperAdmin, ActionGrantSuperAdmin, true},
		{RoleAdmin, ActionUpdateSettings, false},
		{"", ActionInviteUser, false},
		{RoleSuperAdmin, "unknown:action", false},
	}
	for _, tt := range tests {
		if got := CanPerform(tt.role, tt.action); got != tt.want {
			t.Errorf("CanPerform(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestActionRolesAreValid(t *testing.T) {
	for _, a := range Actions() {
		for _, r := range actionTable[a] {
			if !r.Valid() {
				t.Errorf("action %s lists invalid role %q", a, r)
			}
		}
	}
}

func TestResourceModule(t *testing.T) {
	for _, r := range resourceOrder {
		m, ok := ResourceModule(r)
		if !ok {
			t.Errorf("resource %s has no module", r)
			continue
		}
		if _, ok := LookupModule(m); !ok {
			t.Errorf("resource %s maps to unknown module %s", r, m)
		}
	}
	if _, ok := ResourceModule("spaceships"); ok {
		t.Error("expected unknown resource to have no module")
	}
	if !CanAccessResource(RoleAccountant, ResourceInvoices) {
		t.Error("accountant should access invoices")
	}
	if CanAccessResource(RoleAccountant, ResourcePatients) {
		t.Error("accountant should not access patients")
	}
}

func TestResourcesIn(t *testing.T) {
	got := ResourcesIn(ModuleCMS)
	want := []string{ResourceCMSPages, ResourceBlogs, ResourceSliders, ResourceSEOEntries}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i], want[i])
		}
	}
	if len(ResourcesIn(ModuleDashboard)) != 0 {
		t.Error("dashboard owns no collections")
	}
}

func TestCanWrite(t *testing.T) {
	tests := []struct {
		role     Role
		resource string
		op       Operation
		want     bool
	}{
		{RoleReceptionist, ResourcePatients, OpCreate, true},
		{RoleReceptionist, ResourcePatients, OpDelete, false},
		{RoleAccountant, ResourcePatients, OpCreate, false},
		{RoleAccountant, ResourceInvoices, OpCreate, true},
		{RoleDoctor, ResourceAnnouncements, OpCreate, false},
		{RoleDoctor, ResourceAnnouncements, OpDelete, false},
		{RoleAdmin, ResourceAnnouncements, OpDelete, true},
		{RoleAdmin, ResourceBlogs, OpDelete, true},
		{RoleAdmin, ResourceSettings, OpUpdate, false},
		{RoleSuperAdmin, ResourceSettings, OpUpdate, true},
		{RoleAdmin, ResourceUsers, OpUpdate, true},
		{"", ResourcePatients, OpCreate, false},
		{RoleSuperAdmin, "spaceships", OpCreate, false},
	}
	for _, tt := range tests {
		if got := CanWrite(tt.role, tt.resource, tt.op); got != tt.want {
			t.Errorf("CanWrite(%q, %s, %s) = %v, want %v", tt.role, tt.resource, tt.op, got, tt.want)
		}
	}
}

func TestResourceActionsUseKnownResources(t *testing.T) {
	for r, ops := range resourceActions {
		if _, ok := ResourceModule(r); !ok {
			t.Errorf("action entry for unknown resource %s", r)
		}
		for op, a := range ops {
			if _, ok := actionTable[a]; !ok {
				t.Errorf("%s %s requires undefined action %s", r, op, a)
			}
		}
	}
}
