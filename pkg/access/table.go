package access

// permissionTable maps each role to the modules it may see. Order inside an
// entry does not matter: resolver output always follows the catalogue.
var permissionTable = map[Role][]ModuleID{
	RoleSuperAdmin: {
		ModuleDashboard, ModulePatients, ModuleDoctors, ModuleAppointments,
		ModuleBilling, ModulePharmacy, ModuleLab, ModuleRadiology, ModuleInsurance,
		ModuleCMS, ModuleComms, ModuleHR, ModuleReports, ModuleUsers, ModuleSettings,
	},
	RoleAdmin: {
		ModuleDashboard, ModulePatients, ModuleDoctors, ModuleAppointments,
		ModuleBilling, ModulePharmacy, ModuleLab, ModuleRadiology, ModuleInsurance,
		ModuleCMS, ModuleComms, ModuleHR, ModuleReports, ModuleUsers,
	},
	RoleDoctor: {
		ModuleDashboard, ModulePatients, ModuleAppointments, ModulePharmacy,
		ModuleLab, ModuleRadiology, ModuleComms, ModuleReports,
	},
	RoleNurse: {
		ModuleDashboard, ModulePatients, ModuleAppointments, ModulePharmacy,
		ModuleLab, ModuleComms,
	},
	RoleLabTechnician: {
		ModuleDashboard, ModuleLab, ModuleComms,
	},
	RoleRadiologist: {
		ModuleDashboard, ModuleRadiology, ModuleComms,
	},
	RoleReceptionist: {
		ModuleDashboard, ModulePatients, ModuleDoctors, ModuleAppointments,
		ModuleComms, ModuleHR,
	},
	RoleAccountant: {
		ModuleDashboard, ModuleBilling, ModuleInsurance, ModuleComms,
		ModuleHR, ModuleReports,
	},
	RolePatient: {
		ModuleDashboard, ModuleAppointments,
	},
}

var allowedSets = func() map[Role]map[ModuleID]bool {
	sets := make(map[Role]map[ModuleID]bool, len(permissionTable))
	for role, mods := range permissionTable {
		set := make(map[ModuleID]bool, len(mods))
		for _, m := range mods {
			set[m] = true
		}
		sets[role] = set
	}
	return sets
}()

// ResolveAllowedModules returns the module ids role may see, in canonical
// menu order. An unknown or empty role resolves to an empty slice.
func ResolveAllowedModules(role Role) []ModuleID {
	set, ok := allowedSets[role]
	if !ok {
		return []ModuleID{}
	}
	out := make([]ModuleID, 0, len(set))
	for _, m := range catalogue {
		if set[m.ID] {
			out = append(out, m.ID)
		}
	}
	return out
}

// IsModuleAllowed reports whether role may open module id.
func IsModuleAllowed(role Role, id ModuleID) bool {
	return allowedSets[role][id]
}

// VisibleModules returns the menu for role in canonical order.
func VisibleModules(role Role) []Module {
	ids := ResolveAllowedModules(role)
	out := make([]Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, catalogue[catalogueIndex[id]])
	}
	return out
}

// GuardModule returns id when role may open it, otherwise the default
// module. A role that sees nothing gets "".
func GuardModule(role Role, id ModuleID) ModuleID {
	if IsModuleAllowed(role, id) {
		return id
	}
	if IsModuleAllowed(role, DefaultModule) {
		return DefaultModule
	}
	return ""
}
