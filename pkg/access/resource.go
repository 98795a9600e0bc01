package access

// Resource names double as the collection path segment under /api/v1.
const (
	ResourcePatients          = "patients"
	ResourceDoctors           = "doctors"
	ResourceAppointments      = "appointments"
	ResourceInvoices          = "invoices"
	ResourceLabSamples        = "lab-samples"
	ResourceRadiologyOrders   = "radiology-orders"
	ResourcePharmacyInventory = "pharmacy-inventory"
	ResourceInsurancePanels   = "insurance-panels"
	ResourceInsuranceClaims   = "insurance-claims"
	ResourceCMSPages          = "cms-pages"
	ResourceBlogs             = "blogs"
	ResourceSliders           = "sliders"
	ResourceSEOEntries        = "seo-entries"
	ResourceAnnouncements     = "announcements"
	ResourceLeaveRequests     = "leave-requests"
	ResourceCustomReports     = "custom-reports"
	ResourceSettings          = "settings"
	ResourceUsers             = "users"
)

var resourceModules = map[string]ModuleID{
	ResourcePatients:          ModulePatients,
	ResourceDoctors:           ModuleDoctors,
	ResourceAppointments:      ModuleAppointments,
	ResourceInvoices:          ModuleBilling,
	ResourceLabSamples:        ModuleLab,
	ResourceRadiologyOrders:   ModuleRadiology,
	ResourcePharmacyInventory: ModulePharmacy,
	ResourceInsurancePanels:   ModuleInsurance,
	ResourceInsuranceClaims:   ModuleInsurance,
	ResourceCMSPages:          ModuleCMS,
	ResourceBlogs:             ModuleCMS,
	ResourceSliders:           ModuleCMS,
	ResourceSEOEntries:        ModuleCMS,
	ResourceAnnouncements:     ModuleComms,
	ResourceLeaveRequests:     ModuleHR,
	ResourceCustomReports:     ModuleReports,
	ResourceSettings:          ModuleSettings,
	ResourceUsers:             ModuleUsers,
}

// ResourceModule returns the module that owns a resource collection.
func ResourceModule(resource string) (ModuleID, bool) {
	m, ok := resourceModules[resource]
	return m, ok
}

// CanAccessResource reports whether role may read the resource collection.
func CanAccessResource(role Role, resource string) bool {
	m, ok := resourceModules[resource]
	return ok && IsModuleAllowed(role, m)
}

// ResourcesIn returns the resource collections owned by a module, in a stable
// order.
func ResourcesIn(id ModuleID) []string {
	var out []string
	for _, r := range resourceOrder {
		if resourceModules[r] == id {
			out = append(out, r)
		}
	}
	return out
}

var resourceOrder = []string{
	ResourcePatients,
	ResourceDoctors,
	ResourceAppointments,
	ResourceInvoices,
	ResourcePharmacyInventory,
	ResourceLabSamples,
	ResourceRadiologyOrders,
	ResourceInsurancePanels,
	ResourceInsuranceClaims,
	ResourceCMSPages,
	ResourceBlogs,
	ResourceSliders,
	ResourceSEOEntries,
	ResourceAnnouncements,
	ResourceLeaveRequests,
	ResourceCustomReports,
	ResourceUsers,
	ResourceSettings,
}

// Operation is a write against a resource collection.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// resourceActions lists the action each write needs beyond module access.
// A collection without an OpDelete entry cannot be deleted.
var resourceActions = map[string]map[Operation]Action{
	ResourceInvoices:   {OpCreate: ActionIssueInvoice, OpUpdate: ActionIssueInvoice},
	ResourceCMSPages:   {OpDelete: ActionDeleteContent},
	ResourceBlogs:      {OpDelete: ActionDeleteContent},
	ResourceSliders:    {OpDelete: ActionDeleteContent},
	ResourceSEOEntries: {OpDelete: ActionDeleteContent},
	ResourceAnnouncements: {
		OpCreate: ActionCreateAnnouncement,
		OpUpdate: ActionCreateAnnouncement,
		OpDelete: ActionDeleteAnnouncement,
	},
	ResourceSettings: {OpCreate: ActionUpdateSettings, OpUpdate: ActionUpdateSettings},
	ResourceUsers:    {OpCreate: ActionInviteUser, OpUpdate: ActionChangeRole},
}

// ResourceAction returns the action op on resource requires, if any.
func ResourceAction(resource string, op Operation) (Action, bool) {
	a, ok := resourceActions[resource][op]
	return a, ok
}

// Deletable reports whether records of resource may be deleted at all.
func Deletable(resource string) bool {
	_, ok := ResourceAction(resource, OpDelete)
	return ok
}

// CanWrite reports whether role may perform op on resource: the owning
// module must be visible and any required action allowed.
func CanWrite(role Role, resource string, op Operation) bool {
	if !CanAccessResource(role, resource) {
		return false
	}
	if op == OpDelete && !Deletable(resource) {
		return false
	}
	a, ok := ResourceAction(resource, op)
	return !ok || CanPerform(role, a)
}
