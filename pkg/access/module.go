package access

// ModuleID identifies a top-level administrative screen.
type ModuleID string

const (
	ModuleDashboard    ModuleID = "dashboard"
	ModulePatients     ModuleID = "patients"
	ModuleDoctors      ModuleID = "doctor-mgmt"
	ModuleAppointments ModuleID = "appointments"
	ModuleBilling      ModuleID = "billing-mgmt"
	ModulePharmacy     ModuleID = "pharmacy-mgmt"
	ModuleLab          ModuleID = "lab-mgmt"
	ModuleRadiology    ModuleID = "radiology-mgmt"
	ModuleInsurance    ModuleID = "insurance-mgmt"
	ModuleCMS          ModuleID = "cms-mgmt"
	ModuleComms        ModuleID = "communications"
	ModuleHR           ModuleID = "hr-mgmt"
	ModuleReports      ModuleID = "reports-mgmt"
	ModuleUsers        ModuleID = "user-mgmt"
	ModuleSettings     ModuleID = "settings"
)

// DefaultModule is where navigation lands after login and after a denied
// module switch.
const DefaultModule = ModuleDashboard

// Module is a menu entry. RequiredRoles lists the roles that may open it and
// is derived from the permission table.
type Module struct {
	ID            ModuleID `json:"id"`
	Label         string   `json:"label"`
	RequiredRoles []Role   `json:"-"`
}

// catalogue is the canonical menu order. Every resolver result follows it.
var catalogue = []Module{
	{ID: ModuleDashboard, Label: "Dashboard"},
	{ID: ModulePatients, Label: "Patients"},
	{ID: ModuleDoctors, Label: "Doctor Management"},
	{ID: ModuleAppointments, Label: "Appointments"},
	{ID: ModuleBilling, Label: "Billing"},
	{ID: ModulePharmacy, Label: "Pharmacy"},
	{ID: ModuleLab, Label: "Laboratory"},
	{ID: ModuleRadiology, Label: "Radiology"},
	{ID: ModuleInsurance, Label: "Insurance"},
	{ID: ModuleCMS, Label: "Website CMS"},
	{ID: ModuleComms, Label: "Communications"},
	{ID: ModuleHR, Label: "Human Resources"},
	{ID: ModuleReports, Label: "Reports"},
	{ID: ModuleUsers, Label: "User Management"},
	{ID: ModuleSettings, Label: "Settings"},
}

var catalogueIndex = func() map[ModuleID]int {
	idx := make(map[ModuleID]int, len(catalogue))
	for i, m := range catalogue {
		idx[m.ID] = i
	}
	return idx
}()

func init() {
	for i := range catalogue {
		for _, r := range allRoles {
			if IsModuleAllowed(r, catalogue[i].ID) {
				catalogue[i].RequiredRoles = append(catalogue[i].RequiredRoles, r)
			}
		}
	}
}

// Modules returns the full catalogue in menu order.
func Modules() []Module {
	out := make([]Module, len(catalogue))
	copy(out, catalogue)
	return out
}

// LookupModule returns the catalogue entry for id.
func LookupModule(id ModuleID) (Module, bool) {
	i, ok := catalogueIndex[id]
	if !ok {
		return Module{}, false
	}
	return catalogue[i], true
}
