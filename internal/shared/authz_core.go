package shared

// Client-facing operational modules.
const (
	ModuleBibliotheque     = "bibliotheque"
	ModuleVeille           = "veille"
	ModuleEvaluation       = "evaluation"
	ModuleMatrice          = "matrice"
	ModulePlanAction       = "plan_action"
	ModuleDossier          = "dossier"
	ModuleControles        = "controles"
	ModuleAudits           = "audits"
	ModuleIncidents        = "incidents"
	ModuleEquipements      = "equipements"
	ModuleFormations       = "formations"
	ModuleVisitesMedicales = "visites_medicales"
	ModuleEPI              = "epi"
	ModulePrestataires     = "prestataires"
	ModulePermis           = "permis"
	ModuleEnvironnement    = "environnement"
	ModuleRapports         = "rapports"
)

// Staff-only administration modules.
const (
	ModuleClients      = "clients"
	ModuleSites        = "sites"
	ModuleFactures     = "factures"
	ModuleAbonnements  = "abonnements"
	ModuleUtilisateurs = "utilisateurs"
	ModuleRoles        = "roles"
)

// Permission verbs.
const (
	ActionView        = "view"
	ActionCreate      = "create"
	ActionEdit        = "edit"
	ActionDelete      = "delete"
	ActionExport      = "export"
	ActionAssign      = "assign"
	ActionBulkEdit    = "bulk_edit"
	ActionUploadProof = "upload_proof"
)

// RoleSuperAdmin is the display name of the staff role allowed to provision users.
const RoleSuperAdmin = "Super Admin"

// ClientModules lists modules that can be enabled per site.
func ClientModules() []string {
	return []string{
		ModuleBibliotheque, ModuleVeille, ModuleEvaluation, ModuleMatrice, ModulePlanAction,
		ModuleDossier, ModuleControles, ModuleAudits, ModuleIncidents, ModuleEquipements,
		ModuleFormations, ModuleVisitesMedicales, ModuleEPI, ModulePrestataires, ModulePermis,
		ModuleEnvironnement, ModuleRapports,
	}
}

// AdminModules lists modules reserved to internal staff.
func AdminModules() []string {
	return []string{ModuleClients, ModuleSites, ModuleFactures, ModuleAbonnements, ModuleUtilisateurs, ModuleRoles}
}

// Actions lists every permission verb.
func Actions() []string {
	return []string{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionAssign, ActionBulkEdit, ActionUploadProof}
}

// IsKnownModule reports whether code names a catalogued module.
func IsKnownModule(code string) bool {
	for _, m := range ClientModules() {
		if m == code {
			return true
		}
	}
	for _, m := range AdminModules() {
		if m == code {
			return true
		}
	}
	return false
}

// IsKnownAction reports whether action is a catalogued verb.
func IsKnownAction(action string) bool {
	for _, a := range Actions() {
		if a == action {
			return true
		}
	}
	return false
}
