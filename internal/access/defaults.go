package access

// Platform roles. Superadmin bypasses permission resolution entirely.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleTeacher    = "teacher"
	RoleStudent    = "student"
	RoleParent     = "parent"
)

// Permission keys used across the platform.
const (
	PermViewResults      = "viewResults"
	PermViewAssignments  = "viewAssignments"
	PermViewTimetable    = "viewTimetable"
	PermViewMessages     = "viewMessages"
	PermSendMessages     = "sendMessages"
	PermEditResults      = "editResults"
	PermManageTimetable  = "manageTimetable"
	PermManageStudents   = "manageStudents"
	PermManageStaff      = "manageStaff"
	PermManageSchools    = "manageSchools"
	PermManageOverrides  = "managePermissions"
	PermProvisionUsers   = "provisionUsers"
	PermResetCredentials = "resetCredentials"
)

// defaultPermissionTable is the static, process-wide fallback matrix. It
// exists so a newly registered school is immediately usable without any
// configuration. Immutable at runtime.
var defaultPermissionTable = map[string]map[string]bool{
	RoleAdmin: {
		PermViewResults:      true,
		PermViewAssignments:  true,
		PermViewTimetable:    true,
		PermViewMessages:     true,
		PermSendMessages:     true,
		PermEditResults:      true,
		PermManageTimetable:  true,
		PermManageStudents:   true,
		PermManageStaff:      true,
		PermManageOverrides:  true,
		PermProvisionUsers:   true,
		PermResetCredentials: true,
	},
	RoleTeacher: {
		PermViewResults:     true,
		PermViewAssignments: true,
		PermViewTimetable:   true,
		PermViewMessages:    true,
		PermSendMessages:    true,
		PermEditResults:     true,
	},
	RoleStudent: {
		PermViewResults:     true,
		PermViewAssignments: true,
		PermViewTimetable:   true,
		PermViewMessages:    true,
		PermSendMessages:    false,
	},
	RoleParent: {
		PermViewResults:   true,
		PermViewTimetable: true,
		PermViewMessages:  true,
		PermSendMessages:  true,
	},
}

// DefaultAllowed looks up the static default table; absent entries deny.
func DefaultAllowed(role, key string) bool {
	return defaultPermissionTable[role][key]
}
