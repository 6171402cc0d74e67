package domain

import "strings"

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleHR         = "HR"
	RoleManager    = "MANAGER"
	RoleEmployee   = "EMPLOYEE"
)

// PrivilegedRoles may read everyone's attendance and get the longer first idle threshold.
var PrivilegedRoles = []string{RoleSuperAdmin, RoleAdmin, RoleHR, RoleManager}

func IsPrivilegedRole(role string) bool {
	role = strings.ToUpper(strings.TrimSpace(role))
	for _, r := range PrivilegedRoles {
		if r == role {
			return true
		}
	}
	return false
}
