package model

import (
	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleSupervisor UserRole = "SUPERVISOR"
	UserRoleOperator   UserRole = "OPERATOR"
	UserRoleViewer     UserRole = "VIEWER"
)

type Principal struct {
	UserID uuid.UUID
	Role   UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}

// CanManageAlerts covers status transitions on detected alerts and manual
// cycle triggers.
func (p Principal) CanManageAlerts() bool {
	return p.Role == UserRoleAdmin || p.Role == UserRoleSupervisor || p.Role == UserRoleOperator
}

func (p Principal) CanExportReports() bool {
	return p.Role != ""
}
