package models

import (
	"github.com/google/uuid"
)

type Role string

const (
	RoleDevice        Role = "device"
	RoleFacilityAdmin Role = "facility_admin"
	RoleSuperAdmin    Role = "super_admin"
)

// Actor is the resolved identity behind a sync call: a device session scoped
// to exactly one tenant and one facility. Every role, including super_admin,
// must carry an explicit facility scope for sync (no bypass, for now).
type Actor struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	FacilityID uuid.UUID `json:"facility_id"`
	DeviceID   uuid.UUID `json:"device_id"`
	Role       Role      `json:"role"`
	SessionID  string    `json:"-"`
}
