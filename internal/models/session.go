package models

import (
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID         string    `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	FacilityID uuid.UUID `json:"facility_id"`
	DeviceID   uuid.UUID `json:"device_id"`
	Role       Role      `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
