package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncPresence is a short-lived heartbeat recorded whenever a device completes
// a push or pull. It expires on its own; absence means the device has not
// synced recently.
type SyncPresence struct {
	DeviceID   uuid.UUID `json:"device_id"`
	FacilityID uuid.UUID `json:"facility_id"`
	LastOp     string    `json:"last_op"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

const (
	PresenceOpPush = "push"
	PresenceOpPull = "pull"
)
