package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one accepted op in the append-only sync ledger. Seq is
// assigned by the store at insert time and is strictly increasing within a
// (tenant, facility) scope; gaps are permitted, reordering is not. Rows are
// never updated or deleted by the sync core.
type LedgerEntry struct {
	Seq             int64           `json:"seq"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	FacilityID      uuid.UUID       `json:"facility_id"`
	OpID            uuid.UUID       `json:"op_id"`
	DeviceID        string          `json:"device_id"`
	Payload         json.RawMessage `json:"payload"`
	PayloadHash     string          `json:"payload_hash"`
	ServerCreatedAt time.Time       `json:"server_created_at"`
}
