package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OpType string

const (
	OpTypeUpsert OpType = "upsert"
	OpTypeDelete OpType = "delete"
)

func (t OpType) Valid() bool {
	return t == OpTypeUpsert || t == OpTypeDelete
}

// SyncOp is a single client-originated mutation intent. OpID is the
// client-generated idempotency key; Data is stored and replayed verbatim,
// never interpreted by the sync core.
type SyncOp struct {
	OpID            uuid.UUID       `json:"opId"`
	EntityType      string          `json:"entityType"`
	EntityID        uuid.UUID       `json:"entityId"`
	OpType          OpType          `json:"opType"`
	Data            json.RawMessage `json:"data,omitempty"`
	ClientCreatedAt time.Time       `json:"clientCreatedAt"`
}
