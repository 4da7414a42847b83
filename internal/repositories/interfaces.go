package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
)

var ErrNotFound = errors.New("not found")

type LedgerRepository interface {
	// GetByOpIDs batch-fetches existing ledger rows for the given op ids
	// within one (tenant, facility) scope.
	GetByOpIDs(ctx context.Context, tenantID, facilityID uuid.UUID, opIDs []uuid.UUID) (map[uuid.UUID]*models.LedgerEntry, error)

	// AppendAll atomically appends all entries, assigning each a seq from the
	// facility's counter. A row whose (tenant, facility, op_id) already exists
	// is silently dropped; either the whole batch commits or none of it does.
	// Assigned seqs are written back into the entries.
	AppendAll(ctx context.Context, tenantID, facilityID uuid.UUID, entries []*models.LedgerEntry) error

	// ListSince returns up to limit entries with seq > afterSeq, ascending.
	ListSince(ctx context.Context, tenantID, facilityID uuid.UUID, afterSeq int64, limit int) ([]*models.LedgerEntry, error)

	// Head returns the row count and highest seq for one facility's log.
	Head(ctx context.Context, tenantID, facilityID uuid.UUID) (count int64, lastSeq int64, err error)
}

type FacilityRepository interface {
	Create(ctx context.Context, facility *models.Facility) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Facility, error)
}

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	ListByFacility(ctx context.Context, tenantID, facilityID uuid.UUID) ([]*models.Device, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	TouchLastSync(ctx context.Context, id uuid.UUID) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForDevice(ctx context.Context, deviceID uuid.UUID) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.SyncPresence) error
	GetPresence(ctx context.Context, deviceID uuid.UUID) (*models.SyncPresence, error)
	GetBulkPresence(ctx context.Context, deviceIDs []uuid.UUID) (map[uuid.UUID]models.SyncPresence, error)
}
