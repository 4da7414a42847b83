package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
)

type facilityKey struct {
	tenantID   uuid.UUID
	facilityID uuid.UUID
}

// MemoryLedgerRepository is an in-memory LedgerRepository with the same
// semantics as the Postgres one: per-facility monotonic seq blocks, silent
// drop on an (tenant, facility, op_id) conflict, all-or-nothing appends.
// Used by hermetic tests and embedded runs.
type MemoryLedgerRepository struct {
	mu      sync.Mutex
	logs    map[facilityKey][]*models.LedgerEntry
	byOp    map[facilityKey]map[uuid.UUID]*models.LedgerEntry
	lastSeq map[facilityKey]int64
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		logs:    make(map[facilityKey][]*models.LedgerEntry),
		byOp:    make(map[facilityKey]map[uuid.UUID]*models.LedgerEntry),
		lastSeq: make(map[facilityKey]int64),
	}
}

func (r *MemoryLedgerRepository) GetByOpIDs(ctx context.Context, tenantID, facilityID uuid.UUID, opIDs []uuid.UUID) (map[uuid.UUID]*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := facilityKey{tenantID, facilityID}
	existing := make(map[uuid.UUID]*models.LedgerEntry, len(opIDs))
	for _, opID := range opIDs {
		if entry, ok := r.byOp[key][opID]; ok {
			existing[opID] = entry
		}
	}
	return existing, nil
}

func (r *MemoryLedgerRepository) AppendAll(ctx context.Context, tenantID, facilityID uuid.UUID, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := facilityKey{tenantID, facilityID}
	if r.byOp[key] == nil {
		r.byOp[key] = make(map[uuid.UUID]*models.LedgerEntry)
	}

	// Reserve a seq block up front; conflicting rows are dropped and leave
	// gaps, matching the store-backed implementation.
	base := r.lastSeq[key]
	r.lastSeq[key] = base + int64(len(entries))

	for i, entry := range entries {
		entry.Seq = base + int64(i) + 1
		if _, exists := r.byOp[key][entry.OpID]; exists {
			continue
		}
		r.byOp[key][entry.OpID] = entry
		r.logs[key] = append(r.logs[key], entry)
	}
	return nil
}

func (r *MemoryLedgerRepository) ListSince(ctx context.Context, tenantID, facilityID uuid.UUID, afterSeq int64, limit int) ([]*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := facilityKey{tenantID, facilityID}
	var page []*models.LedgerEntry
	for _, entry := range r.logs[key] {
		if entry.Seq <= afterSeq {
			continue
		}
		page = append(page, entry)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (r *MemoryLedgerRepository) Head(ctx context.Context, tenantID, facilityID uuid.UUID) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := facilityKey{tenantID, facilityID}
	log := r.logs[key]
	if len(log) == 0 {
		return 0, 0, nil
	}
	return int64(len(log)), log[len(log)-1].Seq, nil
}

// MemoryFacilityRepository is an in-memory FacilityRepository for tests and
// embedded runs.
type MemoryFacilityRepository struct {
	mu         sync.Mutex
	facilities map[uuid.UUID]*models.Facility
}

func NewMemoryFacilityRepository() *MemoryFacilityRepository {
	return &MemoryFacilityRepository{facilities: make(map[uuid.UUID]*models.Facility)}
}

func (r *MemoryFacilityRepository) Create(ctx context.Context, facility *models.Facility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if facility.ID == uuid.Nil {
		facility.ID = uuid.New()
	}
	if facility.CreatedAt.IsZero() {
		facility.CreatedAt = time.Now().UTC()
	}
	r.facilities[facility.ID] = facility
	return nil
}

func (r *MemoryFacilityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	facility, ok := r.facilities[id]
	if !ok || facility.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return facility, nil
}

// MemoryDeviceRepository is an in-memory DeviceRepository for tests and
// embedded runs.
type MemoryDeviceRepository struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*models.Device
}

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{devices: make(map[uuid.UUID]*models.Device)}
}

func (r *MemoryDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	r.devices[device.ID] = device
	return nil
}

func (r *MemoryDeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok || device.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return device, nil
}

func (r *MemoryDeviceRepository) ListByFacility(ctx context.Context, tenantID, facilityID uuid.UUID) ([]*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var devices []*models.Device
	for _, d := range r.devices {
		if d.TenantID == tenantID && d.FacilityID == facilityID && d.DeletedAt == nil {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

func (r *MemoryDeviceRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok || device.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	device.RevokedAt = &now
	return nil
}

func (r *MemoryDeviceRepository) TouchLastSync(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok || device.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	device.LastSyncAt = &now
	return nil
}

// MemorySessionRepository is an in-memory SessionRepository for tests and
// embedded runs.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*models.Session)}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return nil, ErrNotFound
	}
	return session, nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) DeleteAllForDevice(ctx context.Context, deviceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, session := range r.sessions {
		if session.DeviceID == deviceID {
			delete(r.sessions, id)
		}
	}
	return nil
}
