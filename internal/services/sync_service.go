package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/canonical"
	"github.com/mediqo/clinisync/internal/metrics"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/mediqo/clinisync/internal/repositories"
)

const (
	MaxPushBatch     = 500
	DefaultPullLimit = 200
	MaxPullLimit     = 500

	maxFutureSkew       = time.Hour
	maxDeviceIDLength   = 128
	maxEntityTypeLength = 64
)

const (
	StatusIngested  = "ingested"
	StatusDuplicate = "duplicate"
)

var entityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SyncService implements push ingestion and pull delivery over the op ledger.
// It never interprets op payloads and never mutates business entities; its
// only durable side effect is ledger growth. deviceRepo and presenceRepo are
// optional heartbeat sinks and may be nil.
type SyncService struct {
	ledgerRepo   repositories.LedgerRepository
	facilityRepo repositories.FacilityRepository
	deviceRepo   repositories.DeviceRepository
	presenceRepo repositories.PresenceRepository
}

func NewSyncService(
	ledgerRepo repositories.LedgerRepository,
	facilityRepo repositories.FacilityRepository,
	deviceRepo repositories.DeviceRepository,
	presenceRepo repositories.PresenceRepository,
) *SyncService {
	return &SyncService{
		ledgerRepo:   ledgerRepo,
		facilityRepo: facilityRepo,
		deviceRepo:   deviceRepo,
		presenceRepo: presenceRepo,
	}
}

type PushRequest struct {
	FacilityID uuid.UUID
	DeviceID   string
	Ops        []models.SyncOp
}

type OpResult struct {
	OpID   uuid.UUID `json:"opId"`
	Status string    `json:"status"`
}

type PushResponse struct {
	ServerTime time.Time  `json:"serverTime"`
	Results    []OpResult `json:"results"`
}

type PullRequest struct {
	FacilityID uuid.UUID // Nil means the actor's own facility
	Cursor     *string
	Limit      int // 0 means DefaultPullLimit
}

type PullOp struct {
	Seq             int64           `json:"seq"`
	OpID            uuid.UUID       `json:"opId"`
	DeviceID        string          `json:"deviceId"`
	EntityType      string          `json:"entityType"`
	EntityID        uuid.UUID       `json:"entityId"`
	OpType          models.OpType   `json:"opType"`
	Data            json.RawMessage `json:"data"`
	ClientCreatedAt time.Time       `json:"clientCreatedAt"`
	ServerCreatedAt time.Time       `json:"serverCreatedAt"`
}

type PullResponse struct {
	ServerTime time.Time `json:"serverTime"`
	Cursor     *string   `json:"cursor"`
	HasMore    bool      `json:"hasMore"`
	Ops        []PullOp  `json:"ops"`
}

type DeviceStatus struct {
	DeviceID   uuid.UUID  `json:"deviceId"`
	Name       string     `json:"name"`
	LastOp     string     `json:"lastOp,omitempty"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}

type StatusResponse struct {
	ServerTime time.Time      `json:"serverTime"`
	OpCount    int64          `json:"opCount"`
	LastSeq    int64          `json:"lastSeq"`
	Devices    []DeviceStatus `json:"devices,omitempty"`
}

// IngestSyncPush validates a batch of client ops, deduplicates them against
// the ledger by canonical payload hash, and appends the new ones atomically.
// An opId reused with a different payload aborts the whole batch; nothing is
// written. Per-op statuses come back in input order.
func (s *SyncService) IngestSyncPush(ctx context.Context, actor *models.Actor, req PushRequest) (*PushResponse, error) {
	if req.FacilityID == uuid.Nil {
		return nil, s.rejectPush(syncErrorf(CodeValidationBatch, "facilityId is required"))
	}
	facilityID, serr := s.authorizeScope(ctx, actor, req.FacilityID)
	if serr != nil {
		return nil, s.rejectPush(serr)
	}

	if req.DeviceID == "" || len(req.DeviceID) > maxDeviceIDLength {
		return nil, s.rejectPush(syncErrorf(CodeValidationBatch, "deviceId must be 1..%d characters", maxDeviceIDLength))
	}
	if len(req.Ops) == 0 || len(req.Ops) > MaxPushBatch {
		return nil, s.rejectPush(syncErrorf(CodeValidationBatch, "ops must contain between 1 and %d entries", MaxPushBatch))
	}

	now := time.Now().UTC()

	ops := make([]models.SyncOp, len(req.Ops))
	copy(ops, req.Ops)
	for i := range ops {
		if serr := validateOp(i, &ops[i], now); serr != nil {
			return nil, s.rejectPush(serr)
		}
	}

	opIDs := make([]uuid.UUID, 0, len(ops))
	seen := make(map[uuid.UUID]bool, len(ops))
	for i := range ops {
		if !seen[ops[i].OpID] {
			seen[ops[i].OpID] = true
			opIDs = append(opIDs, ops[i].OpID)
		}
	}

	existing, err := s.ledgerRepo.GetByOpIDs(ctx, actor.TenantID, facilityID, opIDs)
	if err != nil {
		slog.Error("failed to load ledger rows for dedup", "facility_id", facilityID, "err", err)
		return nil, s.rejectPush(syncErrorf(CodeConflictSyncFailed, "sync push failed"))
	}

	results := make([]OpResult, 0, len(ops))
	queued := make([]*models.LedgerEntry, 0, len(ops))
	queuedHash := make(map[uuid.UUID]string, len(ops))

	for i := range ops {
		op := &ops[i]
		hash, err := canonical.Hash(opHashPayload(op))
		if err != nil {
			slog.Error("failed to hash op payload", "op_id", op.OpID, "err", err)
			return nil, s.rejectPush(syncErrorf(CodeConflictSyncFailed, "sync push failed"))
		}

		if row, ok := existing[op.OpID]; ok {
			if row.PayloadHash == hash {
				results = append(results, OpResult{OpID: op.OpID, Status: StatusDuplicate})
				continue
			}
			metrics.PushCollisions.Inc()
			return nil, s.rejectPush(syncErrorf(CodeConflictOpReused,
				"opId %s was already ingested with a different payload", op.OpID))
		}

		if prevHash, ok := queuedHash[op.OpID]; ok {
			if prevHash == hash {
				results = append(results, OpResult{OpID: op.OpID, Status: StatusDuplicate})
				continue
			}
			metrics.PushCollisions.Inc()
			return nil, s.rejectPush(syncErrorf(CodeConflictOpReused,
				"opId %s appears twice in the batch with different payloads", op.OpID))
		}

		payload, err := canonical.Canonicalize(opHashPayload(op))
		if err != nil {
			slog.Error("failed to canonicalize op payload", "op_id", op.OpID, "err", err)
			return nil, s.rejectPush(syncErrorf(CodeConflictSyncFailed, "sync push failed"))
		}

		queued = append(queued, &models.LedgerEntry{
			TenantID:        actor.TenantID,
			FacilityID:      facilityID,
			OpID:            op.OpID,
			DeviceID:        req.DeviceID,
			Payload:         payload,
			PayloadHash:     hash,
			ServerCreatedAt: now,
		})
		queuedHash[op.OpID] = hash
		results = append(results, OpResult{OpID: op.OpID, Status: StatusIngested})
	}

	if len(queued) > 0 {
		if err := s.ledgerRepo.AppendAll(ctx, actor.TenantID, facilityID, queued); err != nil {
			slog.Error("failed to append to sync ledger", "facility_id", facilityID, "ops", len(queued), "err", err)
			return nil, s.rejectPush(syncErrorf(CodeConflictSyncFailed, "sync push failed"))
		}
	}

	metrics.PushOpsIngested.Add(float64(len(queued)))
	metrics.PushOpsDuplicate.Add(float64(len(results) - len(queued)))
	s.recordHeartbeat(ctx, actor, models.PresenceOpPush)

	return &PushResponse{ServerTime: now, Results: results}, nil
}

// LoadSyncPull serves one ordered page of the facility's ledger. The cursor
// is the last seq the caller has consumed; an empty page echoes it back
// unchanged so idle polling is idempotent.
func (s *SyncService) LoadSyncPull(ctx context.Context, actor *models.Actor, req PullRequest) (*PullResponse, error) {
	facilityID, serr := s.authorizeScope(ctx, actor, req.FacilityID)
	if serr != nil {
		return nil, serr
	}

	afterSeq := int64(0)
	if req.Cursor != nil {
		n, err := strconv.ParseInt(strings.TrimSpace(*req.Cursor), 10, 64)
		if err != nil || n < 0 {
			return nil, syncErrorf(CodeValidationCursor, "cursor must be a non-negative integer")
		}
		afterSeq = n
	}

	limit := req.Limit
	if limit < 0 {
		return nil, syncErrorf(CodeValidationBatch, "limit must be positive")
	}
	if limit == 0 {
		limit = DefaultPullLimit
	}
	if limit > MaxPullLimit {
		limit = MaxPullLimit
	}

	// limit+1 detects hasMore without a count query.
	entries, err := s.ledgerRepo.ListSince(ctx, actor.TenantID, facilityID, afterSeq, limit+1)
	if err != nil {
		slog.Error("failed to read sync ledger", "facility_id", facilityID, "err", err)
		return nil, syncErrorf(CodeConflictSyncFailed, "sync pull failed")
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	ops := make([]PullOp, len(entries))
	for i, entry := range entries {
		var op models.SyncOp
		if err := json.Unmarshal(entry.Payload, &op); err != nil {
			slog.Error("corrupt ledger payload", "seq", entry.Seq, "facility_id", facilityID, "err", err)
			return nil, syncErrorf(CodeConflictSyncFailed, "sync pull failed")
		}
		ops[i] = PullOp{
			Seq:             entry.Seq,
			OpID:            op.OpID,
			DeviceID:        entry.DeviceID,
			EntityType:      op.EntityType,
			EntityID:        op.EntityID,
			OpType:          op.OpType,
			Data:            op.Data,
			ClientCreatedAt: op.ClientCreatedAt,
			ServerCreatedAt: entry.ServerCreatedAt,
		}
	}

	cursor := req.Cursor
	if len(entries) > 0 {
		next := strconv.FormatInt(entries[len(entries)-1].Seq, 10)
		cursor = &next
	}

	metrics.PullRequests.Inc()
	metrics.PullOpsDelivered.Add(float64(len(ops)))
	s.recordHeartbeat(ctx, actor, models.PresenceOpPull)

	return &PullResponse{
		ServerTime: time.Now().UTC(),
		Cursor:     cursor,
		HasMore:    hasMore,
		Ops:        ops,
	}, nil
}

// SyncStatus reports the facility's ledger head plus, when the heartbeat
// sinks are wired, per-device last-sync info.
func (s *SyncService) SyncStatus(ctx context.Context, actor *models.Actor, facilityID uuid.UUID) (*StatusResponse, error) {
	fid, serr := s.authorizeScope(ctx, actor, facilityID)
	if serr != nil {
		return nil, serr
	}

	count, lastSeq, err := s.ledgerRepo.Head(ctx, actor.TenantID, fid)
	if err != nil {
		slog.Error("failed to read ledger head", "facility_id", fid, "err", err)
		return nil, syncErrorf(CodeConflictSyncFailed, "sync status failed")
	}

	resp := &StatusResponse{
		ServerTime: time.Now().UTC(),
		OpCount:    count,
		LastSeq:    lastSeq,
	}

	if s.deviceRepo == nil || s.presenceRepo == nil {
		return resp, nil
	}

	devices, err := s.deviceRepo.ListByFacility(ctx, actor.TenantID, fid)
	if err != nil {
		slog.Warn("failed to list facility devices", "facility_id", fid, "err", err)
		return resp, nil
	}

	ids := make([]uuid.UUID, len(devices))
	for i, d := range devices {
		ids[i] = d.ID
	}
	presenceMap, err := s.presenceRepo.GetBulkPresence(ctx, ids)
	if err != nil {
		slog.Warn("failed to read device presence", "facility_id", fid, "err", err)
		presenceMap = nil
	}

	for _, d := range devices {
		status := DeviceStatus{DeviceID: d.ID, Name: d.Name, LastSyncAt: d.LastSyncAt}
		if p, ok := presenceMap[d.ID]; ok {
			status.LastOp = p.LastOp
			at := p.LastSyncAt
			status.LastSyncAt = &at
		}
		resp.Devices = append(resp.Devices, status)
	}
	return resp, nil
}

// authorizeScope checks actor identity and facility scope before any ledger
// access. facilityID of Nil defaults to the actor's own facility.
func (s *SyncService) authorizeScope(ctx context.Context, actor *models.Actor, facilityID uuid.UUID) (uuid.UUID, *SyncError) {
	if actor == nil {
		return uuid.Nil, syncErrorf(CodeAuthRequired, "an authenticated actor is required")
	}
	if actor.TenantID == uuid.Nil || actor.FacilityID == uuid.Nil {
		return uuid.Nil, syncErrorf(CodeTenantScopeMissing, "actor has no tenant and facility scope")
	}
	if facilityID == uuid.Nil {
		facilityID = actor.FacilityID
	}
	// No cross-facility override for any role, super_admin included (for now).
	if facilityID != actor.FacilityID {
		return uuid.Nil, syncErrorf(CodeTenantFacilityMismatch, "facility %s is outside the actor's scope", facilityID)
	}

	facility, err := s.facilityRepo.GetByID(ctx, facilityID)
	if errors.Is(err, repositories.ErrNotFound) {
		return uuid.Nil, syncErrorf(CodeTenantFacilityUnknown, "facility %s does not exist", facilityID)
	}
	if err != nil {
		slog.Error("failed to resolve facility", "facility_id", facilityID, "err", err)
		return uuid.Nil, syncErrorf(CodeConflictSyncFailed, "sync temporarily unavailable")
	}
	if facility.TenantID != actor.TenantID {
		return uuid.Nil, syncErrorf(CodeTenantFacilityMismatch, "facility %s belongs to another tenant", facilityID)
	}
	return facilityID, nil
}

func (s *SyncService) rejectPush(serr *SyncError) *SyncError {
	metrics.PushBatchesRejected.WithLabelValues(serr.Code).Inc()
	return serr
}

// recordHeartbeat is best-effort; sync calls never fail on heartbeat errors.
func (s *SyncService) recordHeartbeat(ctx context.Context, actor *models.Actor, op string) {
	if actor.DeviceID == uuid.Nil {
		return
	}
	if s.presenceRepo != nil {
		presence := &models.SyncPresence{
			DeviceID:   actor.DeviceID,
			FacilityID: actor.FacilityID,
			LastOp:     op,
		}
		if err := s.presenceRepo.SetPresence(ctx, presence); err != nil {
			slog.Warn("failed to record sync presence", "device_id", actor.DeviceID, "err", err)
		}
	}
	if s.deviceRepo != nil {
		if err := s.deviceRepo.TouchLastSync(ctx, actor.DeviceID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			slog.Warn("failed to touch device last sync", "device_id", actor.DeviceID, "err", err)
		}
	}
}

func validateOp(i int, op *models.SyncOp, now time.Time) *SyncError {
	if op.OpID == uuid.Nil {
		return syncErrorf(CodeValidationOp, "ops[%d]: opId is required", i)
	}
	if op.EntityID == uuid.Nil {
		return syncErrorf(CodeValidationOp, "ops[%d]: entityId is required", i)
	}

	op.EntityType = strings.ToLower(op.EntityType)
	if len(op.EntityType) == 0 || len(op.EntityType) > maxEntityTypeLength || !entityTypePattern.MatchString(op.EntityType) {
		return syncErrorf(CodeValidationOp, "ops[%d]: entityType must match %s", i, entityTypePattern.String())
	}

	if !op.OpType.Valid() {
		return syncErrorf(CodeValidationOp, "ops[%d]: opType must be %q or %q", i, models.OpTypeUpsert, models.OpTypeDelete)
	}
	if op.OpType == models.OpTypeUpsert && isEmptyJSON(op.Data) {
		return syncErrorf(CodeValidationOp, "ops[%d]: data is required for upsert", i)
	}

	if op.ClientCreatedAt.IsZero() {
		return syncErrorf(CodeValidationOp, "ops[%d]: clientCreatedAt is required", i)
	}
	if op.ClientCreatedAt.After(now.Add(maxFutureSkew)) {
		return syncErrorf(CodeValidationOp, "ops[%d]: clientCreatedAt is too far in the future", i)
	}
	return nil
}

// opHashPayload is the canonical view of an op used for both the stored
// payload and the idempotency hash. The timestamp is normalized to UTC so
// equal instants hash equally regardless of the client's offset notation.
func opHashPayload(op *models.SyncOp) map[string]any {
	var data any
	if !isEmptyJSON(op.Data) {
		data = op.Data
	}
	return map[string]any{
		"opId":            op.OpID.String(),
		"entityType":      op.EntityType,
		"entityId":        op.EntityID.String(),
		"opType":          string(op.OpType),
		"data":            data,
		"clientCreatedAt": op.ClientCreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
