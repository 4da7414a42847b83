package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/mediqo/clinisync/internal/services"
)

// pushOpInput keeps ids and timestamp as strings so malformed values produce
// a structured validation error instead of a generic decode failure.
type pushOpInput struct {
	OpID            string          `json:"opId"`
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	OpType          string          `json:"opType"`
	Data            json.RawMessage `json:"data"`
	ClientCreatedAt string          `json:"clientCreatedAt"`
}

type pushInput struct {
	FacilityID string        `json:"facilityId"`
	DeviceID   string        `json:"deviceId"`
	Ops        []pushOpInput `json:"ops"`
}

// handleSyncPush handles POST /v1/sync/push.
func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	var input pushInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "invalid json body")
		return
	}

	facilityID, err := uuid.Parse(input.FacilityID)
	if err != nil {
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "facilityId must be a UUID")
		return
	}

	ops := make([]models.SyncOp, len(input.Ops))
	for i, in := range input.Ops {
		opID, err := uuid.Parse(in.OpID)
		if err != nil {
			writeError(w, http.StatusBadRequest, services.CodeValidationOp, fmt.Sprintf("ops[%d]: opId must be a UUID", i))
			return
		}
		entityID, err := uuid.Parse(in.EntityID)
		if err != nil {
			writeError(w, http.StatusBadRequest, services.CodeValidationOp, fmt.Sprintf("ops[%d]: entityId must be a UUID", i))
			return
		}
		createdAt, err := time.Parse(time.RFC3339, in.ClientCreatedAt)
		if err != nil {
			createdAt, err = time.Parse(time.RFC3339Nano, in.ClientCreatedAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, services.CodeValidationOp, fmt.Sprintf("ops[%d]: clientCreatedAt must be an RFC3339 timestamp", i))
				return
			}
		}
		ops[i] = models.SyncOp{
			OpID:            opID,
			EntityType:      in.EntityType,
			EntityID:        entityID,
			OpType:          models.OpType(in.OpType),
			Data:            in.Data,
			ClientCreatedAt: createdAt,
		}
	}

	resp, err := s.syncService.IngestSyncPush(r.Context(), ActorFrom(r.Context()), services.PushRequest{
		FacilityID: facilityID,
		DeviceID:   input.DeviceID,
		Ops:        ops,
	})
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSyncPull handles GET /v1/sync/pull.
func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	req := services.PullRequest{}

	if v := r.URL.Query().Get("facilityId"); v != "" {
		facilityID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "facilityId must be a UUID")
			return
		}
		req.FacilityID = facilityID
	}

	if v := r.URL.Query().Get("cursor"); v != "" {
		cursor := v
		req.Cursor = &cursor
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "invalid limit")
			return
		}
		req.Limit = limit
	}

	resp, err := s.syncService.LoadSyncPull(r.Context(), ActorFrom(r.Context()), req)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSyncStatus handles GET /v1/sync/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	facilityID := uuid.Nil
	if v := r.URL.Query().Get("facilityId"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "facilityId must be a UUID")
			return
		}
		facilityID = parsed
	}

	resp, err := s.syncService.SyncStatus(r.Context(), ActorFrom(r.Context()), facilityID)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
