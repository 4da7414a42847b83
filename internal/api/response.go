package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mediqo/clinisync/internal/services"
)

// APIError is the structured error envelope returned to clients.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

// writeSyncError maps a service failure onto an HTTP status by code prefix.
func writeSyncError(w http.ResponseWriter, err error) {
	var serr *services.SyncError
	if !errors.As(err, &serr) {
		slog.Error("unexpected sync failure", "err", err)
		writeError(w, http.StatusInternalServerError, services.CodeConflictSyncFailed, "sync failed")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case strings.HasPrefix(serr.Code, "AUTH_"):
		status = http.StatusUnauthorized
	case strings.HasPrefix(serr.Code, "TENANT_"):
		status = http.StatusForbidden
	case strings.HasPrefix(serr.Code, "VALIDATION_"):
		status = http.StatusBadRequest
	case serr.Code == services.CodeConflictOpReused:
		status = http.StatusConflict
	}
	writeError(w, status, serr.Code, serr.Message)
}
