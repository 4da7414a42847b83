package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/mediqo/clinisync/internal/services"
)

type enrollInput struct {
	FacilityID    string `json:"facilityId"`
	Name          string `json:"name"`
	EnrollmentKey string `json:"enrollmentKey"`
	Role          string `json:"role,omitempty"`
}

// handleEnrollDevice handles POST /v1/auth/devices.
func (s *Server) handleEnrollDevice(w http.ResponseWriter, r *http.Request) {
	var input enrollInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "invalid json body")
		return
	}

	facilityID, err := uuid.Parse(input.FacilityID)
	if err != nil {
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "facilityId must be a UUID")
		return
	}
	if input.Name == "" {
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "name is required")
		return
	}

	device, err := s.authService.EnrollDevice(r.Context(), services.EnrollRequest{
		FacilityID:    facilityID,
		Name:          input.Name,
		EnrollmentKey: input.EnrollmentKey,
		Role:          models.Role(input.Role),
	})
	if errors.Is(err, services.ErrFacilityNotFound) {
		writeError(w, http.StatusNotFound, services.CodeTenantFacilityUnknown, "facility does not exist")
		return
	}
	if err != nil {
		slog.Error("device enrollment failed", "facility_id", facilityID, "err", err)
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "enrollment rejected")
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

type loginInput struct {
	DeviceID      string `json:"deviceId"`
	EnrollmentKey string `json:"enrollmentKey"`
}

type loginOutput struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Actor     models.Actor `json:"actor"`
}

// handleLogin handles POST /v1/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input loginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "invalid json body")
		return
	}

	deviceID, err := uuid.Parse(input.DeviceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, services.CodeValidationBatch, "deviceId must be a UUID")
		return
	}

	resp, err := s.authService.Login(r.Context(), services.LoginRequest{
		DeviceID:      deviceID,
		EnrollmentKey: input.EnrollmentKey,
	})
	if errors.Is(err, services.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, services.CodeAuthInvalidToken, "invalid device or enrollment key")
		return
	}
	if errors.Is(err, services.ErrDeviceRevoked) {
		writeError(w, http.StatusForbidden, services.CodeAuthInvalidToken, "device has been revoked")
		return
	}
	if err != nil {
		slog.Error("login failed", "device_id", deviceID, "err", err)
		writeError(w, http.StatusInternalServerError, services.CodeConflictSyncFailed, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginOutput{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		Actor:     resp.Actor,
	})
}

// handleLogout handles POST /v1/auth/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, services.CodeAuthRequired, "missing bearer token")
		return
	}
	if err := s.authService.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusUnauthorized, services.CodeAuthInvalidToken, "invalid or expired token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
