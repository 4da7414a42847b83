package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediqo/clinisync/internal/models"
	"github.com/mediqo/clinisync/internal/repositories"
	"github.com/mediqo/clinisync/internal/services"
)

// stubResolver returns a fixed actor for any token, or rejects everything.
type stubResolver struct {
	actor *models.Actor
}

func (r *stubResolver) VerifyToken(ctx context.Context, token string) (*models.Actor, error) {
	if r.actor == nil {
		return nil, errors.New("invalid token")
	}
	return r.actor, nil
}

type apiFixture struct {
	server   *httptest.Server
	actor    *models.Actor
	facility *models.Facility
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	facilityRepo := repositories.NewMemoryFacilityRepository()
	facility := &models.Facility{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "Central Clinic",
	}
	require.NoError(t, facilityRepo.Create(context.Background(), facility))

	actor := &models.Actor{
		TenantID:   facility.TenantID,
		FacilityID: facility.ID,
		DeviceID:   uuid.New(),
		Role:       models.RoleDevice,
	}

	syncService := services.NewSyncService(repositories.NewMemoryLedgerRepository(), facilityRepo, nil, nil)
	srv := NewServer(syncService, nil, &stubResolver{actor: actor})

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &apiFixture{server: ts, actor: actor, facility: facility}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func pushBody(facilityID uuid.UUID, ops ...map[string]any) string {
	body := map[string]any{
		"facilityId": facilityID,
		"deviceId":   "tablet-7",
		"ops":        ops,
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func opBody(opID uuid.UUID, data string) map[string]any {
	return map[string]any{
		"opId":            opID,
		"entityType":      "patient",
		"entityId":        uuid.New(),
		"opType":          "upsert",
		"data":            json.RawMessage(data),
		"clientCreatedAt": time.Now().UTC().Format(time.RFC3339),
	}
}

func TestPushPullRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	opID := uuid.New()
	resp, body := f.do(t, http.MethodPost, "/v1/sync/push", pushBody(f.facility.ID, opBody(opID, `{"name":"Abebe"}`)))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var push services.PushResponse
	require.NoError(t, json.Unmarshal(body, &push))
	require.Len(t, push.Results, 1)
	assert.Equal(t, opID, push.Results[0].OpID)
	assert.Equal(t, services.StatusIngested, push.Results[0].Status)

	resp, body = f.do(t, http.MethodGet, "/v1/sync/pull?facilityId="+f.facility.ID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var pull services.PullResponse
	require.NoError(t, json.Unmarshal(body, &pull))
	require.Len(t, pull.Ops, 1)
	assert.Equal(t, opID, pull.Ops[0].OpID)
	assert.Equal(t, int64(1), pull.Ops[0].Seq)
	assert.False(t, pull.HasMore)
	require.NotNil(t, pull.Cursor)
	assert.Equal(t, "1", *pull.Cursor)
}

func TestPushRequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/sync/push", strings.NewReader("{}"))
	require.NoError(t, err)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushOpCollisionReturnsConflict(t *testing.T) {
	f := newAPIFixture(t)

	opID := uuid.New()
	op := opBody(opID, `{"name":"Abebe"}`)
	resp, body := f.do(t, http.MethodPost, "/v1/sync/push", pushBody(f.facility.ID, op))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	op["data"] = json.RawMessage(`{"name":"Bekele"}`)
	resp, body = f.do(t, http.MethodPost, "/v1/sync/push", pushBody(f.facility.ID, op))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, services.CodeConflictOpReused, envelope.Error.Code)
}

func TestPushMalformedOpID(t *testing.T) {
	f := newAPIFixture(t)

	body := fmt.Sprintf(`{"facilityId":"%s","deviceId":"tablet-7","ops":[{"opId":"not-a-uuid","entityType":"patient","entityId":"%s","opType":"upsert","data":{},"clientCreatedAt":"2026-08-25T10:00:00Z"}]}`,
		f.facility.ID, uuid.New())
	resp, raw := f.do(t, http.MethodPost, "/v1/sync/push", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, services.CodeValidationOp, envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, "ops[0]")
}

func TestPullForeignFacilityForbidden(t *testing.T) {
	f := newAPIFixture(t)

	resp, raw := f.do(t, http.MethodGet, "/v1/sync/pull?facilityId="+uuid.NewString(), "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, services.CodeTenantFacilityMismatch, envelope.Error.Code)
}

func TestPullInvalidLimit(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/v1/sync/pull?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncStatusDefaultsToActorFacility(t *testing.T) {
	f := newAPIFixture(t)

	opID := uuid.New()
	resp, body := f.do(t, http.MethodPost, "/v1/sync/push", pushBody(f.facility.ID, opBody(opID, `{"name":"Abebe"}`)))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = f.do(t, http.MethodGet, "/v1/sync/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var status services.StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, int64(1), status.OpCount)
	assert.Equal(t, int64(1), status.LastSeq)
}
