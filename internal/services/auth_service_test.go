package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediqo/clinisync/internal/models"
	"github.com/mediqo/clinisync/internal/repositories"
)

type authFixture struct {
	svc      *AuthService
	facility *models.Facility
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	facilityRepo := repositories.NewMemoryFacilityRepository()
	facility := &models.Facility{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "Central Clinic",
	}
	require.NoError(t, facilityRepo.Create(context.Background(), facility))

	svc := NewAuthService(repositories.NewMemoryDeviceRepository(), facilityRepo,
		repositories.NewMemorySessionRepository(), "test-secret", time.Hour)
	return &authFixture{svc: svc, facility: facility}
}

func (f *authFixture) enroll(t *testing.T, key string) *models.Device {
	t.Helper()

	device, err := f.svc.EnrollDevice(context.Background(), EnrollRequest{
		FacilityID:    f.facility.ID,
		Name:          "reception-tablet",
		EnrollmentKey: key,
	})
	require.NoError(t, err)
	return device
}

func TestEnrollAndLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	device := f.enroll(t, "correct-horse-battery")
	assert.Equal(t, f.facility.TenantID, device.TenantID)
	assert.Equal(t, models.RoleDevice, device.Role, "Role defaults to device")

	resp, err := f.svc.Login(ctx, LoginRequest{DeviceID: device.ID, EnrollmentKey: "correct-horse-battery"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, device.ID, resp.Actor.DeviceID)
	assert.Equal(t, f.facility.ID, resp.Actor.FacilityID)

	actor, err := f.svc.VerifyToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, f.facility.TenantID, actor.TenantID)
	assert.Equal(t, device.ID, actor.DeviceID)
	assert.Equal(t, resp.Actor.SessionID, actor.SessionID)
}

func TestEnrollUnknownFacility(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.EnrollDevice(context.Background(), EnrollRequest{
		FacilityID:    uuid.New(),
		Name:          "orphan-device",
		EnrollmentKey: "some-long-key",
	})
	assert.ErrorIs(t, err, ErrFacilityNotFound)
}

func TestLoginRejectsWrongKey(t *testing.T) {
	f := newAuthFixture(t)

	device := f.enroll(t, "correct-horse-battery")

	_, err := f.svc.Login(context.Background(), LoginRequest{DeviceID: device.ID, EnrollmentKey: "wrong-key-entirely"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), LoginRequest{DeviceID: uuid.New(), EnrollmentKey: "correct-horse-battery"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "Unknown device looks like bad credentials")
}

func TestLoginRejectsRevokedDevice(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	device := f.enroll(t, "correct-horse-battery")
	require.NoError(t, f.svc.RevokeDevice(ctx, device.ID))

	_, err := f.svc.Login(ctx, LoginRequest{DeviceID: device.ID, EnrollmentKey: "correct-horse-battery"})
	assert.ErrorIs(t, err, ErrDeviceRevoked)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	device := f.enroll(t, "correct-horse-battery")
	resp, err := f.svc.Login(ctx, LoginRequest{DeviceID: device.ID, EnrollmentKey: "correct-horse-battery"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, resp.Token))

	// Token is still cryptographically valid but its session is gone.
	_, err = f.svc.VerifyToken(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeTerminatesSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	device := f.enroll(t, "correct-horse-battery")
	resp, err := f.svc.Login(ctx, LoginRequest{DeviceID: device.ID, EnrollmentKey: "correct-horse-battery"})
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeDevice(ctx, device.ID))

	_, err = f.svc.VerifyToken(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.VerifyToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
