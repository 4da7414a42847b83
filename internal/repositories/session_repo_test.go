package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestRedisClient connects to the instance named by TEST_REDIS_URL, or skips.
func getTestRedisClient(t *testing.T) *redis.Client {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping Redis repository tests")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(context.Background()).Err(), "Failed to connect to test Redis")
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	deviceID := uuid.New()
	session := &models.Session{
		ID:         uuid.New().String(),
		TenantID:   uuid.New(),
		FacilityID: uuid.New(),
		DeviceID:   deviceID,
		Role:       models.RoleDevice,
		ExpiresAt:  time.Now().Add(time.Hour),
		CreatedAt:  time.Now(),
	}

	require.NoError(t, repo.Create(ctx, session))
	t.Cleanup(func() { repo.DeleteAllForDevice(ctx, deviceID) })

	retrieved, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.TenantID, retrieved.TenantID)
	assert.Equal(t, session.FacilityID, retrieved.FacilityID)
	assert.Equal(t, deviceID, retrieved.DeviceID)
	assert.Equal(t, models.RoleDevice, retrieved.Role)
}

func TestSessionRepository_Delete(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	deviceID := uuid.New()
	session := &models.Session{
		ID:        uuid.New().String(),
		TenantID:  uuid.New(),
		DeviceID:  deviceID,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, session))

	require.NoError(t, repo.Delete(ctx, session.ID))

	_, err := repo.GetByID(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound, "Session should be deleted")
}

func TestSessionRepository_DeleteAllForDevice(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	deviceID := uuid.New()
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.New().String()
		session := &models.Session{
			ID:        ids[i],
			TenantID:  uuid.New(),
			DeviceID:  deviceID,
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}
		require.NoError(t, repo.Create(ctx, session))
	}

	require.NoError(t, repo.DeleteAllForDevice(ctx, deviceID))

	for _, id := range ids {
		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, "All device sessions should be deleted")
	}
}

func TestPresenceRepository_SetAndGet(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSyncPresenceRepository(client)
	ctx := context.Background()

	deviceID := uuid.New()
	presence := &models.SyncPresence{
		DeviceID:   deviceID,
		FacilityID: uuid.New(),
		LastOp:     models.PresenceOpPush,
	}
	require.NoError(t, repo.SetPresence(ctx, presence))
	t.Cleanup(func() { client.Del(ctx, presenceKey(deviceID)) })

	retrieved, err := repo.GetPresence(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOpPush, retrieved.LastOp)
	assert.False(t, retrieved.LastSyncAt.IsZero(), "SetPresence should stamp LastSyncAt")

	unknown := uuid.New()
	bulk, err := repo.GetBulkPresence(ctx, []uuid.UUID{deviceID, unknown})
	require.NoError(t, err)
	assert.Contains(t, bulk, deviceID)
	assert.NotContains(t, bulk, unknown, "Devices without a heartbeat are absent")
}
