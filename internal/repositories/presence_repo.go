package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "sync_presence:"
	presenceTTL       = 24 * time.Hour
)

// RedisSyncPresenceRepository keeps a TTL-bound "last synced" heartbeat per
// device. Absence of the key means the device has not synced within the TTL.
type RedisSyncPresenceRepository struct {
	client *redis.Client
}

func NewRedisSyncPresenceRepository(client *redis.Client) *RedisSyncPresenceRepository {
	return &RedisSyncPresenceRepository{client: client}
}

func (r *RedisSyncPresenceRepository) SetPresence(ctx context.Context, presence *models.SyncPresence) error {
	presence.LastSyncAt = time.Now().UTC()

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(presence.DeviceID)
	if err := r.client.Set(ctx, key, data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *RedisSyncPresenceRepository) GetPresence(ctx context.Context, deviceID uuid.UUID) (*models.SyncPresence, error) {
	key := presenceKey(deviceID)

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence models.SyncPresence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &presence, nil
}

// GetBulkPresence retrieves presence for multiple devices in one round trip.
// Devices without a live heartbeat are simply absent from the result.
func (r *RedisSyncPresenceRepository) GetBulkPresence(ctx context.Context, deviceIDs []uuid.UUID) (map[uuid.UUID]models.SyncPresence, error) {
	presenceMap := make(map[uuid.UUID]models.SyncPresence, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return presenceMap, nil
	}

	keys := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		keys[i] = presenceKey(id)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	for i, result := range results {
		if result == nil {
			continue
		}
		data, ok := result.(string)
		if !ok {
			continue
		}
		var presence models.SyncPresence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			continue
		}
		presenceMap[deviceIDs[i]] = presence
	}

	return presenceMap, nil
}

func presenceKey(deviceID uuid.UUID) string {
	return presenceKeyPrefix + deviceID.String()
}
