package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"
const deviceSessionsPrefix = "device:%s:sessions"

type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	key := fmt.Sprintf("%s%s", sessionPrefix, session.ID)

	if err := r.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	deviceKey := fmt.Sprintf(deviceSessionsPrefix, session.DeviceID)
	if err := r.client.SAdd(ctx, deviceKey, session.ID).Err(); err != nil {
		return fmt.Errorf("failed to add session to device sessions: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	key := fmt.Sprintf("%s%s", sessionPrefix, id)

	jsonData, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	key := fmt.Sprintf("%s%s", sessionPrefix, id)

	session, err := r.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	deviceKey := fmt.Sprintf(deviceSessionsPrefix, session.DeviceID)
	if err := r.client.SRem(ctx, deviceKey, id).Err(); err != nil {
		return fmt.Errorf("failed to remove session from device sessions: %w", err)
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteAllForDevice(ctx context.Context, deviceID uuid.UUID) error {
	deviceKey := fmt.Sprintf(deviceSessionsPrefix, deviceID)
	sessionIDs, err := r.client.SMembers(ctx, deviceKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get device sessions: %w", err)
	}
	for _, id := range sessionIDs {
		if err := r.Delete(ctx, id); err != nil {
			slog.Warn("failed to delete session", "session_id", id, "err", err)
			continue
		}
	}
	return nil
}
