package repositories

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediqo/clinisync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestPool connects to the database named by TEST_DATABASE_URL, or skips.
func getTestPool(t *testing.T) *pgxpool.Pool {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres ledger tests")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresLedger_AppendAndReadBack(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresLedgerRepository(pool)
	ctx := context.Background()

	// Fresh scope per run keeps the shared table reusable.
	tenantID, facilityID := uuid.New(), uuid.New()

	entries := []*models.LedgerEntry{
		{
			OpID:            uuid.New(),
			DeviceID:        "reception-1",
			Payload:         json.RawMessage(`{"opType":"upsert"}`),
			PayloadHash:     "aaaa",
			ServerCreatedAt: time.Now().UTC(),
		},
		{
			OpID:            uuid.New(),
			DeviceID:        "reception-1",
			Payload:         json.RawMessage(`{"opType":"delete"}`),
			PayloadHash:     "bbbb",
			ServerCreatedAt: time.Now().UTC(),
		},
	}

	require.NoError(t, repo.AppendAll(ctx, tenantID, facilityID, entries))
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, int64(2), entries[1].Seq)

	page, err := repo.ListSince(ctx, tenantID, facilityID, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, entries[0].OpID, page[0].OpID)
	assert.Equal(t, entries[1].OpID, page[1].OpID)

	existing, err := repo.GetByOpIDs(ctx, tenantID, facilityID, []uuid.UUID{entries[0].OpID})
	require.NoError(t, err)
	require.Contains(t, existing, entries[0].OpID)
	assert.Equal(t, "aaaa", existing[entries[0].OpID].PayloadHash)
}

func TestPostgresLedger_InsertOrIgnoreOnRetry(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresLedgerRepository(pool)
	ctx := context.Background()

	tenantID, facilityID := uuid.New(), uuid.New()
	opID := uuid.New()

	first := &models.LedgerEntry{
		OpID:            opID,
		DeviceID:        "reception-1",
		Payload:         json.RawMessage(`{"opType":"upsert"}`),
		PayloadHash:     "cccc",
		ServerCreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.AppendAll(ctx, tenantID, facilityID, []*models.LedgerEntry{first}))

	// Replay of the same opId must not error and must not double-insert.
	replay := &models.LedgerEntry{
		OpID:            opID,
		DeviceID:        "reception-1",
		Payload:         json.RawMessage(`{"opType":"upsert"}`),
		PayloadHash:     "cccc",
		ServerCreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.AppendAll(ctx, tenantID, facilityID, []*models.LedgerEntry{replay}))

	count, _, err := repo.Head(ctx, tenantID, facilityID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
