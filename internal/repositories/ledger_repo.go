package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediqo/clinisync/internal/models"
)

// PostgresLedgerRepository stores the append-only sync ledger.
//
// Expected tables (schema owned by the deployment's migrations):
//
//	sync_ledger(seq BIGINT, tenant_id UUID, facility_id UUID, op_id UUID,
//	            device_id TEXT, payload JSONB, payload_hash TEXT,
//	            server_created_at TIMESTAMPTZ,
//	            UNIQUE (tenant_id, facility_id, op_id),
//	            UNIQUE (tenant_id, facility_id, seq))
//	sync_facility_seq(tenant_id UUID, facility_id UUID, last_seq BIGINT,
//	            PRIMARY KEY (tenant_id, facility_id))
type PostgresLedgerRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresLedgerRepository(pool *pgxpool.Pool) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{pool: pool}
}

func (r *PostgresLedgerRepository) GetByOpIDs(ctx context.Context, tenantID, facilityID uuid.UUID, opIDs []uuid.UUID) (map[uuid.UUID]*models.LedgerEntry, error) {
	existing := make(map[uuid.UUID]*models.LedgerEntry, len(opIDs))
	if len(opIDs) == 0 {
		return existing, nil
	}

	query := `SELECT seq, tenant_id, facility_id, op_id, device_id, payload, payload_hash, server_created_at
	          FROM sync_ledger
	          WHERE tenant_id = $1 AND facility_id = $2 AND op_id = ANY($3)`

	rows, err := r.pool.Query(ctx, query, tenantID, facilityID, opIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.LedgerEntry
		err := rows.Scan(
			&entry.Seq,
			&entry.TenantID,
			&entry.FacilityID,
			&entry.OpID,
			&entry.DeviceID,
			&entry.Payload,
			&entry.PayloadHash,
			&entry.ServerCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		existing[entry.OpID] = &entry
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return existing, nil
}

// AppendAll reserves a block of sequence numbers from the facility's counter
// row, then bulk-inserts with insert-or-ignore semantics, all in one
// transaction. The counter row lock serializes concurrent appends to the same
// facility, so commit order matches seq order and a reader never observes a
// committed seq while a smaller one is still in flight.
func (r *PostgresLedgerRepository) AppendAll(ctx context.Context, tenantID, facilityID uuid.UUID, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	reserveQuery := `INSERT INTO sync_facility_seq (tenant_id, facility_id, last_seq)
	                 VALUES ($1, $2, $3)
	                 ON CONFLICT (tenant_id, facility_id)
	                 DO UPDATE SET last_seq = sync_facility_seq.last_seq + $3
	                 RETURNING last_seq`

	var lastSeq int64
	if err := tx.QueryRow(ctx, reserveQuery, tenantID, facilityID, len(entries)).Scan(&lastSeq); err != nil {
		return fmt.Errorf("failed to reserve sequence block: %w", err)
	}
	base := lastSeq - int64(len(entries))

	insertQuery := `INSERT INTO sync_ledger (seq, tenant_id, facility_id, op_id, device_id, payload, payload_hash, server_created_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	                ON CONFLICT (tenant_id, facility_id, op_id) DO NOTHING`

	batch := &pgx.Batch{}
	for i, entry := range entries {
		entry.Seq = base + int64(i) + 1
		batch.Queue(insertQuery,
			entry.Seq,
			tenantID,
			facilityID,
			entry.OpID,
			entry.DeviceID,
			entry.Payload,
			entry.PayloadHash,
			entry.ServerCreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to append ledger row: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close append batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepository) ListSince(ctx context.Context, tenantID, facilityID uuid.UUID, afterSeq int64, limit int) ([]*models.LedgerEntry, error) {
	query := `SELECT seq, tenant_id, facility_id, op_id, device_id, payload, payload_hash, server_created_at
	          FROM sync_ledger
	          WHERE tenant_id = $1 AND facility_id = $2 AND seq > $3
	          ORDER BY seq ASC
	          LIMIT $4`

	rows, err := r.pool.Query(ctx, query, tenantID, facilityID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger page: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		err := rows.Scan(
			&entry.Seq,
			&entry.TenantID,
			&entry.FacilityID,
			&entry.OpID,
			&entry.DeviceID,
			&entry.Payload,
			&entry.PayloadHash,
			&entry.ServerCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger page: %w", err)
	}

	return entries, nil
}

func (r *PostgresLedgerRepository) Head(ctx context.Context, tenantID, facilityID uuid.UUID) (int64, int64, error) {
	query := `SELECT COUNT(*), COALESCE(MAX(seq), 0)
	          FROM sync_ledger
	          WHERE tenant_id = $1 AND facility_id = $2`

	var count, lastSeq int64
	if err := r.pool.QueryRow(ctx, query, tenantID, facilityID).Scan(&count, &lastSeq); err != nil {
		return 0, 0, fmt.Errorf("failed to query ledger head: %w", err)
	}
	return count, lastSeq, nil
}
