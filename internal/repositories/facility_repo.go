package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediqo/clinisync/internal/models"
)

type PostgresFacilityRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresFacilityRepository(pool *pgxpool.Pool) *PostgresFacilityRepository {
	return &PostgresFacilityRepository{pool: pool}
}

func (r *PostgresFacilityRepository) Create(ctx context.Context, facility *models.Facility) error {
	query := `INSERT INTO facilities (tenant_id, name)
	          VALUES ($1, $2)
	          RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, facility.TenantID, facility.Name).
		Scan(&facility.ID, &facility.CreatedAt, &facility.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create facility: %w", err)
	}
	return nil
}

func (r *PostgresFacilityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	query := `SELECT id, tenant_id, name, created_at, updated_at, deleted_at
	          FROM facilities
	          WHERE id = $1 AND deleted_at IS NULL`

	var facility models.Facility
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&facility.ID,
		&facility.TenantID,
		&facility.Name,
		&facility.CreatedAt,
		&facility.UpdatedAt,
		&facility.DeletedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	return &facility, nil
}
