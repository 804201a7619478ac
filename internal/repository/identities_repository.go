// Package repository provides data access for identities and face embeddings.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
)

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

const identityColumns = `id, name, region, business_key, rank, description, created_at, updated_at`

// IdentitiesRepository handles data access for the identities table.
type IdentitiesRepository struct {
	db *pgxpool.Pool
}

// NewIdentitiesRepository creates a new identities repository.
func NewIdentitiesRepository(db *pgxpool.Pool) *IdentitiesRepository {
	return &IdentitiesRepository{db: db}
}

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var ident models.Identity

	err := row.Scan(
		&ident.ID, &ident.Name, &ident.Region, &ident.BusinessKey,
		&ident.Rank, &ident.Description, &ident.CreatedAt, &ident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &ident, nil
}

// Create inserts a new identity. Returns a ConflictError when the business key
// is already taken.
func (r *IdentitiesRepository) Create(ctx context.Context, req *models.CreateIdentityRequest) (*models.Identity, error) {
	query := `
		INSERT INTO identities (name, region, business_key, rank, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + identityColumns

	ident, err := scanIdentity(r.db.QueryRow(ctx, query,
		req.Name, req.Region, req.BusinessKey, req.Rank, req.Description,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, faceerrors.NewConflictError(
				fmt.Sprintf("business key %q is already registered", req.BusinessKey))
		}

		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	return ident, nil
}

// GetByID retrieves a single identity by ID.
func (r *IdentitiesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	ident, err := scanIdentity(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faceerrors.NewNotFoundError("identity", "identity not found")
		}

		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return ident, nil
}

// GetByBusinessKey retrieves a single identity by its business key.
func (r *IdentitiesRepository) GetByBusinessKey(ctx context.Context, businessKey string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE business_key = $1`

	ident, err := scanIdentity(r.db.QueryRow(ctx, query, businessKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faceerrors.NewNotFoundError("identity", "identity not found")
		}

		return nil, fmt.Errorf("failed to get identity by business key: %w", err)
	}

	return ident, nil
}

// GetByNameAndRegion retrieves a single identity by display name within a region.
func (r *IdentitiesRepository) GetByNameAndRegion(ctx context.Context, name, region string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE name = $1 AND region = $2`

	ident, err := scanIdentity(r.db.QueryRow(ctx, query, name, region))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faceerrors.NewNotFoundError("identity", "identity not found")
		}

		return nil, fmt.Errorf("failed to get identity by name and region: %w", err)
	}

	return ident, nil
}

// buildIdentityFilterConditions builds WHERE clause conditions and arguments from filters.
func buildIdentityFilterConditions(filters *models.ListIdentitiesFilters) (whereClause string, args []any) {
	var conditions []string

	argCount := 1

	if filters.Region != nil {
		conditions = append(conditions, fmt.Sprintf("region = $%d", argCount))
		args = append(args, *filters.Region)
		argCount++
	}

	if filters.Name != nil {
		conditions = append(conditions, fmt.Sprintf("name = $%d", argCount))
		args = append(args, *filters.Name)
	}

	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves identities with optional filters.
func (r *IdentitiesRepository) List(ctx context.Context, filters *models.ListIdentitiesFilters) ([]models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities`

	whereClause, args := buildIdentityFilterConditions(filters)
	query += whereClause
	argCount := len(args) + 1

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)

		args = append(args, filters.Limit)
		argCount++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)

		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	identities := []models.Identity{} // Initialize as empty slice, not nil

	for rows.Next() {
		var ident models.Identity

		err := rows.Scan(
			&ident.ID, &ident.Name, &ident.Region, &ident.BusinessKey,
			&ident.Rank, &ident.Description, &ident.CreatedAt, &ident.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}

		identities = append(identities, ident)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identities: %w", err)
	}

	return identities, nil
}

// Count returns the total count of identities matching the filters.
func (r *IdentitiesRepository) Count(ctx context.Context, filters *models.ListIdentitiesFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM identities`

	whereClause, args := buildIdentityFilterConditions(filters)
	query += whereClause

	var count int64

	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}

	return count, nil
}

// Update updates an identity's profile fields (name, rank, description).
// Region and business key are immutable.
func (r *IdentitiesRepository) Update(
	ctx context.Context, id uuid.UUID, req *models.UpdateIdentityRequest,
) (*models.Identity, error) {
	var updates []string

	var args []any

	argCount := 1

	if req.Name != nil {
		updates = append(updates, fmt.Sprintf("name = $%d", argCount))
		args = append(args, *req.Name)
		argCount++
	}

	if req.Rank != nil {
		updates = append(updates, fmt.Sprintf("rank = $%d", argCount))
		args = append(args, *req.Rank)
		argCount++
	}

	if req.Description != nil {
		updates = append(updates, fmt.Sprintf("description = $%d", argCount))
		args = append(args, *req.Description)
		argCount++
	}

	if len(updates) == 0 {
		return r.GetByID(ctx, id)
	}

	updates = append(updates, fmt.Sprintf("updated_at = $%d", argCount))
	args = append(args, time.Now())
	argCount++

	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE identities
		SET %s
		WHERE id = $%d
		RETURNING `+identityColumns, strings.Join(updates, ", "), argCount)

	ident, err := scanIdentity(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faceerrors.NewNotFoundError("identity", "identity not found")
		}

		return nil, fmt.Errorf("failed to update identity: %w", err)
	}

	return ident, nil
}

// Delete removes an identity. Owned face embeddings are removed by the
// ON DELETE CASCADE constraint. Deleting a non-existent identity returns a
// NotFoundError, so the call is idempotent from the caller's perspective.
func (r *IdentitiesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return faceerrors.NewNotFoundError("identity", "identity not found")
	}

	return nil
}
