package branch

import (
	"context"
	"errors"
	"fmt"

	"charity-delivery/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines data access for branches.
type RepositoryInterface interface {
	FindByID(ctx context.Context, branchID string) (*models.Branch, error)
	ListActive(ctx context.Context) ([]models.Branch, error)
}

// Repository implements RepositoryInterface against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new branch repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const branchColumns = `id, name, address, latitude, longitude, is_active, created_at`

func scanBranch(row pgx.Row) (*models.Branch, error) {
	var b models.Branch
	err := row.Scan(&b.ID, &b.Name, &b.Address, &b.Latitude, &b.Longitude, &b.IsActive, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repository) FindByID(ctx context.Context, branchID string) (*models.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE id = $1`
	b, err := scanBranch(r.db.QueryRow(ctx, query, branchID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("repo.FindByID branch: %w", err)
	}
	return b, nil
}

func (r *Repository) ListActive(ctx context.Context) ([]models.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE is_active ORDER BY name, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repo.ListActive branches: %w", err)
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.ListActive branches scan: %w", err)
		}
		branches = append(branches, *b)
	}
	return branches, rows.Err()
}
