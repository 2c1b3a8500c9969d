package stock

import (
	"context"
	"fmt"
	"time"

	"charity-delivery/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines data access for stock movements and lots.
type RepositoryInterface interface {
	InsertMovements(ctx context.Context, movements []models.StockMovement) error
	ListMovements(ctx context.Context, branchID string, page, limit int) ([]models.StockMovement, int, error)
	ListExpirableLotIDs(ctx context.Context, now time.Time) ([]string, error)
	ExpireLot(ctx context.Context, lotID string) error
}

// Repository implements RepositoryInterface against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new stock repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertMovements writes the movements in one transaction so a route handoff
// is recorded completely or not at all.
func (r *Repository) InsertMovements(ctx context.Context, movements []models.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.InsertMovements begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range movements {
		batch.Queue(`
			INSERT INTO stock_movements (id, branch_id, route_id, delivery_request_id, delivery_item_id, direction, quantity, created_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NOW())`,
			m.ID, m.BranchID, m.RouteID, m.DeliveryRequestID, m.DeliveryItemID, m.Direction, m.Quantity,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("repo.InsertMovements: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListMovements(ctx context.Context, branchID string, page, limit int) ([]models.StockMovement, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM stock_movements WHERE branch_id = $1`
	if err := r.db.QueryRow(ctx, countQuery, branchID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.ListMovements count: %w", err)
	}

	query := `
		SELECT id, branch_id, route_id, COALESCE(delivery_request_id, ''), delivery_item_id, direction, quantity, created_at
		FROM stock_movements
		WHERE branch_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, branchID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.ListMovements: %w", err)
	}
	defer rows.Close()

	var movements []models.StockMovement
	for rows.Next() {
		var m models.StockMovement
		if err := rows.Scan(&m.ID, &m.BranchID, &m.RouteID, &m.DeliveryRequestID, &m.DeliveryItemID, &m.Direction, &m.Quantity, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("repo.ListMovements scan: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

func (r *Repository) ListExpirableLotIDs(ctx context.Context, now time.Time) ([]string, error) {
	query := `SELECT id FROM stock_lots WHERE NOT is_expired AND expires_at <= $1 ORDER BY expires_at, id`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("repo.ListExpirableLotIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo.ListExpirableLotIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) ExpireLot(ctx context.Context, lotID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE stock_lots SET is_expired = TRUE WHERE id = $1 AND NOT is_expired`, lotID)
	if err != nil {
		return fmt.Errorf("repo.ExpireLot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
