// Package stock tracks item movements through branches and the expiration of
// perishable stock lots.
package stock

import (
	"context"
	"fmt"
	"log"
	"time"

	"charity-delivery/internal/models"
)

// ServiceInterface defines the stock operations.
type ServiceInterface interface {
	// RecordMovements persists a route handoff's stock movements.
	RecordMovements(ctx context.Context, movements []models.StockMovement) error
	ListMovements(ctx context.Context, branchID string, page, limit int) ([]models.StockMovement, int, error)
	// ExpireOutdatedStock flags lots past their expiration date. Idempotent;
	// returns the number of lots expired this run.
	ExpireOutdatedStock(ctx context.Context) (int, error)
}

// Service implements ServiceInterface.
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new stock service.
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

func (s *Service) RecordMovements(ctx context.Context, movements []models.StockMovement) error {
	for _, m := range movements {
		if m.Direction != models.StockMovementExport && m.Direction != models.StockMovementImport {
			return fmt.Errorf("service.RecordMovements direction %q: %w", m.Direction, models.ErrInvalidStateTransition)
		}
		if m.Quantity < 0 {
			return fmt.Errorf("service.RecordMovements quantity %d: %w", m.Quantity, models.ErrInvalidStateTransition)
		}
	}
	return s.repo.InsertMovements(ctx, movements)
}

func (s *Service) ListMovements(ctx context.Context, branchID string, page, limit int) ([]models.StockMovement, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMovements(ctx, branchID, page, limit)
}

// ExpireOutdatedStock is the daily sweep over perishable lots. Each lot is
// handled independently; one failure never aborts the sweep.
func (s *Service) ExpireOutdatedStock(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpirableLotIDs(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("service.ExpireOutdatedStock: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if err := s.repo.ExpireLot(ctx, id); err != nil {
			log.Printf("expire stock lot %s: %v", id, err)
			continue
		}
		expired++
	}
	return expired, nil
}
