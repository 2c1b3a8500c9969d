package branch

import (
	"context"
	"fmt"

	"charity-delivery/internal/models"
)

// DeliverableFinderInterface is the slice of the geospatial resolver this
// module consumes.
type DeliverableFinderInterface interface {
	FindDeliverableBranches(ctx context.Context, origin string, candidates []models.Branch, maxDistanceKm float64) (*models.DeliverableBranches, error)
}

// ServiceInterface defines the branch operations.
type ServiceInterface interface {
	ListBranches(ctx context.Context) ([]models.Branch, error)
	// FindDeliverableBranches geocodes the origin address and returns the
	// active branches within delivery range, nearest first.
	FindDeliverableBranches(ctx context.Context, address string) (*models.DeliverableBranches, error)
}

// Service implements ServiceInterface.
type Service struct {
	repo   RepositoryInterface
	finder DeliverableFinderInterface
}

// NewService creates a new branch service.
func NewService(repo RepositoryInterface, finder DeliverableFinderInterface) *Service {
	return &Service{repo: repo, finder: finder}
}

func (s *Service) ListBranches(ctx context.Context) ([]models.Branch, error) {
	branches, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ListBranches: %w", err)
	}
	return branches, nil
}

func (s *Service) FindDeliverableBranches(ctx context.Context, address string) (*models.DeliverableBranches, error) {
	candidates, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.FindDeliverableBranches: %w", err)
	}
	return s.finder.FindDeliverableBranches(ctx, address, candidates, 0)
}
