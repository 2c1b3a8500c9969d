package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"charity-delivery/internal/models"
)

type fakeStockRepo struct {
	inserted   []models.StockMovement
	lotIDs     []string
	expired    []string
	expireErrs map[string]error
}

func (f *fakeStockRepo) InsertMovements(_ context.Context, movements []models.StockMovement) error {
	f.inserted = append(f.inserted, movements...)
	return nil
}

func (f *fakeStockRepo) ListMovements(_ context.Context, _ string, _, _ int) ([]models.StockMovement, int, error) {
	return f.inserted, len(f.inserted), nil
}

func (f *fakeStockRepo) ListExpirableLotIDs(_ context.Context, _ time.Time) ([]string, error) {
	return f.lotIDs, nil
}

func (f *fakeStockRepo) ExpireLot(_ context.Context, lotID string) error {
	if err := f.expireErrs[lotID]; err != nil {
		return err
	}
	f.expired = append(f.expired, lotID)
	return nil
}

func TestRecordMovementsValidatesDirection(t *testing.T) {
	repo := &fakeStockRepo{}
	svc := NewService(repo)

	err := svc.RecordMovements(context.Background(), []models.StockMovement{
		{ID: "m-1", Direction: "sideways", Quantity: 1},
	})
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
	if len(repo.inserted) != 0 {
		t.Error("invalid movements must not be persisted")
	}

	err = svc.RecordMovements(context.Background(), []models.StockMovement{
		{ID: "m-2", Direction: models.StockMovementExport, Quantity: 3},
		{ID: "m-3", Direction: models.StockMovementImport, Quantity: 0},
	})
	if err != nil {
		t.Fatalf("RecordMovements: %v", err)
	}
	if len(repo.inserted) != 2 {
		t.Errorf("inserted = %d, want 2", len(repo.inserted))
	}
}

func TestExpireOutdatedStockSkipsFailures(t *testing.T) {
	repo := &fakeStockRepo{
		lotIDs:     []string{"lot-1", "lot-2", "lot-3"},
		expireErrs: map[string]error{"lot-2": models.ErrNotFound},
	}
	svc := NewService(repo)

	expired, err := svc.ExpireOutdatedStock(context.Background())
	if err != nil {
		t.Fatalf("ExpireOutdatedStock: %v", err)
	}
	if expired != 2 {
		t.Errorf("expired = %d, want 2", expired)
	}
	if len(repo.expired) != 2 {
		t.Errorf("repo.expired = %v", repo.expired)
	}
}
