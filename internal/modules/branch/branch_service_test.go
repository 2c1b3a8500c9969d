package branch

import (
	"context"
	"testing"

	"charity-delivery/internal/models"
)

type fakeBranchRepo struct {
	active []models.Branch
}

func (f *fakeBranchRepo) FindByID(_ context.Context, id string) (*models.Branch, error) {
	for i := range f.active {
		if f.active[i].ID == id {
			return &f.active[i], nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeBranchRepo) ListActive(_ context.Context) ([]models.Branch, error) {
	return f.active, nil
}

type fakeFinder struct {
	gotOrigin     string
	gotCandidates []models.Branch
	result        *models.DeliverableBranches
}

func (f *fakeFinder) FindDeliverableBranches(_ context.Context, origin string, candidates []models.Branch, _ float64) (*models.DeliverableBranches, error) {
	f.gotOrigin = origin
	f.gotCandidates = candidates
	return f.result, nil
}

func TestFindDeliverableBranchesPassesActiveCandidates(t *testing.T) {
	repo := &fakeBranchRepo{active: []models.Branch{
		{ID: "branch-1", IsActive: true},
		{ID: "branch-2", IsActive: true},
	}}
	finder := &fakeFinder{result: &models.DeliverableBranches{}}
	svc := NewService(repo, finder)

	out, err := svc.FindDeliverableBranches(context.Background(), "1234 Grand Avenue, Oakland")
	if err != nil {
		t.Fatalf("FindDeliverableBranches: %v", err)
	}
	if out != finder.result {
		t.Error("result should come straight from the finder")
	}
	if finder.gotOrigin != "1234 Grand Avenue, Oakland" {
		t.Errorf("origin = %q", finder.gotOrigin)
	}
	if len(finder.gotCandidates) != 2 {
		t.Errorf("candidates = %d, want the repository's active branches", len(finder.gotCandidates))
	}
}
