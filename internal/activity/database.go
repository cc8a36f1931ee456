package activity

import (
	"context"
	"fmt"
	"log"

	"github.com/jengzang/records-heatmap/internal/models"
)

// ActivityLister lists stored activities
type ActivityLister interface {
	ListActivities(ctx context.Context) ([]models.Activity, error)
}

// DatabaseSource renders a previously imported activity set
type DatabaseSource struct {
	repo ActivityLister
}

// NewDatabaseSource returns a source reading from repo
func NewDatabaseSource(repo ActivityLister) *DatabaseSource {
	return &DatabaseSource{repo: repo}
}

// Activities implements Source
func (s *DatabaseSource) Activities(ctx context.Context, _ LoadOptions) ([]models.Activity, models.ImportStats, error) {
	acts, err := s.repo.ListActivities(ctx)
	if err != nil {
		return nil, models.ImportStats{}, fmt.Errorf("failed to load stored activities: %w", err)
	}
	log.Printf("[Activity] Loaded %d stored activities", len(acts))
	return acts, models.ImportStats{}, nil
}
