package activity

import (
	"context"
	"errors"
	"log"
	"runtime"
	"sort"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/records-heatmap/internal/models"
	"github.com/jengzang/records-heatmap/internal/spatial"
)

// ErrNoVisiblePoints is returned when no point of a track lies in the viewport
var ErrNoVisiblePoints = errors.New("no visible points")

// Projector maps a geographic point to a grid cell. Every heatmap is one.
type Projector interface {
	ProjectToScreen(p orb.Point) (spatial.ScreenPoint, bool)
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// ProjectToScreen keeps the visible points of a and drops repeated cells.
// A cell counts once per activity however far apart its visits are; the
// surviving cells keep the order of their first visit.
func ProjectToScreen(a models.Activity, p Projector) (models.ScreenActivity, error) {
	sa := models.ScreenActivity{Name: a.Name, Date: a.Date}
	seen := make(map[spatial.ScreenPoint]struct{}, len(a.Points))
	for _, pt := range a.Points {
		sp, ok := p.ProjectToScreen(pt)
		if !ok {
			continue
		}
		if _, dup := seen[sp]; dup {
			continue
		}
		seen[sp] = struct{}{}
		sa.Points = append(sa.Points, sp)
	}
	if len(sa.Points) == 0 {
		return sa, ErrNoVisiblePoints
	}
	return sa, nil
}

// Project converts activities in parallel. Activities with nothing visible
// are counted and dropped. The result is sorted by date; ties keep input order.
func Project(ctx context.Context, acts []models.Activity, p Projector, workers int) ([]models.ScreenActivity, models.ImportStats, error) {
	var stats models.ImportStats
	results := make([]models.ScreenActivity, len(acts))
	visible := make([]bool, len(acts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(workers))
	for i := range acts {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sa, err := ProjectToScreen(acts[i], p)
			if err == nil {
				results[i] = sa
				visible[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	out := make([]models.ScreenActivity, 0, len(acts))
	for i, ok := range visible {
		if !ok {
			stats.Invisible++
			continue
		}
		out = append(out, results[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	if stats.Invisible > 0 {
		log.Printf("[Activity] %d activities had no visible points", stats.Invisible)
	}
	return out, stats, nil
}
