package activity

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/records-heatmap/internal/models"
)

// Source produces the activities to render
type Source interface {
	Activities(ctx context.Context, opts LoadOptions) ([]models.Activity, models.ImportStats, error)
}

// LoadOptions controls how a source reads its tracks
type LoadOptions struct {
	Workers  int       // parallel parsers, <= 0 means GOMAXPROCS
	Progress io.Writer // progress bar destination, nil disables it
}

// job is one track file waiting to be parsed
type job struct {
	path string
	name string // overrides the name found in the file when set
	date *time.Time
}

func newBar(total int, w io.Writer, desc string) *progressbar.ProgressBar {
	if w == nil {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// parseAll parses every job in parallel. Failed files are logged and counted;
// the result keeps the order of jobs.
func parseAll(ctx context.Context, jobs []job, opts LoadOptions) ([]models.Activity, models.ImportStats, error) {
	var stats models.ImportStats
	results := make([]*models.Activity, len(jobs))
	bar := newBar(len(jobs), opts.Progress, "Parsing activities")

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(opts.Workers))
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			defer bar.Add(1)

			a, err := ParseFile(j.path)
			if err != nil {
				log.Printf("[Activity] Skipping %s: %v", j.path, err)
				mu.Lock()
				stats.ParseErrors++
				mu.Unlock()
				return nil
			}
			if j.name != "" {
				a.Name = j.name
			}
			if j.date != nil {
				a.Date = *j.date
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	_ = bar.Finish()

	out := make([]models.Activity, 0, len(results))
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, stats, nil
}

// Load reads all activities from src, projects them and returns the visible
// ones in chronological order
func Load(ctx context.Context, src Source, p Projector, opts LoadOptions) ([]models.ScreenActivity, models.ImportStats, error) {
	acts, stats, err := src.Activities(ctx, opts)
	if err != nil {
		return nil, stats, err
	}
	screen, projStats, err := Project(ctx, acts, p, opts.Workers)
	stats.Add(projStats)
	return screen, stats, err
}
