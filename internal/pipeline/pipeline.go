// Package pipeline drives one heatmap run: load and project activities,
// accumulate them in chronological order, stream frames and write the final
// composite.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/records-heatmap/internal/activity"
	"github.com/jengzang/records-heatmap/internal/config"
	"github.com/jengzang/records-heatmap/internal/database"
	"github.com/jengzang/records-heatmap/internal/heatmap"
	"github.com/jengzang/records-heatmap/internal/models"
	"github.com/jengzang/records-heatmap/internal/repository"
	"github.com/jengzang/records-heatmap/internal/spatial"
	"github.com/jengzang/records-heatmap/internal/tilecache"
	"github.com/jengzang/records-heatmap/pkg/atomicfile"
)

// Deps are the collaborators of a run. Zero values select the real ones.
type Deps struct {
	Stdout   io.Writer            // frame stream, os.Stdout by default
	Progress io.Writer            // progress bar, os.Stderr when cfg.Progress
	Tiles    tilecache.TileSource // tile provider, a caching Downloader by default
}

// Run renders the heatmap described by cfg
func Run(ctx context.Context, cfg *config.Config, deps Deps) (models.HeatmapSummary, error) {
	summary := models.HeatmapSummary{Kind: cfg.Heatmap}
	if err := cfg.Validate(); err != nil {
		return summary, err
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Progress == nil && cfg.Progress {
		deps.Progress = os.Stderr
	}
	if cfg.Stream && IsTerminal(deps.Stdout) {
		return summary, ErrTerminalStream
	}

	m := cfg.Map()
	hm, err := newHeatmap(cfg, m)
	if err != nil {
		return summary, err
	}

	tiles := deps.Tiles
	if tiles == nil {
		d, err := tilecache.NewDownloader(tilecache.Options{
			URLPattern: cfg.URL,
			CacheDir:   cfg.CacheDir,
			UserAgent:  cfg.UserAgent,
		})
		if err != nil {
			return summary, fmt.Errorf("failed to create tile downloader: %w", err)
		}
		log.Printf("[Pipeline] Tile cache: %s", d.CacheDir())
		tiles = d
	}
	basemap := tilecache.NewBasemap(tiles, cfg.Fetchers)

	// The basemap only depends on the viewport, so it downloads while tracks
	// are parsed.
	var (
		base       *image.NRGBA
		activities []models.ScreenActivity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		img, err := basemap.Image(gctx, m)
		if err != nil {
			return fmt.Errorf("failed to build basemap: %w", err)
		}
		log.Printf("[Pipeline] Basemap ready in %v", time.Since(start).Round(time.Millisecond))
		base = img
		return nil
	})
	g.Go(func() error {
		acts, stats, err := loadActivities(gctx, cfg, hm, deps.Progress)
		summary.Skipped = stats
		if err != nil {
			return err
		}
		activities = acts
		return nil
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}
	log.Printf("[Pipeline] %d activities to render (%s)", len(activities), summary.Skipped)

	width, height := m.PixelSize()
	backdrop := tilecache.Composite(int(width), int(height), base, tilecache.Tint(m, cfg.Tint))

	var frames FrameWriter
	if cfg.Stream {
		frames, err = NewFrameWriter(deps.Stdout, cfg.StreamFormat)
		if err != nil {
			return summary, err
		}
	}
	emit := func(img *image.NRGBA) error {
		if cfg.StreamBasemap {
			img = tilecache.Composite(int(width), int(height), backdrop, img)
		}
		return frames.WriteFrame(img)
	}

	var points int
	for _, act := range activities {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		for _, p := range act.Points {
			hm.AddPoint(p)
			points++
			if frames != nil && points%cfg.FrameRate == 0 {
				if err := emit(hm.ImageWithOverlay(act.Name, act.Date)); err != nil {
					return summary, err
				}
			}
		}
		if cfg.Decay > 0 {
			hm.Decay(uint32(cfg.Decay))
		}
		summary.Activities++
	}
	summary.Points = points

	heat := hm.Image()
	if frames != nil {
		if err := emit(heat); err != nil {
			return summary, err
		}
		summary.Frames = frames.Frames()
	}
	summary.MaxValue = hm.MaxValue()

	final := tilecache.Composite(int(width), int(height), backdrop, heat)
	if err := WritePNG(cfg.Output, final); err != nil {
		return summary, err
	}
	log.Printf("[Pipeline] Wrote %s: %d activities, %d points, %d frames, max %d",
		cfg.Output, summary.Activities, summary.Points, summary.Frames, summary.MaxValue)
	return summary, nil
}

func newHeatmap(cfg *config.Config, m spatial.Map) (heatmap.Heatmap, error) {
	kind, err := heatmap.ParseKind(cfg.Heatmap)
	if err != nil {
		return nil, err
	}
	palette, err := heatmap.PaletteByName(cfg.Palette)
	if err != nil {
		return nil, err
	}
	opts := heatmap.Options{
		Palette:     palette,
		RenderTitle: cfg.Title,
		RenderDate:  cfg.Date,
		Workers:     cfg.Workers,
	}
	if cfg.Title || cfg.Date {
		if opts.Overlay, err = heatmap.NewOverlay(); err != nil {
			return nil, fmt.Errorf("failed to load overlay font: %w", err)
		}
	}
	return heatmap.New(kind, m, opts)
}

// loadActivities reads tracks from the directory, storing them when a
// database is configured, or from the database alone
func loadActivities(ctx context.Context, cfg *config.Config, p activity.Projector, progress io.Writer) ([]models.ScreenActivity, models.ImportStats, error) {
	var repo *repository.ActivityRepository
	if cfg.Database != "" {
		db, err := database.Open(database.Config{Path: cfg.Database})
		if err != nil {
			return nil, models.ImportStats{}, err
		}
		defer db.Close()
		repo = repository.NewActivityRepository(db)
	}

	var src activity.Source
	switch {
	case cfg.Directory != "" && repo != nil:
		src = &storingSource{src: activity.NewSource(cfg.Directory), repo: repo, path: cfg.Database}
	case cfg.Directory != "":
		src = activity.NewSource(cfg.Directory)
	default:
		src = activity.NewDatabaseSource(repo)
	}

	return activity.Load(ctx, src, p, activity.LoadOptions{Workers: cfg.Workers, Progress: progress})
}

// storingSource saves everything src reads before handing it on
type storingSource struct {
	src  activity.Source
	repo *repository.ActivityRepository
	path string
}

func (s *storingSource) Activities(ctx context.Context, opts activity.LoadOptions) ([]models.Activity, models.ImportStats, error) {
	acts, stats, err := s.src.Activities(ctx, opts)
	if err != nil {
		return nil, stats, err
	}
	if err := s.repo.SaveActivities(ctx, acts); err != nil {
		return nil, stats, fmt.Errorf("failed to store activities: %w", err)
	}
	log.Printf("[Pipeline] Stored %d activities in %s", len(acts), s.path)
	return acts, stats, nil
}

// WritePNG encodes img to path, replacing it only once encoding succeeded
func WritePNG(path string, img image.Image) error {
	err := atomicfile.Write(path, func(w io.Writer) error {
		return png.Encode(w, img)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
