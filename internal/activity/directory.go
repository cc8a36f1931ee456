package activity

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"

	"github.com/jengzang/records-heatmap/internal/models"
)

// DirectorySource reads every track file below Dir
type DirectorySource struct {
	Dir string
}

// NewDirectorySource returns a source over the track files below dir
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{Dir: dir}
}

// NewSource picks an ExportSource when dir has an export index, otherwise a
// DirectorySource
func NewSource(dir string) Source {
	if HasExportIndex(dir) {
		return NewExportSource(dir)
	}
	return NewDirectorySource(dir)
}

// Activities implements Source
func (s *DirectorySource) Activities(ctx context.Context, opts LoadOptions) ([]models.Activity, models.ImportStats, error) {
	var jobs []job
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsTrackFile(d.Name()) {
			jobs = append(jobs, job{path: path})
		}
		return nil
	})
	if err != nil {
		return nil, models.ImportStats{}, fmt.Errorf("failed to scan %s: %w", s.Dir, err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].path < jobs[j].path })
	log.Printf("[Activity] Found %d track files in %s", len(jobs), s.Dir)

	return parseAll(ctx, jobs, opts)
}
