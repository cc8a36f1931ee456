package activity

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jengzang/records-heatmap/internal/models"
)

// ExportIndex is the metadata file at the root of a bulk activity export
const ExportIndex = "activities.csv"

const (
	colDate     = "Activity Date"
	colName     = "Activity Name"
	colFilename = "Filename"
)

// Timestamps in the export index, e.g. "Jan 2, 2006, 3:04:05 PM"
var exportDateLayouts = []string{
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006 3:04:05 PM",
	"2006-01-02 15:04:05",
}

// ExportSource reads a bulk export: an activities.csv index naming one track
// file per activity, relative to the export root
type ExportSource struct {
	Dir string
}

// NewExportSource returns a source for the export rooted at dir
func NewExportSource(dir string) *ExportSource {
	return &ExportSource{Dir: dir}
}

// HasExportIndex reports whether dir looks like a bulk export
func HasExportIndex(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ExportIndex))
	return err == nil && !info.IsDir()
}

// ParseExportDate parses an index timestamp as UTC
func ParseExportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range exportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised activity date %q", s)
}

// Activities implements Source
func (s *ExportSource) Activities(ctx context.Context, opts LoadOptions) ([]models.Activity, models.ImportStats, error) {
	f, err := os.Open(filepath.Join(s.Dir, ExportIndex))
	if err != nil {
		return nil, models.ImportStats{}, fmt.Errorf("failed to open export index: %w", err)
	}
	defer f.Close()

	jobs, stats, err := readExportIndex(f, s.Dir)
	if err != nil {
		return nil, stats, err
	}
	log.Printf("[Activity] Export index lists %d track files", len(jobs))

	acts, parseStats, err := parseAll(ctx, jobs, opts)
	stats.Add(parseStats)
	return acts, stats, err
}

func readExportIndex(r io.Reader, root string) ([]job, models.ImportStats, error) {
	var stats models.ImportStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read export header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, want := range []string{colDate, colName, colFilename} {
		if _, ok := cols[want]; !ok {
			return nil, stats, fmt.Errorf("export header has no %q column", want)
		}
	}
	field := func(rec []string, name string) (string, bool) {
		i := cols[name]
		if i >= len(rec) {
			return "", false
		}
		return rec[i], true
	}

	var jobs []job
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.RecordErrors++
				continue
			}
			return nil, stats, fmt.Errorf("failed to read export index: %w", err)
		}

		filename, ok := field(rec, colFilename)
		if !ok {
			stats.RecordErrors++
			continue
		}
		if strings.TrimSpace(filename) == "" {
			stats.MissingFiles++
			continue
		}
		name, _ := field(rec, colName)
		rawDate, _ := field(rec, colDate)

		date, err := ParseExportDate(rawDate)
		if err != nil {
			log.Printf("[Activity] %v", err)
			stats.DateErrors++
			date = time.Unix(0, 0).UTC()
		}
		jobs = append(jobs, job{
			path: filepath.Join(root, filepath.FromSlash(filename)),
			name: name,
			date: &date,
		})
	}

	if stats.MissingFiles > 0 {
		log.Printf("[Activity] Found %d activities without files", stats.MissingFiles)
	}
	if stats.RecordErrors > 0 {
		log.Printf("[Activity] Could not read %d activity records", stats.RecordErrors)
	}
	if stats.DateErrors > 0 {
		log.Printf("[Activity] Could not parse %d timestamps", stats.DateErrors)
	}
	return jobs, stats, nil
}
