// Package activity reads track files and activity exports and projects the
// tracks onto a heatmap grid.
package activity

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/tkrajina/gpxgo/gpx"
	"github.com/tormoder/fit"

	"github.com/jengzang/records-heatmap/internal/models"
)

var (
	// ErrNoTrackPoints is returned for a track without any position
	ErrNoTrackPoints = errors.New("no track points")

	// ErrUnknownFormat is returned for files that are neither GPX nor FIT
	ErrUnknownFormat = errors.New("unknown file type")
)

// IsTrackFile reports whether name has a supported extension
func IsTrackFile(name string) bool {
	_, ok := format(name)
	return ok
}

// format returns the track format of name, looking through a .gz suffix
func format(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".gz" {
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(name, filepath.Ext(name))))
	}
	switch ext {
	case ".gpx", ".fit":
		return ext, true
	}
	return "", false
}

// ParseFile reads a .gpx, .fit, .gpx.gz or .fit.gz file. Name and date come
// from the file when present, otherwise "Untitled" and now.
func ParseFile(path string) (*models.Activity, error) {
	ext, ok := format(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var a *models.Activity
	switch ext {
	case ".gpx":
		a, err = parseGPX(bufio.NewReader(r))
	case ".fit":
		a, err = parseFIT(bufio.NewReader(r))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	a.Source = path
	return a, nil
}

func parseGPX(r io.Reader) (*models.Activity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	if len(g.Tracks) == 0 {
		return nil, fmt.Errorf("file has no tracks: %w", ErrNoTrackPoints)
	}

	track := g.Tracks[0]
	a := &models.Activity{
		Name: track.Name,
		Date: time.Now().UTC(),
	}
	if a.Name == "" {
		a.Name = models.DefaultActivityName
	}

	var first time.Time
	for _, seg := range track.Segments {
		for _, p := range seg.Points {
			if first.IsZero() && !p.Timestamp.IsZero() {
				first = p.Timestamp
			}
			a.Points = append(a.Points, orb.Point{p.Longitude, p.Latitude})
		}
	}
	switch {
	case g.Time != nil && !g.Time.IsZero():
		a.Date = g.Time.UTC()
	case !first.IsZero():
		a.Date = first.UTC()
	}

	if len(a.Points) == 0 {
		return nil, ErrNoTrackPoints
	}
	return a, nil
}

func parseFIT(r io.Reader) (*models.Activity, error) {
	f, err := fit.Decode(r)
	if err != nil {
		return nil, err
	}
	act, err := f.Activity()
	if err != nil {
		return nil, err
	}

	a := &models.Activity{
		Name: models.DefaultActivityName,
		Date: time.Now().UTC(),
	}
	if created := f.FileId.TimeCreated; !created.IsZero() {
		a.Date = created.UTC()
	}
	for _, rec := range act.Records {
		if rec.PositionLat.Invalid() || rec.PositionLong.Invalid() {
			continue
		}
		a.Points = append(a.Points, orb.Point{rec.PositionLong.Degrees(), rec.PositionLat.Degrees()})
	}

	if len(a.Points) == 0 {
		return nil, ErrNoTrackPoints
	}
	return a, nil
}

// ParseBytes parses an in-memory track. name selects the format like a file
// name would.
func ParseBytes(name string, data []byte) (*models.Activity, error) {
	ext, ok := format(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownFormat)
	}
	var r io.Reader = bytes.NewReader(data)
	if strings.EqualFold(filepath.Ext(name), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	if ext == ".gpx" {
		return parseGPX(r)
	}
	return parseFIT(r)
}
