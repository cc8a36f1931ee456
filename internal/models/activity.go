package models

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/records-heatmap/internal/spatial"
)

// DefaultActivityName is used when a track carries no name
const DefaultActivityName = "Untitled"

// Activity is one parsed track
type Activity struct {
	ID     int64       `json:"id" db:"id"`
	Name   string      `json:"name" db:"name"`
	Date   time.Time   `json:"date" db:"started_at"`
	Source string      `json:"source,omitempty" db:"source"` // file the track was read from
	Points []orb.Point `json:"points"`                       // lon/lat in track order
}

// ScreenActivity is an activity projected onto the heatmap grid: visible
// cells only, each cell at most once, in order of first visit
type ScreenActivity struct {
	Name   string
	Date   time.Time
	Points []spatial.ScreenPoint
}

// ImportStats counts the items skipped while loading activities
type ImportStats struct {
	MissingFiles int `json:"missing_files"` // metadata rows without a track file
	RecordErrors int `json:"record_errors"` // unreadable metadata rows
	DateErrors   int `json:"date_errors"`   // unparsable timestamps, epoch used instead
	ParseErrors  int `json:"parse_errors"`  // track files that failed to parse or had no points
	Invisible    int `json:"invisible"`     // activities with no point inside the viewport
}

// Add merges o into s
func (s *ImportStats) Add(o ImportStats) {
	s.MissingFiles += o.MissingFiles
	s.RecordErrors += o.RecordErrors
	s.DateErrors += o.DateErrors
	s.ParseErrors += o.ParseErrors
	s.Invisible += o.Invisible
}

// Skipped returns the number of activities that were dropped
func (s ImportStats) Skipped() int {
	return s.MissingFiles + s.RecordErrors + s.ParseErrors + s.Invisible
}

func (s ImportStats) String() string {
	return fmt.Sprintf("missing files: %d, unreadable records: %d, bad dates: %d, parse errors: %d, not visible: %d",
		s.MissingFiles, s.RecordErrors, s.DateErrors, s.ParseErrors, s.Invisible)
}
