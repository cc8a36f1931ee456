package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/records-heatmap/internal/database"
	"github.com/jengzang/records-heatmap/internal/models"
)

// ActivityRepository stores parsed activities and their points
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// SaveActivities stores activities in one transaction. An activity with the
// same name and date as a stored one replaces it. IDs are written back.
func (r *ActivityRepository) SaveActivities(ctx context.Context, acts []models.Activity) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx, `DELETE FROM activities WHERE name = ? AND started_at = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare delete: %w", err)
		}
		defer del.Close()

		ins, err := tx.PrepareContext(ctx, `INSERT INTO activities (name, started_at, source, point_count) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer ins.Close()

		insPoint, err := tx.PrepareContext(ctx, `INSERT INTO activity_points (activity_id, seq, longitude, latitude) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare point insert: %w", err)
		}
		defer insPoint.Close()

		for i := range acts {
			a := &acts[i]
			started := a.Date.UnixNano()
			if _, err := del.ExecContext(ctx, a.Name, started); err != nil {
				return fmt.Errorf("failed to replace activity %q: %w", a.Name, err)
			}
			res, err := ins.ExecContext(ctx, a.Name, started, a.Source, len(a.Points))
			if err != nil {
				return fmt.Errorf("failed to insert activity %q: %w", a.Name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get activity id: %w", err)
			}
			for seq, p := range a.Points {
				if _, err := insPoint.ExecContext(ctx, id, seq, p.Lon(), p.Lat()); err != nil {
					return fmt.Errorf("failed to insert point %d of %q: %w", seq, a.Name, err)
				}
			}
			a.ID = id
		}
		return nil
	})
}

// ListActivities returns every stored activity ordered by date, points in
// track order
func (r *ActivityRepository) ListActivities(ctx context.Context) ([]models.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, started_at, source FROM activities ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}

	var acts []models.Activity
	index := make(map[int64]int)
	for rows.Next() {
		var a models.Activity
		var started int64
		if err := rows.Scan(&a.ID, &a.Name, &started, &a.Source); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Date = time.Unix(0, started).UTC()
		index[a.ID] = len(acts)
		acts = append(acts, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activities: %w", err)
	}

	points, err := r.db.QueryContext(ctx, `SELECT activity_id, seq, longitude, latitude FROM activity_points ORDER BY activity_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity points: %w", err)
	}
	defer points.Close()

	for points.Next() {
		var p models.TrackPoint
		if err := points.Scan(&p.ActivityID, &p.Seq, &p.Longitude, &p.Latitude); err != nil {
			return nil, fmt.Errorf("failed to scan activity point: %w", err)
		}
		i, ok := index[p.ActivityID]
		if !ok {
			continue
		}
		acts[i].Points = append(acts[i].Points, orb.Point{p.Longitude, p.Latitude})
	}
	if err := points.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity points: %w", err)
	}

	return acts, nil
}

// Count returns the number of stored activities
func (r *ActivityRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return n, nil
}
