package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/records-heatmap/internal/database"
	"github.com/jengzang/records-heatmap/internal/models"
)

func newRepo(t *testing.T) *ActivityRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "heatmap.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewActivityRepository(db)
}

func TestSaveAndListPreservesOrder(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2024, 5, d, 8, 30, 0, 0, time.UTC) }
	acts := []models.Activity{
		{Name: "late", Date: day(3), Points: []orb.Point{{1, 2}, {3, 4}, {5, 6}}},
		{Name: "early", Date: day(1), Source: "a.gpx", Points: []orb.Point{{-0.1, 51.5}}},
	}
	if err := repo.SaveActivities(ctx, acts); err != nil {
		t.Fatalf("SaveActivities: %v", err)
	}
	if acts[0].ID == 0 || acts[1].ID == 0 {
		t.Errorf("ids not written back: %d, %d", acts[0].ID, acts[1].ID)
	}

	got, err := repo.ListActivities(ctx)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d activities, want 2", len(got))
	}
	if got[0].Name != "early" || got[1].Name != "late" {
		t.Errorf("order = %q, %q", got[0].Name, got[1].Name)
	}
	if !got[0].Date.Equal(day(1)) || got[0].Source != "a.gpx" {
		t.Errorf("first = %+v", got[0])
	}
	want := []orb.Point{{1, 2}, {3, 4}, {5, 6}}
	if len(got[1].Points) != len(want) {
		t.Fatalf("points = %v, want %v", got[1].Points, want)
	}
	for i := range want {
		if got[1].Points[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, got[1].Points[i], want[i])
		}
	}
}

func TestSaveReplacesSameActivity(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	date := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	first := []models.Activity{{Name: "run", Date: date, Points: []orb.Point{{1, 1}, {2, 2}}}}
	second := []models.Activity{{Name: "run", Date: date, Points: []orb.Point{{9, 9}}}}
	if err := repo.SaveActivities(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveActivities(ctx, second); err != nil {
		t.Fatal(err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
	got, err := repo.ListActivities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got[0].Points) != 1 || got[0].Points[0] != (orb.Point{9, 9}) {
		t.Errorf("points = %v, want [[9 9]]", got[0].Points)
	}
}

func TestListEmpty(t *testing.T) {
	repo := newRepo(t)
	got, err := repo.ListActivities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d activities, want 0", len(got))
	}
}
