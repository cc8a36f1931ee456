package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

// valid returns a configuration that passes validation
func valid() *Config {
	cfg := Default()
	cfg.Directory = "tracks"
	cfg.SetCenter(13.4, 52.5)
	return cfg
}

func TestDefaultIsValidWithDirectoryAndCenter(t *testing.T) {
	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no source", func(c *Config) { c.Directory = "" }, "directory is required"},
		{"missing placeholder", func(c *Config) { c.URL = "https://tile.example.com/{z}/{x}.png" }, "{y}"},
		{"bad scheme", func(c *Config) { c.URL = "ftp://tile.example.com/{z}/{x}/{y}.png" }, "http"},
		{"tint too high", func(c *Config) { c.Tint = 1.5 }, "tint"},
		{"tint negative", func(c *Config) { c.Tint = -0.1 }, "tint"},
		{"zoom too deep", func(c *Config) { c.Zoom = 21 }, "zoom"},
		{"zero width", func(c *Config) { c.Width = 0 }, "width"},
		{"unknown heatmap", func(c *Config) { c.Heatmap = "hexagon" }, "heatmap must be one of"},
		{"unknown palette", func(c *Config) { c.Palette = "blue" }, "palette"},
		{"unknown stream format", func(c *Config) { c.StreamFormat = "gif" }, "streamformat"},
		{"zero frame rate", func(c *Config) { c.FrameRate = 0 }, "framerate"},
		{"latitude off the map", func(c *Config) { c.SetCenter(0, 89) }, "lat"},
		{"no latitude", func(c *Config) { c.Lat = nil }, "lat is required"},
		{"no longitude", func(c *Config) { c.Lon = nil }, "lon is required"},
		{"squadratino at zoom 0", func(c *Config) { c.Heatmap, c.Zoom = "squadratino", 0 }, "raise the zoom"},
		{"squadrat at zoom 2", func(c *Config) { c.Heatmap, c.Zoom = "squadrat", 2 }, "too many cells"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEquatorAndMeridianAreValidCenters(t *testing.T) {
	cfg := valid()
	cfg.SetCenter(0, 0)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if lon, lat := cfg.Center(); lon != 0 || lat != 0 {
		t.Errorf("Center() = %v, %v", lon, lat)
	}
}

func TestSquadratinoFitsAtCityZoom(t *testing.T) {
	cfg := valid()
	cfg.Heatmap, cfg.Zoom = "squadratino", 12
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDatabaseAloneIsEnough(t *testing.T) {
	cfg := valid()
	cfg.Directory = ""
	cfg.Database = "heatmap.db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heatmap.yml")
	yml := "directory: from-file\nlat: 52.5\nlon: 13.4\nzoom: 12\ntint: 0.5\nwidth: 800\npalette: fire\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	vars := map[string]string{
		"HEATMAP_CONFIG": path,
		"HEATMAP_ZOOM":   "13",
		"HEATMAP_STREAM": "true",
	}
	cfg, err := Load([]string{"-tint", "0.25", "tracks", "-frame-rate", "10"}, env(vars), io.Discard)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Directory != "tracks" {
		t.Errorf("Directory = %q, want positional argument", cfg.Directory)
	}
	if cfg.Zoom != 13 {
		t.Errorf("Zoom = %d, want env value 13", cfg.Zoom)
	}
	if cfg.Tint != 0.25 {
		t.Errorf("Tint = %v, want flag value 0.25", cfg.Tint)
	}
	if cfg.Width != 800 || cfg.Palette != "fire" {
		t.Errorf("file values lost: width %d palette %q", cfg.Width, cfg.Palette)
	}
	if cfg.Height != 1080 {
		t.Errorf("Height = %d, want default 1080", cfg.Height)
	}
	if !cfg.Stream {
		t.Error("Stream not taken from env")
	}
	if cfg.FrameRate != 10 {
		t.Errorf("FrameRate = %d, want 10", cfg.FrameRate)
	}
}

func TestLoadConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yml")
	if err := os.WriteFile(path, []byte("database: runs.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{"--config=" + path, "-stream_format", "ppm", "-lat", "-33.9", "-lon=151.2"}, env(nil), io.Discard)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database != "runs.db" || cfg.StreamFormat != "ppm" {
		t.Errorf("cfg = %+v", cfg)
	}
	if lon, lat := cfg.Center(); lon != 151.2 || lat != -33.9 {
		t.Errorf("Center() = %v, %v", lon, lat)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		vars map[string]string
	}{
		{"bad env number", []string{"tracks"}, map[string]string{"HEATMAP_WIDTH": "wide"}},
		{"unknown flag", []string{"-colour", "red", "tracks"}, nil},
		{"two directories", []string{"a", "b"}, nil},
		{"invalid value", []string{"-zoom", "30", "tracks"}, nil},
		{"missing file", []string{"-config", "/nonexistent/heatmap.yml"}, nil},
		{"no center", []string{"tracks"}, nil},
		{"bad latitude", []string{"-lat", "north", "-lon", "0", "tracks"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args, env(tt.vars), io.Discard); err == nil {
				t.Error("expected error")
			}
		})
	}
}
