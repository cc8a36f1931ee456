package tilecache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/maptile"
)

func solidPNG(t testing.TB, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b, a := c.RGBA()
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// tileServer serves a PNG for every tile except zoom 13, which answers 404
type tileServer struct {
	*httptest.Server
	hits      atomic.Int32
	userAgent atomic.Value
	delay     time.Duration
	body      []byte
}

func newTileServer(t *testing.T) *tileServer {
	gin.SetMode(gin.TestMode)
	ts := &tileServer{body: solidPNG(t, color.NRGBA{R: 200, A: 255})}

	r := gin.New()
	r.GET("/tiles/:z/:x/:y", func(c *gin.Context) {
		ts.hits.Add(1)
		ts.userAgent.Store(c.GetHeader("User-Agent"))
		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}
		switch c.Param("z") {
		case "13":
			c.Status(http.StatusNotFound)
		case "12":
			c.Data(http.StatusOK, "text/html", []byte("<html>rate limited</html>"))
		default:
			c.Data(http.StatusOK, "image/png", ts.body)
		}
	})
	ts.Server = httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func newTestDownloader(t *testing.T, ts *tileServer) *Downloader {
	d, err := NewDownloader(Options{
		URLPattern: ts.URL + "/tiles/{z}/{x}/{y}.png",
		CacheDir:   t.TempDir(),
		UserAgent:  "heatmap-test",
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestValidateURLPattern(t *testing.T) {
	tests := []struct {
		pattern string
		valid   bool
	}{
		{"https://tile.openstreetmap.org/{z}/{x}/{y}.png", true},
		{"http://localhost:8080/{z}/{x}/{y}?key=abc", true},
		{"https://tile.openstreetmap.org/{z}/{x}.png", false},
		{"ftp://tiles.example.com/{z}/{x}/{y}.png", false},
		{"/{z}/{x}/{y}.png", false},
		{"", false},
	}
	for _, tt := range tests {
		err := ValidateURLPattern(tt.pattern)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateURLPattern(%q) = %v, valid %v", tt.pattern, err, tt.valid)
		}
	}
}

func TestURLAndCachePath(t *testing.T) {
	d, err := NewDownloader(Options{
		URLPattern: "https://tiles.example.com/{z}/{x}/{y}.jpg?key=secret",
		CacheDir:   "/cache",
	})
	if err != nil {
		t.Fatal(err)
	}

	u := d.URL(maptile.New(3, 5, 10))
	if u != "https://tiles.example.com/10/3/5.jpg?key=secret" {
		t.Errorf("URL = %s", u)
	}

	p := d.CachePath(u)
	name := filepath.Base(p)
	if filepath.Dir(p) != "/cache" || !strings.HasSuffix(name, ".jpg") {
		t.Errorf("CachePath = %s", p)
	}
	hash := strings.TrimSuffix(name, ".jpg")
	if len(hash) != 64 || strings.ToUpper(hash) != hash {
		t.Errorf("hash part = %s, want 64 upper-case hex digits", hash)
	}
	if d.CachePath(d.URL(maptile.New(3, 6, 10))) == p {
		t.Error("different tiles share a cache path")
	}

	d2, _ := NewDownloader(Options{URLPattern: "https://tiles.example.com/{z}/{x}/{y}", CacheDir: "/cache"})
	if ext := filepath.Ext(d2.CachePath(d2.URL(maptile.New(1, 1, 1)))); ext != ".png" {
		t.Errorf("default extension = %s", ext)
	}
}

func TestFetchCachesTile(t *testing.T) {
	ts := newTileServer(t)
	d := newTestDownloader(t, ts)
	tile := maptile.New(1, 2, 3)

	first, err := d.Fetch(context.Background(), tile)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := d.Fetch(context.Background(), tile)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if !bytes.Equal(first, ts.body) || !bytes.Equal(second, ts.body) {
		t.Error("fetched bytes differ from served tile")
	}
	if n := ts.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
	if ua := ts.userAgent.Load(); ua != "heatmap-test" {
		t.Errorf("User-Agent = %v", ua)
	}
	onDisk, err := os.ReadFile(d.CachePath(d.URL(tile)))
	if err != nil {
		t.Fatalf("cache entry missing: %v", err)
	}
	if !bytes.Equal(onDisk, ts.body) {
		t.Error("cache entry differs from served tile")
	}
}

func TestFetchNotFoundLeavesNoEntry(t *testing.T) {
	ts := newTileServer(t)
	d := newTestDownloader(t, ts)
	tile := maptile.New(1, 1, 13)

	_, err := d.Fetch(context.Background(), tile)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 StatusError", err)
	}
	if _, err := os.Stat(d.CachePath(d.URL(tile))); !os.IsNotExist(err) {
		t.Errorf("cache entry exists after 404: %v", err)
	}
	entries, _ := os.ReadDir(d.CacheDir())
	if len(entries) != 0 {
		t.Errorf("cache dir has %d leftover files", len(entries))
	}

	if _, err := d.Fetch(context.Background(), tile); err == nil {
		t.Fatal("second fetch should fail again")
	}
	if n := ts.hits.Load(); n != 2 {
		t.Errorf("server hits = %d, want 2 (failure must not be cached)", n)
	}
}

func TestFetchRejectsNonImage(t *testing.T) {
	ts := newTileServer(t)
	d := newTestDownloader(t, ts)
	tile := maptile.New(0, 0, 12)

	if _, err := d.Fetch(context.Background(), tile); err == nil {
		t.Fatal("expected error for non-image body")
	}
	if _, err := os.Stat(d.CachePath(d.URL(tile))); !os.IsNotExist(err) {
		t.Errorf("cache entry exists for non-image body: %v", err)
	}
}

func TestFetchReplacesCorruptEntry(t *testing.T) {
	ts := newTileServer(t)
	d := newTestDownloader(t, ts)
	tile := maptile.New(4, 4, 4)
	p := d.CachePath(d.URL(tile))

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := d.Fetch(context.Background(), tile)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(data, ts.body) {
		t.Error("corrupt entry returned")
	}
	if n := ts.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
	onDisk, _ := os.ReadFile(p)
	if !bytes.Equal(onDisk, ts.body) {
		t.Error("corrupt entry not replaced")
	}
}

func TestFetchConcurrentSameTile(t *testing.T) {
	ts := newTileServer(t)
	ts.delay = 50 * time.Millisecond
	d := newTestDownloader(t, ts)
	tile := maptile.New(7, 7, 7)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Fetch(context.Background(), tile); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if n := ts.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

func TestFetchTransportError(t *testing.T) {
	ts := newTileServer(t)
	d := newTestDownloader(t, ts)
	ts.Close()

	tile := maptile.New(1, 1, 1)
	if _, err := d.Fetch(context.Background(), tile); err == nil {
		t.Fatal("expected transport error")
	}
	if _, err := os.Stat(d.CachePath(d.URL(tile))); !os.IsNotExist(err) {
		t.Errorf("cache entry exists after transport error: %v", err)
	}
}
