// Package tilecache downloads background map tiles through a content-addressed
// disk cache and stitches them into a base image for a viewport.
package tilecache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/jengzang/records-heatmap/pkg/atomicfile"
)

// DefaultUserAgent identifies the client to tile providers
const DefaultUserAgent = "records-heatmap/0.1 (+https://github.com/jengzang/records-heatmap)"

// DefaultURL is the standard OpenStreetMap tile server
const DefaultURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

// StatusError is returned when the tile server answers with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile server returned %s for %s", e.Status, e.URL)
}

// Options configures a Downloader
type Options struct {
	URLPattern string
	CacheDir   string
	UserAgent  string
	Client     *http.Client
}

// Downloader fetches tiles and keeps their raw bytes in a cache directory.
// It is safe for concurrent use; concurrent fetches of one URL share a single
// request.
type Downloader struct {
	urlPattern string
	cacheDir   string
	userAgent  string
	client     *http.Client
	group      singleflight.Group
}

// DefaultCacheDir returns <user cache dir>/derive.rs/tiles
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache dir: %w", err)
	}
	return filepath.Join(dir, "derive.rs", "tiles"), nil
}

// NewDownloader validates opts and fills in defaults
func NewDownloader(opts Options) (*Downloader, error) {
	if err := ValidateURLPattern(opts.URLPattern); err != nil {
		return nil, err
	}
	if opts.CacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		opts.CacheDir = dir
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Downloader{
		urlPattern: opts.URLPattern,
		cacheDir:   opts.CacheDir,
		userAgent:  opts.UserAgent,
		client:     opts.Client,
	}, nil
}

// ValidateURLPattern checks that pattern is an http(s) URL with {z}, {x} and
// {y} placeholders.
func ValidateURLPattern(pattern string) error {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(pattern, p) {
			return fmt.Errorf("tile url %q is missing the %s placeholder", pattern, p)
		}
	}
	u, err := url.Parse(expand(pattern, 0, 0, 0))
	if err != nil {
		return fmt.Errorf("invalid tile url %q: %w", pattern, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("tile url %q must use http or https", pattern)
	}
	if u.Host == "" {
		return fmt.Errorf("tile url %q has no host", pattern)
	}
	return nil
}

func expand(pattern string, z, x, y uint32) string {
	return strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(z), 10),
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
	).Replace(pattern)
}

// CacheDir returns the directory holding cached tiles
func (d *Downloader) CacheDir() string {
	return d.cacheDir
}

// URL resolves the tile URL for t
func (d *Downloader) URL(t maptile.Tile) string {
	return expand(d.urlPattern, uint32(t.Z), t.X, t.Y)
}

// CachePath returns the cache file for a resolved tile URL: the upper-case
// hex SHA-256 of the URL, with the extension of the URL path or ".png".
func (d *Downloader) CachePath(tileURL string) string {
	sum := sha256.Sum256([]byte(tileURL))
	ext := ".png"
	if u, err := url.Parse(tileURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return filepath.Join(d.cacheDir, fmt.Sprintf("%X", sum)+ext)
}

// Fetch returns the raw image bytes of tile t, from the cache when possible
func (d *Downloader) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	tileURL := d.URL(t)
	v, err, _ := d.group.Do(tileURL, func() (interface{}, error) {
		return d.fetch(ctx, tileURL)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (d *Downloader) fetch(ctx context.Context, tileURL string) ([]byte, error) {
	cached := d.CachePath(tileURL)
	if data, err := readCached(cached); err == nil {
		log.Printf("[TileCache] cached: %s", tileURL)
		return data, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[TileCache] Discarding unreadable cache entry %s: %v", cached, err)
	}

	log.Printf("[TileCache] fetch:  %s", tileURL)
	data, err := d.download(ctx, tileURL)
	if err != nil {
		return nil, err
	}
	if err := atomicfile.WriteFile(cached, data); err != nil {
		return nil, fmt.Errorf("failed to cache tile %s: %w", tileURL, err)
	}
	return data, nil
}

func (d *Downloader) download(ctx context.Context, tileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", tileURL, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", tileURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: tileURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", tileURL, err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("tile %s is not an image: %w", tileURL, err)
	}
	return data, nil
}

// readCached returns a cache entry only if it decodes as an image
func readCached(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("corrupt tile: %w", err)
	}
	return data, nil
}
