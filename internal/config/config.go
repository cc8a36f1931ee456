package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jengzang/records-heatmap/internal/heatmap"
	"github.com/jengzang/records-heatmap/internal/spatial"
	"github.com/jengzang/records-heatmap/internal/tilecache"
)

// Config is the configuration of one rendering run
type Config struct {
	Directory string `yaml:"directory" validate:"required_without=Database"`
	Database  string `yaml:"database"` // SQLite file; imported tracks are stored here

	Lat    *float64 `yaml:"lat" validate:"required,gte=-85.0511,lte=85.0511"`
	Lon    *float64 `yaml:"lon" validate:"required,gte=-180,lte=180"`
	Width  int     `yaml:"width" validate:"gt=0,lte=16384"`
	Height int     `yaml:"height" validate:"gt=0,lte=16384"`
	Zoom   int     `yaml:"zoom" validate:"gte=0,lte=20"`
	Output string  `yaml:"output" validate:"required"`

	URL       string  `yaml:"url" validate:"required,tileurl"`
	UserAgent string  `yaml:"user_agent"`
	CacheDir  string  `yaml:"cache_dir"`
	Tint      float64 `yaml:"tint" validate:"gte=0,lte=1"`

	Heatmap string `yaml:"heatmap" validate:"oneof=pixel squadrat squadratino"`
	Palette string `yaml:"palette" validate:"oneof=red classic fire omg pbj"`
	Decay   int    `yaml:"decay" validate:"gte=0"` // subtracted after each activity, 0 disables

	Stream        bool   `yaml:"stream"`
	StreamFormat  string `yaml:"stream_format" validate:"oneof=png ppm"`
	StreamBasemap bool   `yaml:"stream_basemap"` // frames include basemap and tint
	FrameRate     int    `yaml:"frame_rate" validate:"gt=0"`
	Title         bool   `yaml:"title"`
	Date          bool   `yaml:"date"`

	Workers  int  `yaml:"workers" validate:"gte=0"` // 0 means one per CPU
	Fetchers int  `yaml:"fetchers" validate:"gte=0"`
	Progress bool `yaml:"progress"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Width:        1920,
		Height:       1080,
		Zoom:         10,
		Output:       "heatmap.png",
		URL:          tilecache.DefaultURL,
		UserAgent:    tilecache.DefaultUserAgent,
		Tint:         0.8,
		Heatmap:      "pixel",
		Palette:      "red",
		StreamFormat: "png",
		FrameRate:    1500,
		Fetchers:     tilecache.DefaultFetchConcurrency,
		Progress:     true,
	}
}

// EnvPrefix prefixes every environment override
const EnvPrefix = "HEATMAP_"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("tileurl", func(fl validator.FieldLevel) bool {
		return tilecache.ValidateURLPattern(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
	v.RegisterStructValidation(gridSize, Config{})
	return v
}

// SetCenter sets the viewport center
func (c *Config) SetCenter(lon, lat float64) {
	c.Lon, c.Lat = &lon, &lat
}

// Center returns the viewport center, 0,0 when unset
func (c *Config) Center() (lon, lat float64) {
	if c.Lon != nil {
		lon = *c.Lon
	}
	if c.Lat != nil {
		lat = *c.Lat
	}
	return lon, lat
}

// Map returns the viewport described by c
func (c *Config) Map() spatial.Map {
	lon, lat := c.Center()
	return spatial.NewMap(lon, lat, uint32(c.Width), uint32(c.Height), uint8(c.Zoom))
}

// gridSize rejects tile heatmaps whose grid would not fit the counter budget
// of the viewport. Field errors are reported by the field rules.
func gridSize(sl validator.StructLevel) {
	c, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	kind, err := heatmap.ParseKind(c.Heatmap)
	if err != nil || c.Width <= 0 || c.Height <= 0 || c.Zoom < 0 || c.Zoom > 20 {
		return
	}
	if err := heatmap.CheckGridSize(kind, c.Map()); err != nil {
		sl.ReportError(c.Heatmap, "Heatmap", "Heatmap", "gridsize", strconv.Itoa(c.Zoom))
	}
}

// Validate checks every field
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "tileurl":
		if err := tilecache.ValidateURLPattern(fmt.Sprint(fe.Value())); err != nil {
			return fmt.Sprintf("%s: %v", name, err)
		}
	case "required", "required_without":
		return fmt.Sprintf("%s is required", name)
	case "gridsize":
		return fmt.Sprintf("%s %v has too many cells at zoom %s; raise the zoom or use the pixel heatmap", name, fe.Value(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", name, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %q check (%s), got %v", name, fe.Tag(), fe.Param(), fe.Value())
}

// LoadFile merges the YAML file at path over c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from HEATMAP_* variables, e.g. HEATMAP_ZOOM=12
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for _, f := range c.fields() {
		raw := getenv(EnvPrefix + strings.ToUpper(f.name))
		if raw == "" {
			continue
		}
		if err := f.value.Set(raw); err != nil {
			return fmt.Errorf("failed to parse %s%s=%q: %w", EnvPrefix, strings.ToUpper(f.name), raw, err)
		}
	}
	return nil
}

// field binds one config key to its flag.Value
type field struct {
	name  string
	usage string
	value flag.Value
}

func (c *Config) fields() []field {
	return []field{
		{"directory", "directory containing the activities", (*stringValue)(&c.Directory)},
		{"database", "SQLite file to store imported activities in, or to render from", (*stringValue)(&c.Database)},
		{"lat", "latitude of the viewport center (required)", optionalFloat{&c.Lat}},
		{"lon", "longitude of the viewport center (required)", optionalFloat{&c.Lon}},
		{"width", "width of the output, in pixels", (*intValue)(&c.Width)},
		{"height", "height of the output, in pixels", (*intValue)(&c.Height)},
		{"zoom", "zoom level", (*intValue)(&c.Zoom)},
		{"output", "PNG file for the final heatmap", (*stringValue)(&c.Output)},
		{"url", "URL pattern for background tiles", (*stringValue)(&c.URL)},
		{"user_agent", "User-Agent sent to the tile server", (*stringValue)(&c.UserAgent)},
		{"cache_dir", "tile cache directory", (*stringValue)(&c.CacheDir)},
		{"tint", "darkening of the basemap, 0 to 1", (*floatValue)(&c.Tint)},
		{"heatmap", "heatmap kind: pixel, squadrat or squadratino", (*stringValue)(&c.Heatmap)},
		{"palette", "color palette: red, classic, fire, omg or pbj", (*stringValue)(&c.Palette)},
		{"decay", "subtract this from every cell after each activity", (*intValue)(&c.Decay)},
		{"stream", "write frames to stdout", (*boolValue)(&c.Stream)},
		{"stream_format", "frame format: png or ppm", (*stringValue)(&c.StreamFormat)},
		{"stream_basemap", "draw the basemap under every frame", (*boolValue)(&c.StreamBasemap)},
		{"frame_rate", "write a frame every N points", (*intValue)(&c.FrameRate)},
		{"title", "render the activity title into each frame", (*boolValue)(&c.Title)},
		{"date", "render the activity date into each frame", (*boolValue)(&c.Date)},
		{"workers", "parallel workers, 0 for one per CPU", (*intValue)(&c.Workers)},
		{"fetchers", "parallel tile downloads", (*intValue)(&c.Fetchers)},
		{"progress", "show a progress bar on stderr", (*boolValue)(&c.Progress)},
	}
}

// Load builds the configuration for args: defaults, then the YAML file named
// by -config or HEATMAP_CONFIG, then HEATMAP_* variables, then flags. A
// positional argument sets the directory.
func Load(args []string, getenv func(string) string, usage io.Writer) (*Config, error) {
	cfg := Default()

	path := getenv(EnvPrefix + "CONFIG")
	if p, ok := configFlag(args); ok {
		path = p
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("heatmap", flag.ContinueOnError)
	fs.SetOutput(usage)
	fs.String("config", path, "YAML configuration file")
	for _, f := range cfg.fields() {
		fs.Var(f.value, f.name, f.usage)
		if strings.Contains(f.name, "_") {
			fs.Var(f.value, strings.ReplaceAll(f.name, "_", "-"), "alias of -"+f.name)
		}
	}
	// flags may follow the directory
	var positional []string
	for rest := args; ; {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}
	switch len(positional) {
	case 0:
	case 1:
		cfg.Directory = positional[0]
	default:
		return nil, fmt.Errorf("expected one directory, got %d arguments", len(positional))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configFlag finds -config/--config ahead of full flag parsing
func configFlag(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v, true
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

type stringValue string

func (s *stringValue) Set(v string) error { *s = stringValue(v); return nil }
func (s *stringValue) String() string {
	if s == nil {
		return ""
	}
	return string(*s)
}

// optionalFloat sets a float field that has no default
type optionalFloat struct {
	p **float64
}

func (f optionalFloat) Set(v string) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*f.p = &n
	return nil
}
func (f optionalFloat) String() string {
	if f.p == nil || *f.p == nil {
		return ""
	}
	return strconv.FormatFloat(**f.p, 'g', -1, 64)
}

type intValue int

func (i *intValue) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*i = intValue(n)
	return nil
}
func (i *intValue) String() string {
	if i == nil {
		return "0"
	}
	return strconv.Itoa(int(*i))
}

type floatValue float64

func (f *floatValue) Set(v string) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*f = floatValue(n)
	return nil
}
func (f *floatValue) String() string {
	if f == nil {
		return "0"
	}
	return strconv.FormatFloat(float64(*f), 'g', -1, 64)
}

type boolValue bool

func (b *boolValue) Set(v string) error {
	n, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*b = boolValue(n)
	return nil
}
func (b *boolValue) String() string {
	if b == nil {
		return "false"
	}
	return strconv.FormatBool(bool(*b))
}
func (b *boolValue) IsBoolFlag() bool { return true }
