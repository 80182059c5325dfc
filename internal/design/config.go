// Package design loads the configuration documents of the frame exporter and
// resolves the frame settings that apply at a given time.
package design

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Names of the configuration documents inside the configuration directory.
const (
	DesignFile = "design.yaml"
	AccessFile = "access_opendap.yaml"
	OutputFile = "output_user.yaml"
)

// EnvPrefix prefixes environment variables overriding configuration keys,
// e.g. EUREC4A_OUTPUT_IMAGES_DIRECTORY.
const EnvPrefix = "EUREC4A"

// Box is a longitude/latitude region.
type Box struct {
	LonMin float64 `mapstructure:"lonmin"`
	LonMax float64 `mapstructure:"lonmax"`
	LatMin float64 `mapstructure:"latmin"`
	LatMax float64 `mapstructure:"latmax"`
}

// AspectRatio returns |dlat| / |dlon|.
func (b Box) AspectRatio() float64 {
	return math.Abs(b.LatMax-b.LatMin) / math.Abs(b.LonMax-b.LonMin)
}

// Validate rejects boxes with no extent.
func (b Box) Validate() error {
	if b.LonMin == b.LonMax || b.LatMin == b.LatMax {
		return fmt.Errorf("domain %+v is empty", b)
	}
	return nil
}

// Settings is a partial frame configuration as written in the design
// document. Nil fields are not set. Value range bounds are kept raw and only
// parsed when a frame needs them.
type Settings struct {
	Channel  *int
	VMin     any
	VMax     any
	Colormap *string
	Domain   *Box
}

// merge returns s with every field set in o replacing the one in s.
func (s Settings) merge(o Settings) Settings {
	if o.Channel != nil {
		s.Channel = o.Channel
	}
	if o.VMin != nil {
		s.VMin = o.VMin
	}
	if o.VMax != nil {
		s.VMax = o.VMax
	}
	if o.Colormap != nil {
		s.Colormap = o.Colormap
	}
	if o.Domain != nil {
		s.Domain = o.Domain
	}
	return s
}

// FrameConfig is the complete set of settings used to draw one frame.
type FrameConfig struct {
	Channel  int
	VMin     Bound
	VMax     Bound
	Colormap string
	Domain   Box
}

// Design is the content of design.yaml.
type Design struct {
	Domain      Box
	WidthInches float64
	DPI         float64
	// Step is the spacing of the exported frames.
	Step     time.Duration
	Defaults Settings
	Windows  []Window
}

// LoadDesign reads design.yaml.
func LoadDesign(path string) (*Design, error) {
	v := NewViper(path)
	v.SetDefault("output.movies.w_inches", 10.0)
	v.SetDefault("output.images.dpi", 100.0)
	v.SetDefault("output.images.temporal_resolution_min", 10)
	v.SetDefault("satellite.defaults.channel", 13)
	v.SetDefault("satellite.defaults.colormap", "gray")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	d := &Design{
		WidthInches: v.GetFloat64("output.movies.w_inches"),
		DPI:         v.GetFloat64("output.images.dpi"),
		Step:        time.Duration(v.GetInt("output.images.temporal_resolution_min")) * time.Minute,
	}
	if err := v.UnmarshalKey("output.domain", &d.Domain); err != nil {
		return nil, fmt.Errorf("%s: output.domain: %w", path, err)
	}
	if err := d.Domain.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if d.Step <= 0 {
		return nil, fmt.Errorf("%s: temporal_resolution_min must be positive", path)
	}
	if d.WidthInches <= 0 || d.DPI <= 0 {
		return nil, fmt.Errorf("%s: w_inches and dpi must be positive", path)
	}

	var err error
	if d.Defaults, err = settingsFromMap(v.GetStringMap("satellite.defaults")); err != nil {
		return nil, fmt.Errorf("%s: satellite.defaults: %w", path, err)
	}
	if d.Windows, err = readWindows(path); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// readWindows reads satellite.timespecific keeping the document order, which
// decides between overlapping windows.
func readWindows(path string) ([]Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Satellite struct {
			TimeSpecific yaml.Node `yaml:"timespecific"`
		} `yaml:"satellite"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	node := doc.Satellite.TimeSpecific
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("satellite.timespecific must be a mapping")
	}
	var windows []Window
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		start, end, err := ParseWindow(name)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := node.Content[i+1].Decode(&m); err != nil {
			return nil, fmt.Errorf("time window %q: %w", name, err)
		}
		override, err := settingsFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("time window %q: %w", name, err)
		}
		windows = append(windows, Window{Name: name, Start: start, End: end, Override: override})
	}
	return windows, nil
}

func settingsFromMap(m map[string]any) (Settings, error) {
	var s Settings
	for k, v := range m {
		switch strings.ToLower(k) {
		case "channel":
			ch, err := toInt(v)
			if err != nil {
				return s, fmt.Errorf("channel: %w", err)
			}
			s.Channel = &ch
		case "vmin":
			s.VMin = v
		case "vmax":
			s.VMax = v
		case "colormap":
			name, ok := v.(string)
			if !ok {
				return s, fmt.Errorf("colormap: want a name, got %v", v)
			}
			s.Colormap = &name
		case "domain":
			box, err := boxFromMap(v)
			if err != nil {
				return s, fmt.Errorf("domain: %w", err)
			}
			s.Domain = &box
		}
	}
	return s, nil
}

func boxFromMap(v any) (Box, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Box{}, fmt.Errorf("want a mapping, got %T", v)
	}
	var b Box
	for k, dst := range map[string]*float64{
		"lonmin": &b.LonMin, "lonmax": &b.LonMax,
		"latmin": &b.LatMin, "latmax": &b.LatMax,
	} {
		f, err := toFloat(m[k])
		if err != nil {
			return Box{}, fmt.Errorf("%s: %w", k, err)
		}
		*dst = f
	}
	return b, b.Validate()
}

func toInt(v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("want an integer, got %v", v)
}

func toFloat(v any) (float64, error) {
	switch v := v.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, fmt.Errorf("want a number, got %v", v)
}

// Resolve returns the frame configuration for t: the first time window
// containing t merged over the defaults, or the defaults alone. window is the
// name of the applied window, "" if none. Malformed value range bounds are
// reported here, the first time they are needed.
func (d *Design) Resolve(t time.Time) (fc FrameConfig, window string, err error) {
	s := d.Defaults
	if i, ok := Lookup(Clock(t), d.Windows); ok {
		s = s.merge(d.Windows[i].Override)
		window = d.Windows[i].Name
	}
	if s.Channel == nil {
		return fc, window, errors.New("no channel configured")
	}
	fc.Channel = *s.Channel
	if s.Colormap != nil {
		fc.Colormap = *s.Colormap
	}
	fc.Domain = d.Domain
	if s.Domain != nil {
		fc.Domain = *s.Domain
	}
	if fc.VMin, err = ParseBound(s.VMin); err != nil {
		return fc, window, fmt.Errorf("vmin: %w", err)
	}
	if fc.VMax, err = ParseBound(s.VMax); err != nil {
		return fc, window, fmt.Errorf("vmax: %w", err)
	}
	return fc, window, nil
}

// Catalog is the content of access_opendap.yaml.
type Catalog struct {
	// Entries maps an entry name to a URL template. "{channel}" is replaced
	// by the two-digit channel number and strftime verbs by the date.
	Entries   map[string]string
	CacheDir  string
	Timeout   time.Duration
	MaxConns  int
	UserAgent string
}

// LoadCatalog reads access_opendap.yaml.
func LoadCatalog(path string) (*Catalog, error) {
	v := NewViper(path)
	v.SetDefault("catalog.cache_dir", filepath.Join(os.TempDir(), "eurec4a-movies"))
	v.SetDefault("catalog.timeout", "5m")
	v.SetDefault("catalog.max_conns", 4)
	v.SetDefault("catalog.user_agent", "eurec4a-movies")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c := &Catalog{
		Entries:   v.GetStringMapString("catalog.entries"),
		CacheDir:  v.GetString("catalog.cache_dir"),
		Timeout:   v.GetDuration("catalog.timeout"),
		MaxConns:  v.GetInt("catalog.max_conns"),
		UserAgent: v.GetString("catalog.user_agent"),
	}
	if len(c.Entries) == 0 {
		return nil, fmt.Errorf("%s: no catalog entries", path)
	}
	return c, nil
}

// Output is the content of output_user.yaml.
type Output struct {
	Directory string
	// FileFmt is an strftime template for the frame file names.
	FileFmt string
}

// LoadOutput reads output_user.yaml.
func LoadOutput(path string) (*Output, error) {
	v := NewViper(path)
	v.SetDefault("output.images.directory", "images")
	v.SetDefault("output.images.file_fmt", "%Y%m%d_%H%M.png")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	o := Output{
		Directory: v.GetString("output.images.directory"),
		FileFmt:   v.GetString("output.images.file_fmt"),
	}
	if _, err := strftime.New(o.FileFmt); err != nil {
		return nil, fmt.Errorf("%s: file_fmt %q: %w", path, o.FileFmt, err)
	}
	return &o, nil
}

// Path returns the output file for the frame at t.
func (o *Output) Path(t time.Time) (string, error) {
	return strftime.Format(filepath.Join(o.Directory, o.FileFmt), t)
}

// Config bundles the three documents.
type Config struct {
	Design  *Design
	Catalog *Catalog
	Output  *Output
}

// Load reads the configuration documents from dir.
func Load(dir string) (*Config, error) {
	var (
		c   Config
		err error
	)
	if c.Design, err = LoadDesign(filepath.Join(dir, DesignFile)); err != nil {
		return nil, err
	}
	if c.Catalog, err = LoadCatalog(filepath.Join(dir, AccessFile)); err != nil {
		return nil, err
	}
	if c.Output, err = LoadOutput(filepath.Join(dir, OutputFile)); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewViper returns a viper instance reading the YAML document at path, with
// EUREC4A_* environment variables overriding its keys.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
