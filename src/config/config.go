// Package config resolves dashboard settings from defaults, an optional YAML
// or JSONC file, and command-line flags, in that order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("5s") in files.
// Plain numbers are read as seconds.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v interface{}) error {
	switch x := v.(type) {
	case string:
		p, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return err
		}
		*d = Duration(p)
	case float64:
		*d = Duration(x * float64(time.Second))
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Config holds every tunable of the dashboard.
type Config struct {
	MetricsURL string `yaml:"metrics_url" json:"metrics_url"`
	FramesURL  string `yaml:"frames_url" json:"frames_url"`
	ControlURL string `yaml:"control_url" json:"control_url"`
	HistoryURL string `yaml:"history_url" json:"history_url"`

	ReconnectDelay Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	HistoryTimeout Duration `yaml:"history_timeout" json:"history_timeout"`

	ChartWindow int `yaml:"chart_window" json:"chart_window"`
	ChartWidth  int `yaml:"chart_width" json:"chart_width"`
	ChartHeight int `yaml:"chart_height" json:"chart_height"`
	FrameScale  int `yaml:"frame_scale" json:"frame_scale"`

	LogLevel         string   `yaml:"log_level" json:"log_level"`
	MetricsAddr      string   `yaml:"metrics_addr" json:"metrics_addr"`
	SnapshotDir      string   `yaml:"snapshot_dir" json:"snapshot_dir"`
	SnapshotInterval Duration `yaml:"snapshot_interval" json:"snapshot_interval"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		MetricsURL:     "ws://localhost:5000/ws",
		FramesURL:      "ws://localhost:5000/frames",
		ControlURL:     "http://localhost:5000",
		HistoryURL:     "http://localhost:8000",
		ReconnectDelay: Duration(5 * time.Second),
		ChartWindow:    100,
		ChartWidth:     640,
		ChartHeight:    320,
		FrameScale:     10,
		LogLevel:       "info",
		SnapshotDir:    "snapshots",
	}
}

// LoadFile merges the file at path into c. The format follows the extension:
// .yaml/.yml for YAML, .json/.jsonc for JSON with comments.
func LoadFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: unsupported config format %q", path, filepath.Ext(path))
	}
	return nil
}

// BindFlags registers one flag per field, defaulting to the current values.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.MetricsURL, "metrics-url", c.MetricsURL, "websocket URL of the live metrics channel")
	fs.StringVar(&c.FramesURL, "frames-url", c.FramesURL, "websocket URL of the frames channel")
	fs.StringVar(&c.ControlURL, "control-url", c.ControlURL, "base URL of the run-control API")
	fs.StringVar(&c.HistoryURL, "history-url", c.HistoryURL, "base URL of the experiment history API")
	fs.DurationVar((*time.Duration)(&c.ReconnectDelay), "reconnect-delay", time.Duration(c.ReconnectDelay), "fixed wait before reconnecting a dropped channel")
	fs.DurationVar((*time.Duration)(&c.HistoryTimeout), "history-timeout", time.Duration(c.HistoryTimeout), "client timeout for history/control requests (0 = none)")
	fs.IntVar(&c.ChartWindow, "chart-window", c.ChartWindow, "points shown per live chart (<=0 = unbounded)")
	fs.IntVar(&c.ChartWidth, "chart-width", c.ChartWidth, "chart width in pixels")
	fs.IntVar(&c.ChartHeight, "chart-height", c.ChartHeight, "chart height in pixels")
	fs.IntVar(&c.FrameScale, "frame-scale", c.FrameScale, "frame upscale factor")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "listen address for Prometheus metrics (empty = disabled)")
	fs.StringVar(&c.SnapshotDir, "snapshot-dir", c.SnapshotDir, "directory for PNG snapshots")
	fs.DurationVar((*time.Duration)(&c.SnapshotInterval), "snapshot-interval", time.Duration(c.SnapshotInterval), "write snapshots periodically while live (0 = only on exit)")
}

// Resolve builds the effective configuration: defaults, then the file named by
// --config (if any), then the remaining flags in args. fs receives all flags
// so callers may add their own before calling Resolve.
func Resolve(fs *pflag.FlagSet, args []string) (Config, error) {
	pre := pflag.NewFlagSet("config", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	path := pre.String("config", "", "")
	_ = pre.Parse(args)

	c := Default()
	if *path != "" {
		if err := LoadFile(*path, &c); err != nil {
			return Config{}, err
		}
	}
	fs.String("config", *path, "YAML or JSONC config file")
	c.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// Validate rejects settings the dashboard cannot run with.
func (c Config) Validate() error {
	var errs []error
	for name, raw := range map[string]string{
		"metrics_url": c.MetricsURL,
		"frames_url":  c.FramesURL,
		"control_url": c.ControlURL,
		"history_url": c.HistoryURL,
	} {
		if raw == "" {
			errs = append(errs, fmt.Errorf("%s is empty", name))
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.FrameScale <= 0 {
		errs = append(errs, fmt.Errorf("frame_scale must be positive, got %d", c.FrameScale))
	}
	if c.ChartWidth <= 0 || c.ChartHeight <= 0 {
		errs = append(errs, fmt.Errorf("chart size must be positive, got %dx%d", c.ChartWidth, c.ChartHeight))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("reconnect_delay must be positive"))
	}
	if c.HistoryTimeout < 0 || c.SnapshotInterval < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}
