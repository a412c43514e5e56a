// Package config reads and writes the aspiradl configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/naming"
	"github.com/simulot/aspiradl/pkg/tiers"
)

const (
	AppName        = "aspiradl"
	ConfigFileName = "config.toml"
	HistoryName    = "history.db"

	MaxRetryAttempts = 20
)

// Config holds settings from configuration file
type Config struct {
	DefaultConnections int         `toml:"default_connections"`
	Speedtest          Speedtest   `toml:"speedtest"`
	Download           Download    `toml:"download"`
	Network            Network     `toml:"network"`
	UI                 UI          `toml:"ui"`
	Axel               Axel        `toml:"axel"`
	Tiers              []TierEntry `toml:"tiers"`

	path string
}

type Speedtest struct {
	LastSpeedMbps float64      `toml:"last_speed_mbps"`
	LastTestDate  time.Time    `toml:"last_test_date"`
	Connections   int          `toml:"connections"`
	Timeout       TextDuration `toml:"timeout"`
	URL           string       `toml:"url"`
}

type Download struct {
	OutputDir        string       `toml:"output_dir"`
	NamingPattern    string       `toml:"naming_pattern"`
	CustomPattern    string       `toml:"custom_pattern"`
	ParallelEpisodes int          `toml:"parallel_episodes"`
	RetryAttempts    int          `toml:"retry_attempts"`
	BaseDelay        TextDuration `toml:"base_delay"`
	AutoResume       bool         `toml:"auto_resume"`
	CheckDiskSpace   bool         `toml:"check_disk_space"`
	SafetyMargin     float64      `toml:"safety_margin"`
	MinFreeMB        uint64       `toml:"min_free_mb"`
}

type Network struct {
	UserAgent    string       `toml:"user_agent"`
	SpeedLimit   float64      `toml:"speed_limit"` // MB/s, 0 for none
	MaxRedirect  int          `toml:"max_redirect"`
	StallTimeout TextDuration `toml:"stall_timeout"`
}

type UI struct {
	Language  string `toml:"language"`
	Verbosity string `toml:"verbosity"`
	Headless  bool   `toml:"headless"`
}

type Axel struct {
	UseSystemBinary bool   `toml:"use_system_binary"`
	BinaryPath      string `toml:"binary_path"`
}

// TierEntry is a tier as written in the file. A zero Max is the open upper bound.
type TierEntry struct {
	Min         float64 `toml:"min_mbps"`
	Max         float64 `toml:"max_mbps"`
	Connections int     `toml:"connections"`
}

// TextDuration handles durations written as "10s" in the file
type TextDuration time.Duration

func (t TextDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(t).String()), nil
}

func (t *TextDuration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*t = TextDuration(v)
	return nil
}

func (t TextDuration) Duration() time.Duration { return time.Duration(t) }

// Default returns the built-in configuration
func Default() *Config {
	c := &Config{
		DefaultConnections: tiers.DefaultConnections,
		Speedtest: Speedtest{
			Timeout: TextDuration(10 * time.Second),
			URL:     "https://speed.cloudflare.com/__down?bytes=50000000",
		},
		Download: Download{
			OutputDir:        "~/Videos/aspiradl",
			NamingPattern:    string(naming.Original),
			CustomPattern:    "{anime_name} - {season:02d}x{episode:03d}.{ext}",
			ParallelEpisodes: 1,
			RetryAttempts:    3,
			BaseDelay:        TextDuration(time.Second),
			AutoResume:       true,
			CheckDiskSpace:   true,
			SafetyMargin:     1.1,
			MinFreeMB:        100,
		},
		Network: Network{
			MaxRedirect:  10,
			StallTimeout: TextDuration(60 * time.Second),
		},
		UI: UI{
			Language:  "en",
			Verbosity: "ERROR",
		},
		Axel: Axel{
			UseSystemBinary: true,
			BinaryPath:      "axel",
		},
	}
	for _, t := range tiers.DefaultTiers() {
		c.Tiers = append(c.Tiers, entry(t))
	}
	return c
}

func entry(t tiers.Tier) TierEntry {
	e := TierEntry{Min: t.Min, Max: t.Max, Connections: t.Connections}
	if math.IsInf(e.Max, 1) {
		e.Max = 0
	}
	return e
}

// Dir returns the folder holding the configuration and the history
func Dir() (string, error) {
	d, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, AppName), nil
}

// DefaultPath returns the configuration file of the user
func DefaultPath() (string, error) {
	d, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, ConfigFileName), nil
}

// Load reads the file and merges it over the defaults.
// A missing file gives the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	c.path = path
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	c.path = p

	// Tiers from the file replace the default table as a whole
	defaults := c.Tiers
	c.Tiers = nil
	md, err := toml.DecodeFile(p, c)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("can't read configuration file: %w", err)
	}
	if !md.IsDefined("tiers") {
		c.Tiers = defaults
	}
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

// Check validates the values read from the file
func (c *Config) Check() error {
	if _, err := naming.ParsePattern(c.Download.NamingPattern); err != nil {
		return fmt.Errorf("download.naming_pattern: %w", err)
	}
	if c.Download.ParallelEpisodes < 1 {
		return fmt.Errorf("download.parallel_episodes must be at least 1, got %d", c.Download.ParallelEpisodes)
	}
	if c.Download.RetryAttempts < 1 || c.Download.RetryAttempts > MaxRetryAttempts {
		return fmt.Errorf("download.retry_attempts must be between 1 and %d, got %d", MaxRetryAttempts, c.Download.RetryAttempts)
	}
	if c.Network.SpeedLimit < 0 {
		return fmt.Errorf("network.speed_limit can't be negative")
	}
	if _, err := c.Table(); err != nil {
		return err
	}
	return nil
}

// Path of the file the configuration comes from
func (c *Config) Path() string { return c.path }

// OutputDir returns the download folder with ~ and environment variables expanded
func (c *Config) OutputDir() string {
	d, err := homedir.Expand(os.ExpandEnv(c.Download.OutputDir))
	if err != nil {
		return c.Download.OutputDir
	}
	return d
}

// Table builds the tier table. Errors are *tiers.ConfigurationError.
func (c *Config) Table() (*tiers.Table, error) {
	if len(c.Tiers) == 0 {
		return tiers.New(tiers.DefaultTiers(), c.DefaultConnections)
	}
	ts := make([]tiers.Tier, 0, len(c.Tiers))
	for _, e := range c.Tiers {
		t := tiers.Tier{Min: e.Min, Max: e.Max, Connections: e.Connections}
		if t.Max == 0 {
			t.Max = math.Inf(1)
		}
		ts = append(ts, t)
	}
	return tiers.New(ts, c.DefaultConnections)
}

// Measurement returns the last saved speed test, nil when none
func (c *Config) Measurement() *models.SpeedMeasurement {
	if c.Speedtest.LastSpeedMbps <= 0 {
		return nil
	}
	return &models.SpeedMeasurement{Mbps: c.Speedtest.LastSpeedMbps, MeasuredAt: c.Speedtest.LastTestDate}
}

// SetMeasurement keeps the speed test result and the connections it gives
func (c *Config) SetMeasurement(m *models.SpeedMeasurement, connections int) {
	if m.IsValid() {
		c.Speedtest.LastSpeedMbps = m.Mbps
		c.Speedtest.LastTestDate = m.MeasuredAt
	}
	c.Speedtest.Connections = connections
}

// SpeedLimit converts the limit in bytes per second
func (c *Config) SpeedLimit() int64 {
	return int64(c.Network.SpeedLimit * (1 << 20))
}

// MinFreeBytes converts the free space floor in bytes
func (c *Config) MinFreeBytes() uint64 {
	return c.Download.MinFreeMB << 20
}

// Save writes the configuration back to its file
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("configuration has no file")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("can't write configuration file: %w", err)
	}
	err = c.Encode(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("can't write configuration file: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// Encode writes the configuration as TOML
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// WithPath sets the file used by Save
func (c *Config) WithPath(p string) *Config {
	c.path = p
	return c
}
