package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/tiers"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(p, []byte(content), 0666); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "none.toml")
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(Default(), c, cmp.AllowUnexported(Config{}), cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".path"
	}, cmp.Ignore())); d != "" {
		t.Errorf("Expecting defaults (-want +got):\n%s", d)
	}
	if c.Path() != p {
		t.Errorf("Expecting %q, got %q", p, c.Path())
	}
}

func TestLoadMerge(t *testing.T) {
	p := writeFile(t, `
default_connections = 2

[download]
output_dir = "$HOME/anime"
parallel_episodes = 3
base_delay = "500ms"

[network]
speed_limit = 1.5

[[tiers]]
min_mbps = 0
max_mbps = 50
connections = 3

[[tiers]]
min_mbps = 50
connections = 12
`)
	t.Setenv("HOME", "/home/test")
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Download.ParallelEpisodes != 3 || c.Download.RetryAttempts != 3 {
		t.Errorf("Unexpected download section %+v", c.Download)
	}
	if c.Download.BaseDelay.Duration() != 500*time.Millisecond {
		t.Errorf("Expecting %s, got %s", 500*time.Millisecond, c.Download.BaseDelay.Duration())
	}
	if c.OutputDir() != "/home/test/anime" {
		t.Errorf("Expecting %q, got %q", "/home/test/anime", c.OutputDir())
	}
	if c.SpeedLimit() != 1572864 {
		t.Errorf("Expecting %d, got %d", 1572864, c.SpeedLimit())
	}

	tbl, err := c.Table()
	if err != nil {
		t.Fatal(err)
	}
	want := []tiers.Tier{{Min: 0, Max: 50, Connections: 3}, {Min: 50, Max: math.Inf(1), Connections: 12}}
	if d := cmp.Diff(want, tbl.Tiers()); d != "" {
		t.Errorf("Tiers mismatch (-want +got):\n%s", d)
	}
	if tbl.DefaultConnections() != 2 {
		t.Errorf("Expecting %d, got %d", 2, tbl.DefaultConnections())
	}
}

func TestLoadErrors(t *testing.T) {
	tc := []struct {
		name    string
		content string
		tierErr bool
	}{
		{"bad toml", "[download\n", false},
		{"bad pattern", "[download]\nnaming_pattern = \"weird\"\n", false},
		{"bad duration", "[download]\nbase_delay = \"soon\"\n", false},
		{"no parallel", "[download]\nparallel_episodes = 0\n", false},
		{"no retry", "[download]\nretry_attempts = 0\n", false},
		{"too many retries", "[download]\nretry_attempts = 40\n", false},
		{"gap in tiers", "[[tiers]]\nmin_mbps = 0\nmax_mbps = 10\nconnections = 1\n[[tiers]]\nmin_mbps = 20\nconnections = 2\n", true},
		{"zero connections", "[[tiers]]\nmin_mbps = 0\nconnections = 0\n", true},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeFile(t, c.content))
			if err == nil {
				t.Fatalf("Expecting an error")
			}
			var ce *tiers.ConfigurationError
			if errors.As(err, &ce) != c.tierErr {
				t.Errorf("Expecting ConfigurationError %v, got %v", c.tierErr, err)
			}
		})
	}
}

func TestSaveMeasurement(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "config.toml")
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Measurement() != nil {
		t.Errorf("Expecting no measurement")
	}
	m := &models.SpeedMeasurement{Mbps: 123.5, MeasuredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	c.SetMeasurement(m, 8)
	if err = c.Save(); err != nil {
		t.Fatal(err)
	}

	c2, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	got := c2.Measurement()
	if got == nil || got.Mbps != 123.5 || !got.MeasuredAt.Equal(m.MeasuredAt) {
		t.Errorf("Expecting %v, got %v", m, got)
	}
	if c2.Speedtest.Connections != 8 {
		t.Errorf("Expecting %d, got %d", 8, c2.Speedtest.Connections)
	}
	if d := cmp.Diff(c.Tiers, c2.Tiers); d != "" {
		t.Errorf("Tiers mismatch (-want +got):\n%s", d)
	}

	b, _ := os.ReadFile(p)
	if !strings.Contains(string(b), `base_delay = "1s"`) {
		t.Errorf("Expecting durations written as text, got\n%s", b)
	}
}
