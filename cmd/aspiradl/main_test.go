package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/naming"
	"github.com/simulot/aspiradl/pkg/selection"
	"github.com/simulot/aspiradl/pkg/store"
	"github.com/simulot/aspiradl/pkg/tiers"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0666); err != nil {
		t.Fatal(err)
	}
	return p
}

const frieren = `
series = "Sōsō no Frieren"
season = 1

[[episode]]
number = 1
url = "http://example.com/1/success"
filename = "Frieren_Ep_01_SUB_ITA.mp4"
size = 11

[[episode]]
number = 2
url = "http://example.com/Frieren_Ep_02_SUB_ITA.mp4"

[[episode]]
number = 3
url = "http://example.com/3/404"
size = 11
`

func TestManifest(t *testing.T) {
	m, err := ReadManifest(writeFile(t, "frieren.toml", frieren))
	if err != nil {
		t.Fatal(err)
	}
	sel, _ := selection.Parse("2-")
	got := []int{}
	for _, e := range m.Select(sel) {
		got = append(got, e.Number)
	}
	if d := cmp.Diff([]int{2, 3}, got); d != "" {
		t.Errorf("Selection mismatch (-want +got):\n%s", d)
	}

	b := specBuilder{namer: naming.New(naming.Original, ""), outputDir: "/videos", connections: 8, resume: true}
	want := []models.TransferSpec{
		{ID: "e001", SourceURL: "http://example.com/1/success", Destination: "/videos/Soso no Frieren/Frieren_Ep_01_SUB_ITA.mp4", Connections: 8, Resume: true, ExpectedBytes: 11},
		{ID: "e002", SourceURL: "http://example.com/Frieren_Ep_02_SUB_ITA.mp4", Destination: "/videos/Soso no Frieren/Frieren_Ep_02_SUB_ITA.mp4", Connections: 8, Resume: true},
	}
	for i, w := range want {
		if runtime.GOOS == "windows" {
			w.Destination = filepath.FromSlash(w.Destination)
		}
		if d := cmp.Diff(w, b.spec(m, m.Episodes[i])); d != "" {
			t.Errorf("Spec mismatch (-want +got):\n%s", d)
		}
	}

	b.namer = naming.New(naming.SeasonEpisode, "")
	if s := b.spec(m, m.Episodes[1]); filepath.Base(s.Destination) != "Soso no Frieren - S01E02.mp4" {
		t.Errorf("Expecting %q, got %q", "Soso no Frieren - S01E02.mp4", filepath.Base(s.Destination))
	}
}

func TestManifestErrors(t *testing.T) {
	tc := []struct {
		name    string
		content string
	}{
		{"no series", "[[episode]]\nnumber = 1\nurl = \"http://example.com/e\"\n"},
		{"duplicate", "series = \"s\"\n[[episode]]\nnumber = 1\nurl = \"http://a/e\"\n[[episode]]\nnumber = 1\nurl = \"http://a/f\"\n"},
		{"bad number", "series = \"s\"\n[[episode]]\nnumber = 0\nurl = \"http://a/e\"\n"},
		{"bad url", "series = \"s\"\n[[episode]]\nnumber = 1\nurl = \"not an url\"\n"},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ReadManifest(writeFile(t, "m.toml", c.content)); err == nil {
				t.Errorf("Expecting an error")
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, exitOK},
		{"failed", &exitError{code: exitFailed}, exitFailed},
		{"tier table", fmt.Errorf("load: %w", &tiers.ConfigurationError{Index: 1, Reason: "gap"}), exitConfigError},
		{"cancelled", context.Canceled, exitCancelled},
		{"other", errors.New("boom"), exitFailed},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if got := exitCode(c.err); got != c.want {
				t.Errorf("Expecting %d, got %d", c.want, got)
			}
		})
	}
}

type fakeHistory map[string]bool

func (h fakeHistory) Record(models.TransferResult) error           { return nil }
func (h fakeHistory) Get(models.TransferSpec) (store.Entry, error) { return store.Entry{}, store.ErrorNotFound }
func (h fakeHistory) IsComplete(s models.TransferSpec) bool        { return h[s.ID] }
func (h fakeHistory) List() ([]store.Entry, error)                 { return nil, nil }

func TestAlreadyDownloaded(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.mp4")
	os.WriteFile(full, []byte("hello world"), 0666)
	partial := filepath.Join(dir, "partial.mp4")
	os.WriteFile(partial, []byte("hello world"), 0666)
	os.WriteFile(partial+".st", []byte("state"), 0666)

	tc := []struct {
		name string
		spec models.TransferSpec
		want bool
	}{
		{"in history", models.TransferSpec{ID: "h", Destination: filepath.Join(dir, "none")}, true},
		{"complete file", models.TransferSpec{ID: "f", Destination: full, ExpectedBytes: 11}, true},
		{"other size", models.TransferSpec{ID: "f", Destination: full, ExpectedBytes: 12}, false},
		{"unknown size", models.TransferSpec{ID: "f", Destination: full}, false},
		{"resume state", models.TransferSpec{ID: "p", Destination: partial, ExpectedBytes: 11}, false},
	}
	h := fakeHistory{"h": true}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if got := alreadyDownloaded(h, c.spec); got != c.want {
				t.Errorf("Expecting %v, got %v", c.want, got)
			}
		})
	}
}

// TestDownload runs the whole command against a fake accelerator
func TestDownload(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake axel is a shell script")
	}
	b, err := os.ReadFile(filepath.Join("..", "..", "pkg", "download", "testdata", "fake-axel.sh"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "axel")
	if err = os.WriteFile(bin, b, 0755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "videos")
	cfg := writeFile(t, "config.toml", fmt.Sprintf(`
[download]
output_dir = %q
base_delay = "1ms"

[axel]
use_system_binary = false
binary_path = %q
`, out, bin))
	manifest := writeFile(t, "frieren.toml", frieren)
	args := func(more ...string) []string {
		return append([]string{"--config", cfg, "download", manifest, "--connections", "2", "--headless"}, more...)
	}

	if code := run(context.Background(), args("-e", "1,3")); code != exitFailed {
		t.Errorf("Expecting exit code %d, got %d", exitFailed, code)
	}
	ep1 := filepath.Join(out, "Soso no Frieren", "Frieren_Ep_01_SUB_ITA.mp4")
	if b, err := os.ReadFile(ep1); err != nil || string(b) != "hello world" {
		t.Errorf("Expecting episode 1 downloaded, got %q, %v", b, err)
	}

	st, err := store.OpenStoreBolt(filepath.Join(filepath.Dir(cfg), "history.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	e, err := st.Get(models.TransferSpec{SourceURL: "http://example.com/3/404", Destination: filepath.Join(out, "Soso no Frieren", "404")})
	if err != nil || e.Final != "failed" || e.Reason != "http-404" {
		t.Errorf("Expecting episode 3 failed(http-404) in history, got %+v, %v", e, err)
	}
	st.Close()

	if code := run(context.Background(), args("-e", "1")); code != exitOK {
		t.Errorf("Expecting exit code %d, got %d", exitOK, code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code := run(ctx, args("-e", "1", "--force")); code != exitCancelled {
		t.Errorf("Expecting exit code %d, got %d", exitCancelled, code)
	}
}
