package main

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/naming"
	"github.com/simulot/aspiradl/pkg/selection"
)

// Manifest lists the episodes of a series with their direct media URL
//
//	series = "Frieren"
//	season = 1
//	[[episode]]
//	number = 1
//	url = "https://cdn.example.com/Frieren_Ep_01.mp4"
type Manifest struct {
	Series   string            `toml:"series"`
	Season   int               `toml:"season"`
	Episodes []ManifestEpisode `toml:"episode"`
}

type ManifestEpisode struct {
	Number   int    `toml:"number"`
	Title    string `toml:"title"`
	URL      string `toml:"url"`
	Size     int64  `toml:"size"`     // Bytes, 0 when unknown
	FileName string `toml:"filename"` // Name given by the server, taken from the URL when empty
}

// ReadManifest reads and checks a manifest file
func ReadManifest(file string) (*Manifest, error) {
	p, err := homedir.Expand(file)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if _, err = toml.DecodeFile(p, m); err != nil {
		return nil, fmt.Errorf("can't read manifest: %w", err)
	}
	return m, m.Check()
}

// Check the manifest content
func (m *Manifest) Check() error {
	if strings.TrimSpace(m.Series) == "" {
		return fmt.Errorf("manifest: series is missing")
	}
	seen := map[int]bool{}
	for i, e := range m.Episodes {
		if e.Number < 1 {
			return fmt.Errorf("manifest: episode #%d: invalid number %d", i+1, e.Number)
		}
		if seen[e.Number] {
			return fmt.Errorf("manifest: episode %d is listed twice", e.Number)
		}
		seen[e.Number] = true
		if _, err := url.ParseRequestURI(e.URL); err != nil {
			return fmt.Errorf("manifest: episode %d: %w", e.Number, err)
		}
	}
	return nil
}

// Select returns the episodes of the selection, in manifest order
func (m *Manifest) Select(sel *selection.Selection) []ManifestEpisode {
	r := []ManifestEpisode{}
	for _, e := range m.Episodes {
		if sel.Contains(e.Number) {
			r = append(r, e)
		}
	}
	return r
}

// serverName gives the file name part of the URL
func (e ManifestEpisode) serverName() string {
	if e.FileName != "" {
		return e.FileName
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return ""
	}
	n := path.Base(u.Path)
	if n == "/" || n == "." {
		return ""
	}
	return n
}

// specBuilder turns episodes into transfer specs
type specBuilder struct {
	namer       *naming.Namer
	outputDir   string
	connections int
	resume      bool
}

func (b specBuilder) spec(m *Manifest, e ManifestEpisode) models.TransferSpec {
	original := e.serverName()
	ext := strings.TrimPrefix(path.Ext(original), ".")
	name := b.namer.FileName(naming.Episode{
		Title:    m.Series,
		Season:   m.Season,
		Number:   e.Number,
		Ext:      ext,
		Original: original,
	})
	return models.TransferSpec{
		ID:            fmt.Sprintf("e%03d", e.Number),
		SourceURL:     e.URL,
		Destination:   filepath.Join(b.outputDir, naming.SafeTitle(m.Series), name),
		Connections:   b.connections,
		Resume:        b.resume,
		ExpectedBytes: e.Size,
	}
}
