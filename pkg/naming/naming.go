// Package naming builds the file names of downloaded episodes.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pattern selects how files are named
type Pattern string

const (
	Original      Pattern = "original"       // Name given by the server
	SeasonEpisode Pattern = "season_episode" // Title - S01E02.mp4
	Custom        Pattern = "custom"         // User template
)

// ParsePattern checks the name of a pattern
func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(s))); p {
	case Original, SeasonEpisode, Custom:
		return p, nil
	case "":
		return Original, nil
	}
	return "", fmt.Errorf("unknown naming pattern %q", s)
}

// Episode holds what is needed to name a file
type Episode struct {
	Title    string // Series title
	Season   int
	Number   int
	Ext      string // Without dot, mp4 when empty
	Original string // File name given by the server
}

// Namer formats file names
type Namer struct {
	pattern Pattern
	custom  string
}

// New creates a namer. The custom template is used with the Custom pattern:
//
//	{anime_name} - {season:02d}x{episode:03d}.{ext}
func New(p Pattern, custom string) *Namer {
	return &Namer{pattern: p, custom: custom}
}

var (
	fileNameReplacer = strings.NewReplacer("/", "-", "\\", "-", "!", "", "?", "", ":", "-", ",", "", "*", "-", "|", "-", "\"", "", ">", "", "<", "")
	removeSpaces     = regexp.MustCompile(`\s{2,}`)
	placeholder      = regexp.MustCompile(`\{(\w+)(?::0?(\d+)d)?\}`)
)

// FileNameCleaner return a safe file name from a given name.
func FileNameCleaner(s string) string {
	return strings.TrimSpace(fileNameReplacer.Replace(s))
}

// Transform strings with diacritics into plain ASCII letters when possible
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SafeTitle keeps letters, digits, spaces, dashes and underscores
func SafeTitle(s string) string {
	s, _, _ = transform.String(foldDiacritics, s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, s)
	return removeSpaces.ReplaceAllString(strings.TrimSpace(s), " ")
}

// FileName gives the file name of the episode
func (n *Namer) FileName(e Episode) string {
	ext := strings.TrimPrefix(e.Ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	season := e.Season
	if season < 1 {
		season = 1
	}
	title := SafeTitle(e.Title)

	switch n.pattern {
	case Original:
		if o := FileNameCleaner(filepath.Base(e.Original)); e.Original != "" && o != "." && o != "" {
			return o
		}
	case SeasonEpisode:
		return fmt.Sprintf("%s - S%02dE%02d.%s", title, season, e.Number, ext)
	case Custom:
		if s, ok := expand(n.custom, map[string]interface{}{
			"anime_name": title,
			"season":     season,
			"episode":    e.Number,
			"ext":        ext,
		}); ok {
			return FileNameCleaner(s)
		}
	}
	return fmt.Sprintf("%s - %02d.%s", title, e.Number, ext)
}

// expand replaces the placeholders of the template. It fails on unknown names.
func expand(tmpl string, values map[string]interface{}) (string, bool) {
	if strings.TrimSpace(tmpl) == "" {
		return "", false
	}
	ok := true
	s := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		v, found := values[sub[1]]
		if !found {
			ok = false
			return m
		}
		if i, isInt := v.(int); isInt && sub[2] != "" {
			w, _ := strconv.Atoi(sub[2])
			return fmt.Sprintf("%0*d", w, i)
		}
		return fmt.Sprint(v)
	})
	return s, ok
}
