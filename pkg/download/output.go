package download

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/simulot/aspiradl/pkg/models"
)

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[0 : len(data)-1]
	}
	return data

}

// scanLines splits on \n and \r: axel redraws its progress line with \r
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, dropCR(data[0:i]), nil
	}
	// If we're at EOF, we have a final, non-terminated line. Return it.
	if atEOF {
		return len(data), dropCR(data), nil
	}
	// Request more data.
	return 0, nil, nil
}

var (
	reFileSize = regexp.MustCompile(`File size: .*\((\d+) bytes\)`)
	rePercent  = regexp.MustCompile(`\[\s*(\d{1,3})%\]`)
	reSpeed    = regexp.MustCompile(`\[\s*([\d.]+)\s*([KMGT]?)B/s\]`)
	reETA      = regexp.MustCompile(`\[\s*(?:(\d+):)?(\d{1,2}):(\d{2})\]`)
	reHTTP     = regexp.MustCompile(`HTTP/\d(?:\.\d)?\s+(\d{3})`)
)

var unitMultiplier = map[string]float64{
	"":  1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// progressLine is what can be read on one axel progress line
type progressLine struct {
	percent float64       // -1 when not found
	rate    float64       // bytes per second, -1 when not found
	eta     time.Duration // 0 when not found
}

// parseProgress reads the alternate progress display of axel:
//
//	[ 42%] [0123456789.......] [   1.2MB/s] [01:23]
func parseProgress(l string) (progressLine, bool) {
	p := progressLine{percent: -1, rate: -1}
	m := rePercent.FindStringSubmatch(l)
	if m == nil {
		return p, false
	}
	p.percent, _ = strconv.ParseFloat(m[1], 64)
	if m = reSpeed.FindStringSubmatch(l); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.rate = v * unitMultiplier[m[2]]
		}
	}
	if m = reETA.FindStringSubmatch(l); m != nil {
		h, _ := strconv.Atoi(m[1])
		mn, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		p.eta = time.Duration(h)*time.Hour + time.Duration(mn)*time.Minute + time.Duration(s)*time.Second
	}
	return p, true
}

// parseFileSize reads the announced size
//
//	File size: 1.2 Gigabyte(s) (1288490188 bytes)
func parseFileSize(l string) (int64, bool) {
	m := reFileSize.FindStringSubmatch(l)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	return n, err == nil
}

type signature struct {
	pattern string
	reason  string
}

// Permanent signatures are checked before transient ones
var permanentSignatures = []signature{
	{"unsupported protocol", models.ReasonInvalidURL},
	{"invalid url", models.ReasonInvalidURL},
	{"bad url", models.ReasonInvalidURL},
	{"permission denied", models.ReasonPermissionDenied},
	{"read-only file system", models.ReasonPermissionDenied},
	{"error opening local file", models.ReasonPermissionDenied},
}

var transientSignatures = []signature{
	{"connection refused", models.ReasonConnectionRefused},
	{"connection reset", models.ReasonConnectionRefused},
	{"unable to connect", models.ReasonConnectionRefused},
	{"timed out", models.ReasonTimeout},
	{"timeout", models.ReasonTimeout},
	{"unable to resolve", models.ReasonDNSFailure},
	{"name or service not known", models.ReasonDNSFailure},
	{"temporary failure in name resolution", models.ReasonDNSFailure},
	{"could not resolve", models.ReasonDNSFailure},
	{"content length mismatch", models.ReasonPartialContentMismatch},
	{"server unsupported", models.ReasonPartialContentMismatch},
	{"size mismatch", models.ReasonPartialContentMismatch},
	{"state file", models.ReasonResumeInvalid},
}

// classify looks for known failure signatures in the accelerator output.
// It returns an empty reason when nothing is recognized.
func classify(lines []string) (reason string, fatal bool) {
	for _, l := range lines {
		if m := reHTTP.FindStringSubmatch(l); m != nil {
			code, _ := strconv.Atoi(m[1])
			if r, f, ok := classifyHTTP(code); ok && f {
				return r, true
			}
		}
	}
	for _, l := range lines {
		ll := strings.ToLower(l)
		for _, s := range permanentSignatures {
			if strings.Contains(ll, s.pattern) {
				return s.reason, true
			}
		}
	}
	for _, l := range lines {
		if m := reHTTP.FindStringSubmatch(l); m != nil {
			code, _ := strconv.Atoi(m[1])
			if r, _, ok := classifyHTTP(code); ok {
				return r, false
			}
		}
	}
	for _, l := range lines {
		ll := strings.ToLower(l)
		for _, s := range transientSignatures {
			if strings.Contains(ll, s.pattern) {
				return s.reason, false
			}
		}
	}
	return "", false
}

// classifyHTTP maps an HTTP status surfaced by axel
func classifyHTTP(code int) (reason string, fatal bool, ok bool) {
	switch {
	case code == 408:
		return models.ReasonTimeout, false, true
	case code == 416:
		return models.ReasonPartialContentMismatch, false, true
	case code == 429:
		return models.ReasonHTTPStatus(code), false, true
	case code >= 400 && code < 500:
		return models.ReasonHTTPStatus(code), true, true
	case code >= 500 && code < 600:
		return models.ReasonHTTPStatus(code), false, true
	}
	return "", false, false
}

// tail keeps the last lines of the output
type tail struct {
	lines []string
	max   int
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) Add(l string) {
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:len(t.lines)-1]
	}
	t.lines = append(t.lines, l)
}

func (t *tail) Lines() []string {
	return append([]string(nil), t.lines...)
}

func (t *tail) String() string {
	return strings.Join(t.lines, "\n")
}
