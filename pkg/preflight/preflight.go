// Package preflight decides if a transfer may start: targets already
// downloaded are skipped, and nothing is launched when the destination volume
// can't hold the file.
package preflight

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/simulot/aspiradl/pkg/models"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Decision of the gate
type Decision int

const (
	Proceed Decision = iota
	SkipAlreadyDone
	RejectInsufficientSpace
)

var decisionLabels = []string{"proceed", "skip-already-done", "reject-insufficient-space"}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionLabels) {
		return "unknown"
	}
	return decisionLabels[d]
}

// Reason gives the reason carried by the result when the transfer doesn't proceed
func (d Decision) Reason() string {
	switch d {
	case SkipAlreadyDone:
		return models.ReasonAlreadyComplete
	case RejectInsufficientSpace:
		return models.ReasonInsufficientSpace
	}
	return ""
}

// SpaceFunc returns the bytes available to the user on the volume holding path
type SpaceFunc func(path string) (uint64, error)

const (
	DefaultSafetyMargin = 1.1
	DefaultMinFreeBytes = 100 << 20 // Required when the size is unknown
	DefaultWarnBelow    = 5 << 30   // Low disk warning
)

// Gate is consulted before every attempt. Free space is sampled at each call.
type Gate struct {
	l            logger
	freeSpace    SpaceFunc
	safetyMargin float64
	minFree      uint64
	warnBelow    uint64
}

func NewGate() *Gate {
	return &Gate{
		l:            nullLogger{},
		freeSpace:    FreeSpace,
		safetyMargin: DefaultSafetyMargin,
		minFree:      DefaultMinFreeBytes,
		warnBelow:    DefaultWarnBelow,
	}
}

func (g *Gate) WithLogger(l interface{ Printf(string, ...interface{}) }) *Gate {
	g.l = l
	return g
}

// WithSpaceFunc replaces the free space sampling
func (g *Gate) WithSpaceFunc(fn SpaceFunc) *Gate {
	if fn != nil {
		g.freeSpace = fn
	}
	return g
}

// WithSafetyMargin sets the multiplier applied to the expected size. Values below 1 are ignored.
func (g *Gate) WithSafetyMargin(m float64) *Gate {
	if m >= 1.0 {
		g.safetyMargin = m
	}
	return g
}

// WithMinFreeBytes sets the free space required when the size is unknown, 0 disables the check
func (g *Gate) WithMinFreeBytes(n uint64) *Gate {
	g.minFree = n
	return g
}

// WithWarnBelow sets the free space under which a warning is logged, 0 disables it
func (g *Gate) WithWarnBelow(n uint64) *Gate {
	g.warnBelow = n
	return g
}

// Check tells if the transfer can start.
func (g *Gate) Check(spec models.TransferSpec, alreadyComplete bool) Decision {
	if alreadyComplete {
		g.l.Printf("[PREFLIGHT] %s is already downloaded", spec.ID)
		return SkipAlreadyDone
	}

	free, err := g.freeSpace(spec.Destination)
	if err != nil {
		g.l.Printf("[PREFLIGHT] Can't check free space for %q, continuing anyway: %s", spec.Destination, err)
		return Proceed
	}

	needed := g.needed(spec)
	if free < needed {
		g.l.Printf("[PREFLIGHT] %s needs %s, only %s available", spec.ID, humanize.IBytes(needed), humanize.IBytes(free))
		return RejectInsufficientSpace
	}
	if g.warnBelow > 0 && free < g.warnBelow {
		g.l.Printf("[PREFLIGHT] Low disk space: %s available", humanize.IBytes(free))
	}
	return Proceed
}

// needed computes the space required by the spec. A resumed transfer
// only needs what is still missing.
func (g *Gate) needed(spec models.TransferSpec) uint64 {
	if !spec.HasExpectedBytes() {
		return g.minFree
	}
	n := float64(spec.ExpectedBytes) * g.safetyMargin
	if spec.Resume {
		if s, err := os.Stat(spec.Destination); err == nil && !s.IsDir() {
			n -= float64(s.Size())
		}
	}
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// FreeSpace returns the space available on the volume holding path.
// The path may not exist yet: the nearest existing parent is used.
func FreeSpace(path string) (uint64, error) {
	dir, err := existingDir(path)
	if err != nil {
		return 0, err
	}
	return freeSpace(dir)
}

func existingDir(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		s, err := os.Stat(p)
		if err == nil {
			if s.IsDir() {
				return p, nil
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fs.ErrNotExist
		}
		p = parent
	}
}
