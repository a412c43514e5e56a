// Package tiers maps a measured bandwidth to a number of connections.
//
// The table is configuration data. It is checked once at start up and never
// changes for the life of the process.
package tiers

import (
	"fmt"
	"math"
	"sort"

	"github.com/simulot/aspiradl/pkg/models"
)

// DefaultConnections is used when the speed is unknown or the test failed
const DefaultConnections = 4

// Tier is the half open interval [Min, Max) mapped to a connection count.
// Max is +Inf for the last tier.
type Tier struct {
	Min         float64
	Max         float64
	Connections int
}

func (t Tier) contains(mbps float64) bool {
	return t.Min <= mbps && mbps < t.Max
}

func (t Tier) String() string {
	if math.IsInf(t.Max, 1) {
		return fmt.Sprintf("[%g, +Inf) -> %d", t.Min, t.Connections)
	}
	return fmt.Sprintf("[%g, %g) -> %d", t.Min, t.Max, t.Connections)
}

// ConfigurationError reports a malformed table
type ConfigurationError struct {
	Index  int // Offending tier, -1 for the whole table
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Index < 0 {
		return "tier table: " + e.Reason
	}
	return fmt.Sprintf("tier table: tier #%d: %s", e.Index+1, e.Reason)
}

// Table is an immutable, validated tier table
type Table struct {
	tiers              []Tier
	defaultConnections int
}

var defaultTiers = []Tier{
	{0, 10, 1},
	{10, 20, 2},
	{20, 100, 4},
	{100, 200, 8},
	{200, 300, 16},
	{300, 400, 24},
	{400, 500, 32},
	{500, 1000, 64},
	{1000, 1500, 128},
	{1500, math.Inf(1), 256},
}

// DefaultTiers returns a copy of the built-in table
func DefaultTiers() []Tier {
	return append([]Tier(nil), defaultTiers...)
}

// Default returns the built-in table
func Default() *Table {
	t, err := New(defaultTiers, DefaultConnections)
	if err != nil {
		panic(err)
	}
	return t
}

// New validates the tiers and builds the table.
// The tiers must cover [0, +Inf) without gap nor overlap, and the connection
// count must not decrease when the speed increases.
func New(tiers []Tier, defaultConnections int) (*Table, error) {
	if len(tiers) == 0 {
		return nil, &ConfigurationError{Index: -1, Reason: "no tier"}
	}
	if defaultConnections < 1 || defaultConnections > models.MaxConnections {
		return nil, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("default connections %d out of [1, %d]", defaultConnections, models.MaxConnections)}
	}
	ts := append([]Tier(nil), tiers...)
	for i, t := range ts {
		switch {
		case math.IsNaN(t.Min) || math.IsNaN(t.Max):
			return nil, &ConfigurationError{Index: i, Reason: "bound is not a number"}
		case i == 0 && t.Min != 0:
			return nil, &ConfigurationError{Index: i, Reason: fmt.Sprintf("first tier must start at 0, not %g", t.Min)}
		case i > 0 && t.Min != ts[i-1].Max:
			return nil, &ConfigurationError{Index: i, Reason: fmt.Sprintf("starts at %g but previous tier ends at %g", t.Min, ts[i-1].Max)}
		case t.Max <= t.Min:
			return nil, &ConfigurationError{Index: i, Reason: fmt.Sprintf("empty interval [%g, %g)", t.Min, t.Max)}
		case t.Connections < 1 || t.Connections > models.MaxConnections:
			return nil, &ConfigurationError{Index: i, Reason: fmt.Sprintf("connections %d out of [1, %d]", t.Connections, models.MaxConnections)}
		case i > 0 && t.Connections < ts[i-1].Connections:
			return nil, &ConfigurationError{Index: i, Reason: fmt.Sprintf("connections %d lower than previous tier's %d", t.Connections, ts[i-1].Connections)}
		}
	}
	if last := ts[len(ts)-1]; !math.IsInf(last.Max, 1) {
		return nil, &ConfigurationError{Index: len(ts) - 1, Reason: fmt.Sprintf("last tier must be open ended, ends at %g", last.Max)}
	}
	return &Table{tiers: ts, defaultConnections: defaultConnections}, nil
}

// Tiers returns a copy of the table content
func (t *Table) Tiers() []Tier { return append([]Tier(nil), t.tiers...) }

// DefaultConnections used in degraded mode
func (t *Table) DefaultConnections() int { return t.defaultConnections }

// ConnectionsFor returns the connection count of the tier containing mbps.
// Negative or NaN speeds give the default connection count.
func (t *Table) ConnectionsFor(mbps float64) int {
	if math.IsNaN(mbps) || mbps < 0 {
		return t.defaultConnections
	}
	i := sort.Search(len(t.tiers), func(i int) bool { return t.tiers[i].Max > mbps })
	if i < len(t.tiers) && t.tiers[i].contains(mbps) {
		return t.tiers[i].Connections
	}
	return t.defaultConnections
}

// ForMeasurement is ConnectionsFor with absent or failed measurements
// falling back on the default
func (t *Table) ForMeasurement(m *models.SpeedMeasurement) int {
	if !m.IsValid() {
		return t.defaultConnections
	}
	return t.ConnectionsFor(m.Mbps)
}

// Policy derives the connection policy. A positive override always wins.
func (t *Table) Policy(m *models.SpeedMeasurement, override int) models.ConnectionPolicy {
	if override > 0 {
		return models.ConnectionPolicy{Connections: models.ClampConnections(override), Overridden: true}
	}
	return models.ConnectionPolicy{Connections: models.ClampConnections(t.ForMeasurement(m))}
}

// TierName gives a human name to the speed
func TierName(mbps float64) string {
	switch {
	case math.IsNaN(mbps) || mbps < 0:
		return "unknown"
	case mbps < 20:
		return "very_slow"
	case mbps < 100:
		return "slow"
	case mbps < 200:
		return "medium"
	case mbps < 500:
		return "fast"
	case mbps < 1000:
		return "very_fast"
	case mbps < 1500:
		return "gigabit"
	}
	return "ultra"
}
