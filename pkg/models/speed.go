package models

import (
	"fmt"
	"time"
)

// MaxConnections is the upper bound of the connection count given to the accelerator
const MaxConnections = 256

// SpeedMeasurement is produced once per session or on explicit re-test.
// A nil measurement or a negative Mbps means the measurement failed.
type SpeedMeasurement struct {
	Mbps       float64
	MeasuredAt time.Time
}

// NewSpeedMeasurement stamps a measurement with the current time
func NewSpeedMeasurement(mbps float64) *SpeedMeasurement {
	return &SpeedMeasurement{
		Mbps:       mbps,
		MeasuredAt: time.Now(),
	}
}

// IsValid is false for absent or failed measurements
func (m *SpeedMeasurement) IsValid() bool {
	return m != nil && m.Mbps >= 0
}

// MBps converts the measure in megabytes per second
func (m SpeedMeasurement) MBps() float64 { return m.Mbps / 8 }

func (m SpeedMeasurement) String() string {
	return fmt.Sprintf("%.2f Mbps (%.2f MB/s)", m.Mbps, m.MBps())
}

// ConnectionPolicy is the number of connections used for transfers
type ConnectionPolicy struct {
	Connections int
	Overridden  bool // True when the caller forced the value
}

// ClampConnections keeps n in [1, MaxConnections]
func ClampConnections(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxConnections:
		return MaxConnections
	}
	return n
}
