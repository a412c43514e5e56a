// Package speedtest measures the download bandwidth with a plain HTTP transfer.
package speedtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/myhttp"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

const (
	DefaultURL      = "https://speed.cloudflare.com/__down?bytes=50000000"
	DefaultDuration = 10 * time.Second
	DefaultAttempts = 3
)

// ErrTooShort is returned when too little data was received to compute a speed
var ErrTooShort = errors.New("not enough data received")

// Tester runs the speed test
type Tester struct {
	client   *myhttp.Client
	url      string
	duration time.Duration
	attempts int
	now      func() time.Time
	l        logger
}

func New(client *myhttp.Client) *Tester {
	return &Tester{
		client:   client,
		url:      DefaultURL,
		duration: DefaultDuration,
		attempts: DefaultAttempts,
		now:      time.Now,
		l:        nullLogger{},
	}
}

func (t *Tester) WithLogger(l interface{ Printf(string, ...interface{}) }) *Tester {
	t.l = l
	return t
}

// WithURL sets the resource downloaded to measure the speed
func (t *Tester) WithURL(u string) *Tester {
	if u != "" {
		t.url = u
	}
	return t
}

// WithDuration limits the time spent on one measure
func (t *Tester) WithDuration(d time.Duration) *Tester {
	if d > 0 {
		t.duration = d
	}
	return t
}

func (t *Tester) WithAttempts(n int) *Tester {
	if n > 0 {
		t.attempts = n
	}
	return t
}

// Measure runs one download and computes the bandwidth
func (t *Tester) Measure(ctx context.Context) (*models.SpeedMeasurement, error) {
	ctx, cancel := context.WithTimeout(ctx, t.duration)
	defer cancel()

	start := t.now()
	resp, err := t.client.Get(ctx, t.url)
	if err != nil {
		return nil, fmt.Errorf("speed test: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	elapsed := t.now().Sub(start)
	// Hitting the deadline is the normal end of a measure on a large resource
	if err != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("speed test: %w", err)
	}
	if n == 0 || elapsed <= 0 {
		return nil, ErrTooShort
	}

	mbps := float64(n) * 8 / elapsed.Seconds() / 1e6
	t.l.Printf("[SPEEDTEST] %s received in %s: %.2f Mbps", humanize.Bytes(uint64(n)), elapsed.Round(time.Millisecond), mbps)
	return models.NewSpeedMeasurement(mbps), nil
}

// Run measures the speed, retrying on failure
func (t *Tester) Run(ctx context.Context) (*models.SpeedMeasurement, error) {
	var err error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		var m *models.SpeedMeasurement
		t.l.Printf("[SPEEDTEST] Attempt %d/%d", attempt, t.attempts)
		m, err = t.Measure(ctx)
		if err == nil {
			return m, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		t.l.Printf("[SPEEDTEST] Attempt %d failed: %s", attempt, err)
	}
	return nil, fmt.Errorf("speed test failed after %d attempts: %w", t.attempts, err)
}
