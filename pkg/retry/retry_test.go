package retry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/preflight"
)

// scripted returns the given outcomes in turn and records the specs it gets
type scripted struct {
	sync.Mutex
	outcomes []models.Outcome
	specs    []models.TransferSpec
}

func (s *scripted) Invoke(ctx context.Context, spec models.TransferSpec) models.Outcome {
	s.Lock()
	defer s.Unlock()
	s.specs = append(s.specs, spec)
	if len(s.outcomes) == 0 {
		return models.Succeeded()
	}
	o := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return o
}

func (s *scripted) calls() int {
	s.Lock()
	defer s.Unlock()
	return len(s.specs)
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

type gateFunc func(models.TransferSpec, bool) preflight.Decision

func (g gateFunc) Check(s models.TransferSpec, c bool) preflight.Decision { return g(s, c) }

var episode = models.TransferSpec{ID: "e01", SourceURL: "http://example.com/e01.mp4", Destination: "e01.mp4", Connections: 4}

func TestExecute(t *testing.T) {
	tc := []struct {
		name     string
		outcomes []models.Outcome
		final    models.FinalOutcome
		reason   string
		attempts int
		delays   []time.Duration
	}{
		{
			"success at first",
			[]models.Outcome{models.Succeeded()},
			models.FinalSuccess, "", 1, nil,
		},
		{
			"success after two failures",
			[]models.Outcome{models.Retryable(models.ReasonTimeout), models.Retryable(models.ReasonStalled), models.Succeeded()},
			models.FinalSuccess, "", 3, []time.Duration{time.Second, 2 * time.Second},
		},
		{
			"fatal stops at once",
			[]models.Outcome{models.Fatal("http-404"), models.Succeeded()},
			models.FinalFailed, "http-404", 1, nil,
		},
		{
			"fatal after a retry",
			[]models.Outcome{models.Retryable(models.ReasonTimeout), models.Fatal(models.ReasonPermissionDenied)},
			models.FinalFailed, models.ReasonPermissionDenied, 2, []time.Duration{time.Second},
		},
		{
			"budget exhausted",
			[]models.Outcome{models.Retryable(models.ReasonTimeout), models.Retryable(models.ReasonTimeout), models.Retryable(models.ReasonConnectionRefused)},
			models.FinalFailed, models.ReasonConnectionRefused, 3, []time.Duration{time.Second, 2 * time.Second},
		},
		{
			"cancelled isn't retried",
			[]models.Outcome{models.CancelledOutcome()},
			models.FinalCancelled, models.ReasonCancelled, 1, nil,
		},
	}

	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			inv := &scripted{outcomes: c.outcomes}
			sl := &sleepRecorder{}
			s := New(inv).WithSleep(sl.Sleep)
			r := s.Execute(context.Background(), episode, false)

			if r.Final != c.final || r.Reason != c.reason {
				t.Errorf("Expecting %v(%s), got %v(%s)", c.final, c.reason, r.Final, r.Reason)
			}
			if r.AttemptCount() != c.attempts {
				t.Errorf("Expecting %d attempts, got %d", c.attempts, r.AttemptCount())
			}
			if inv.calls() != c.attempts {
				t.Errorf("Expecting %d invocations, got %d", c.attempts, inv.calls())
			}
			if d := cmp.Diff(c.delays, sl.delays); d != "" {
				t.Errorf("Delays mismatch (-want +got):\n%s", d)
			}
			for i, a := range r.Attempts {
				if a.Number != i+1 || a.SpecID != episode.ID {
					t.Errorf("Attempt #%d badly numbered: %+v", i+1, a)
				}
			}
		})
	}
}

func TestExecuteRealBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("waits 3 seconds")
	}
	inv := &scripted{outcomes: []models.Outcome{
		models.Retryable(models.ReasonTimeout),
		models.Retryable(models.ReasonTimeout),
		models.Succeeded(),
	}}
	start := time.Now()
	r := New(inv).Execute(context.Background(), episode, false)
	elapsed := time.Since(start)

	if r.Final != models.FinalSuccess || r.AttemptCount() != 3 {
		t.Errorf("Expecting success after 3 attempts, got %s", r)
	}
	if elapsed < 3*time.Second {
		t.Errorf("Expecting at least 3s of backoff, got %s", elapsed)
	}
}

func TestExecuteResumeFlag(t *testing.T) {
	inv := &scripted{outcomes: []models.Outcome{
		models.Retryable(models.ReasonTimeout),
		models.Retryable(models.ReasonResumeInvalid),
		models.Succeeded(),
	}}
	sl := &sleepRecorder{}
	r := New(inv).WithSleep(sl.Sleep).Execute(context.Background(), episode, false)

	want := []bool{false, true, false}
	got := []bool{}
	for _, s := range inv.specs {
		got = append(got, s.Resume)
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Resume flags mismatch (-want +got):\n%s", d)
	}
	for i, a := range r.Attempts {
		if a.Resumed != want[i] {
			t.Errorf("Attempt #%d: expecting resumed %v, got %v", i+1, want[i], a.Resumed)
		}
	}
}

func TestExecuteMaxAttempts(t *testing.T) {
	inv := &scripted{outcomes: []models.Outcome{
		models.Retryable("a"), models.Retryable("b"), models.Retryable("c"), models.Retryable("d"), models.Retryable("e"),
	}}
	sl := &sleepRecorder{}
	r := New(inv).WithMaxAttempts(5).WithBaseDelay(10 * time.Millisecond).WithSleep(sl.Sleep).Execute(context.Background(), episode, false)
	if r.AttemptCount() != 5 || r.Reason != "e" {
		t.Errorf("Expecting 5 attempts ending with e, got %s", r)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond}
	if d := cmp.Diff(want, sl.delays); d != "" {
		t.Errorf("Delays mismatch (-want +got):\n%s", d)
	}
}

func TestExecutePreflight(t *testing.T) {
	t.Run("already complete", func(t *testing.T) {
		inv := &scripted{}
		r := New(inv).Execute(context.Background(), episode, true)
		if r.Final != models.FinalSkipped || r.Reason != models.ReasonAlreadyComplete {
			t.Errorf("Expecting skipped, got %s", r)
		}
		if inv.calls() != 0 {
			t.Errorf("Expecting no invocation, got %d", inv.calls())
		}
	})

	t.Run("insufficient space", func(t *testing.T) {
		inv := &scripted{}
		g := preflight.NewGate().WithSpaceFunc(func(string) (uint64, error) { return 1 << 20, nil })
		s := episode
		s.ExpectedBytes = 1 << 30
		r := New(inv).WithGate(g).Execute(context.Background(), s, false)
		if r.Final != models.FinalFailed || r.Reason != models.ReasonInsufficientSpace {
			t.Errorf("Expecting failed(insufficient-space), got %s", r)
		}
		if inv.calls() != 0 || r.AttemptCount() != 0 {
			t.Errorf("Expecting no invocation, got %d", inv.calls())
		}
	})

	t.Run("gate checked before each attempt", func(t *testing.T) {
		inv := &scripted{outcomes: []models.Outcome{models.Retryable(models.ReasonTimeout)}}
		checks := 0
		g := gateFunc(func(s models.TransferSpec, complete bool) preflight.Decision {
			checks++
			if checks == 2 {
				return preflight.RejectInsufficientSpace
			}
			return preflight.Proceed
		})
		sl := &sleepRecorder{}
		r := New(inv).WithGate(g).WithSleep(sl.Sleep).Execute(context.Background(), episode, false)
		if r.Final != models.FinalFailed || r.Reason != models.ReasonInsufficientSpace || r.AttemptCount() != 1 {
			t.Errorf("Expecting failed(insufficient-space) after 1 attempt, got %s", r)
		}
	})
}

func TestExecuteCancel(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		inv := &scripted{}
		r := New(inv).Execute(ctx, episode, false)
		if r.Final != models.FinalCancelled || inv.calls() != 0 {
			t.Errorf("Expecting cancelled without invocation, got %s", r)
		}
	})

	t.Run("during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		inv := &scripted{outcomes: []models.Outcome{models.Retryable(models.ReasonTimeout)}}
		time.AfterFunc(50*time.Millisecond, cancel)
		start := time.Now()
		r := New(inv).WithBaseDelay(time.Minute).Execute(ctx, episode, false)
		if r.Final != models.FinalCancelled || r.AttemptCount() != 1 {
			t.Errorf("Expecting cancelled after 1 attempt, got %s", r)
		}
		if time.Since(start) > 10*time.Second {
			t.Errorf("Backoff wasn't interrupted")
		}
	})
}

func TestDelayIsCapped(t *testing.T) {
	tc := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{"grows until the cap", time.Second, 9, 256 * time.Second},
		{"capped", time.Second, 10, MaxDelay},
		{"no overflow", time.Second, 100, MaxDelay},
		{"large base is kept", time.Hour, 40, time.Hour},
		{"no base", 0, 50, 0},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if got := New(nil).WithBaseDelay(c.base).Delay(c.attempt); got != c.want {
				t.Errorf("Expecting %s, got %s", c.want, got)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	s := New(nil)
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := s.Delay(i); got != w {
			t.Errorf("Delay(%d): expecting %s, got %s", i, w, got)
		}
	}
}
