// Package retry runs one transfer until it succeeds, fails for good or the
// attempt budget is spent.
package retry

import (
	"context"
	"time"

	"github.com/simulot/aspiradl/pkg/download"
	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/preflight"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	MaxDelay           = 5 * time.Minute // backoff growth stops there
)

// Gate is consulted before each attempt
type Gate interface {
	Check(spec models.TransferSpec, alreadyComplete bool) preflight.Decision
}

// SleepFunc waits for d, or returns the context's error when it is done first
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for the delay or the end of the context
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler wraps the attempts of one spec with exponential backoff.
// A Scheduler keeps no state between calls and can be shared by workers.
type Scheduler struct {
	invoker     download.Invoker
	gate        Gate
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	now         func() time.Time
	l           logger
}

// New creates a scheduler with the default policy: 3 attempts, waiting 1s then 2s
func New(invoker download.Invoker) *Scheduler {
	return &Scheduler{
		invoker:     invoker,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       Sleep,
		now:         time.Now,
		l:           nullLogger{},
	}
}

func (s *Scheduler) WithLogger(l interface{ Printf(string, ...interface{}) }) *Scheduler {
	s.l = l
	return s
}

// WithGate sets the preflight gate. Without gate, only completed targets are skipped.
func (s *Scheduler) WithGate(g Gate) *Scheduler {
	s.gate = g
	return s
}

func (s *Scheduler) WithMaxAttempts(n int) *Scheduler {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

func (s *Scheduler) WithBaseDelay(d time.Duration) *Scheduler {
	if d >= 0 {
		s.baseDelay = d
	}
	return s
}

func (s *Scheduler) WithSleep(fn SleepFunc) *Scheduler {
	if fn != nil {
		s.sleep = fn
	}
	return s
}

// Delay returns the wait after the given failed attempt: base, 2×base, 4×base...
// The delay doesn't grow past MaxDelay, or past the base delay when it is larger.
func (s *Scheduler) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	limit := MaxDelay
	if s.baseDelay > limit {
		limit = s.baseDelay
	}
	d := s.baseDelay
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

func (s *Scheduler) check(spec models.TransferSpec, alreadyComplete bool) preflight.Decision {
	if s.gate == nil {
		if alreadyComplete {
			return preflight.SkipAlreadyDone
		}
		return preflight.Proceed
	}
	return s.gate.Check(spec, alreadyComplete)
}

// Execute runs the spec until a terminal state. It never returns an error:
// the result tells what happened.
func (s *Scheduler) Execute(ctx context.Context, spec models.TransferSpec, alreadyComplete bool) models.TransferResult {
	attempts := []models.TransferAttempt{}
	current := spec

	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return models.NewResult(spec, models.FinalCancelled, models.ReasonCancelled, attempts)
		}

		// Completion only matters before the first attempt, afterward it is our own work
		switch d := s.check(current, alreadyComplete && n == 1); d {
		case preflight.SkipAlreadyDone:
			return models.NewResult(spec, models.FinalSkipped, d.Reason(), attempts)
		case preflight.RejectInsufficientSpace:
			return models.NewResult(spec, models.FinalFailed, d.Reason(), attempts)
		}

		a := models.TransferAttempt{
			SpecID:    spec.ID,
			Number:    n,
			Resumed:   current.Resume,
			StartedAt: s.now(),
		}
		a.Outcome = s.invoker.Invoke(ctx, current)
		a.EndedAt = s.now()
		attempts = append(attempts, a)
		s.l.Printf("[RETRY] %s attempt %d/%d: %s (%s)", spec.ID, n, s.maxAttempts, a.Outcome, a.Duration().Round(time.Millisecond))

		switch a.Outcome.Kind {
		case models.Success:
			return models.NewResult(spec, models.FinalSuccess, "", attempts)
		case models.Cancelled:
			return models.NewResult(spec, models.FinalCancelled, models.ReasonCancelled, attempts)
		case models.FatalFailure:
			return models.NewResult(spec, models.FinalFailed, a.Outcome.Reason, attempts)
		}

		if n >= s.maxAttempts {
			s.l.Printf("[RETRY] %s gives up after %d attempts", spec.ID, n)
			return models.NewResult(spec, models.FinalFailed, a.Outcome.Reason, attempts)
		}

		delay := s.Delay(n)
		s.l.Printf("[RETRY] %s retries in %s", spec.ID, delay)
		if err := s.sleep(ctx, delay); err != nil {
			return models.NewResult(spec, models.FinalCancelled, models.ReasonCancelled, attempts)
		}

		// A resume the accelerator couldn't honor is followed by a fresh start
		current = current.WithResume(a.Outcome.Reason != models.ReasonResumeInvalid)
	}
}
