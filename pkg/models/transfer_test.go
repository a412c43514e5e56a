package models

import (
	"testing"
)

func TestSummary(t *testing.T) {
	var s Summary
	for _, f := range []FinalOutcome{FinalSuccess, FinalSuccess, FinalFailed, FinalSkipped, FinalCancelled, FinalCancelled, FinalCancelled} {
		s.Add(TransferResult{Final: f})
	}
	want := Summary{Success: 2, Failed: 1, Skipped: 1, Cancelled: 3}
	if s != want {
		t.Errorf("Expecting %+v, got %+v", want, s)
	}
	if s.Total() != 7 {
		t.Errorf("Expecting total 7, got %d", s.Total())
	}
}

func TestOutcomeString(t *testing.T) {
	cc := []struct {
		o    Outcome
		want string
	}{
		{Succeeded(), "success"},
		{Retryable(ReasonTimeout), "retryable-failure(timeout)"},
		{Fatal(ReasonHTTPStatus(404)), "fatal-failure(http-404)"},
		{CancelledOutcome(), "cancelled(cancelled)"},
		{Outcome{Kind: OutcomeKind(42)}, "unknown"},
	}
	for _, c := range cc {
		t.Run(c.want, func(t *testing.T) {
			if got := c.o.String(); got != c.want {
				t.Errorf("Expecting %q, got %q", c.want, got)
			}
		})
	}
}

func TestWithResume(t *testing.T) {
	s := TransferSpec{ID: "1", Resume: false}
	r := s.WithResume(true)
	if s.Resume {
		t.Error("Original spec must not be modified")
	}
	if !r.Resume {
		t.Error("Expecting resume flag on the copy")
	}
}

func TestClampConnections(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 16: 16, 256: 256, 1000: 256} {
		if got := ClampConnections(in); got != want {
			t.Errorf("ClampConnections(%d): expecting %d, got %d", in, want, got)
		}
	}
}

func TestResultMessage(t *testing.T) {
	r := NewResult(TransferSpec{ID: "ep-01"}, FinalFailed, ReasonTimeout, []TransferAttempt{{Number: 1}})
	m := NewResultMessage(r)
	if m.Status != StatusError {
		t.Errorf("Expecting error status, got %d", m.Status)
	}
	if m.Result == nil || m.Result.SpecID != "ep-01" {
		t.Errorf("Expecting the result to be attached, got %v", m.Result)
	}
	if m.Text != "ep-01: failed(timeout) after 1 attempt(s)" {
		t.Errorf("Unexpected text %q", m.Text)
	}
}
