package models

import (
	"fmt"
	"time"
)

// Failure and skip reasons carried by outcomes and results
const (
	ReasonVerificationFailed     = "verification-failed"
	ReasonAcceleratorUnavailable = "accelerator-unavailable"
	ReasonInsufficientSpace      = "insufficient-space"
	ReasonAlreadyComplete        = "already-complete"
	ReasonResumeInvalid          = "resume-invalid"
	ReasonConnectionRefused      = "connection-refused"
	ReasonTimeout                = "timeout"
	ReasonDNSFailure             = "dns-failure"
	ReasonPartialContentMismatch = "partial-content-mismatch"
	ReasonStalled                = "stalled"
	ReasonInvalidURL             = "invalid-url"
	ReasonPermissionDenied       = "permission-denied"
	ReasonCancelled              = "cancelled"
	ReasonNotStarted             = "not-started"
	ReasonProcessError           = "process-error" // axel ended without an exit code
	ReasonIOError                = "io-error"      // destination folder can't be created
)

// ReasonHTTPStatus gives the reason for an HTTP status surfaced by the accelerator
func ReasonHTTPStatus(code int) string { return fmt.Sprintf("http-%d", code) }

// ReasonExitStatus gives the reason for an unrecognized non-zero exit code
func ReasonExitStatus(code int) string { return fmt.Sprintf("exit-status-%d", code) }

// TransferSpec describes one file to fetch.
// It is passed by value: the orchestrator never shares a spec between goroutines.
type TransferSpec struct {
	ID            string // Unique within a batch
	SourceURL     string // Direct media URL
	Destination   string // Destination file path
	Connections   int    // Connection count given to the accelerator
	Resume        bool   // Continue from a partial download when possible
	ExpectedBytes int64  // Expected size, <= 0 when unknown
}

// WithResume returns a copy of the spec with the resume flag set to r
func (s TransferSpec) WithResume(r bool) TransferSpec {
	s.Resume = r
	return s
}

// HasExpectedBytes tells if the size of the file is known
func (s TransferSpec) HasExpectedBytes() bool { return s.ExpectedBytes > 0 }

func (s TransferSpec) String() string {
	return fmt.Sprintf("%s (%s)", s.ID, s.Destination)
}

// OutcomeKind is the closed set of attempt outcomes
type OutcomeKind int

const (
	Success OutcomeKind = iota
	RetryableFailure
	FatalFailure
	Cancelled
)

var outcomeLabels = []string{
	"success",
	"retryable-failure",
	"fatal-failure",
	"cancelled",
}

func (k OutcomeKind) String() string {
	if k < 0 || int(k) >= len(outcomeLabels) {
		return "unknown"
	}
	return outcomeLabels[k]
}

// Outcome is the result of one accelerator invocation
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func Succeeded() Outcome              { return Outcome{Kind: Success} }
func Retryable(reason string) Outcome { return Outcome{Kind: RetryableFailure, Reason: reason} }
func Fatal(reason string) Outcome     { return Outcome{Kind: FatalFailure, Reason: reason} }
func CancelledOutcome() Outcome       { return Outcome{Kind: Cancelled, Reason: ReasonCancelled} }

func (o Outcome) IsSuccess() bool   { return o.Kind == Success }
func (o Outcome) IsRetryable() bool { return o.Kind == RetryableFailure }

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return o.Kind.String() + "(" + o.Reason + ")"
}

// TransferAttempt records one execution of the accelerator for a spec.
// Attempts are appended to the result history and never modified.
type TransferAttempt struct {
	SpecID    string
	Number    int // Starts at 1
	Resumed   bool
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   Outcome
}

// Duration of the attempt
func (a TransferAttempt) Duration() time.Duration { return a.EndedAt.Sub(a.StartedAt) }

// FinalOutcome is the terminal state of a spec
type FinalOutcome int

const (
	FinalSuccess FinalOutcome = iota
	FinalFailed
	FinalSkipped
	FinalCancelled
)

var finalLabels = []string{
	"success",
	"failed",
	"skipped",
	"cancelled",
}

func (f FinalOutcome) String() string {
	if f < 0 || int(f) >= len(finalLabels) {
		return "unknown"
	}
	return finalLabels[f]
}

// TransferResult is the terminal record of a spec
type TransferResult struct {
	SpecID   string
	Spec     TransferSpec
	Final    FinalOutcome
	Reason   string // Last failure reason, skip reason or cancellation reason
	Attempts []TransferAttempt
}

// NewResult creates a terminal result for the spec
func NewResult(spec TransferSpec, final FinalOutcome, reason string, attempts []TransferAttempt) TransferResult {
	return TransferResult{
		SpecID:   spec.ID,
		Spec:     spec,
		Final:    final,
		Reason:   reason,
		Attempts: attempts,
	}
}

// AttemptCount returns the number of accelerator invocations made
func (r TransferResult) AttemptCount() int { return len(r.Attempts) }

func (r TransferResult) String() string {
	if r.Reason == "" {
		return fmt.Sprintf("%s: %s after %d attempt(s)", r.SpecID, r.Final, len(r.Attempts))
	}
	return fmt.Sprintf("%s: %s(%s) after %d attempt(s)", r.SpecID, r.Final, r.Reason, len(r.Attempts))
}

// Summary counts terminal results per final outcome
type Summary struct {
	Success   int
	Failed    int
	Skipped   int
	Cancelled int
}

// Add accounts the result
func (s *Summary) Add(r TransferResult) {
	switch r.Final {
	case FinalSuccess:
		s.Success++
	case FinalFailed:
		s.Failed++
	case FinalSkipped:
		s.Skipped++
	case FinalCancelled:
		s.Cancelled++
	}
}

// Total number of results accounted
func (s Summary) Total() int { return s.Success + s.Failed + s.Skipped + s.Cancelled }

func (s Summary) String() string {
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped, %d cancelled", s.Success, s.Failed, s.Skipped, s.Cancelled)
}
