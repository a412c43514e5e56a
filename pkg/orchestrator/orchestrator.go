// Package orchestrator drives a batch of transfers, one at a time or several
// at once, and makes sure every spec ends with exactly one result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/simulot/aspiradl/pkg/dispatcher"
	"github.com/simulot/aspiradl/pkg/models"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

var (
	// ErrInvalidQueue is returned when the batch can't be run at all
	ErrInvalidQueue = errors.New("invalid transfer queue")
	// ErrRunning is returned when a batch is already running
	ErrRunning = errors.New("a batch is already running")
)

// Executor runs one spec until its terminal state
type Executor interface {
	Execute(ctx context.Context, spec models.TransferSpec, alreadyComplete bool) models.TransferResult
}

// Orchestrator runs batches of transfers
type Orchestrator struct {
	exec     Executor
	complete func(models.TransferSpec) bool
	pub      dispatcher.Publisher
	l        logger

	sync.Mutex
	summary models.Summary
	cancel  context.CancelFunc
	running bool
}

func New(exec Executor) *Orchestrator {
	return &Orchestrator{
		exec:     exec,
		complete: func(models.TransferSpec) bool { return false },
		l:        nullLogger{},
	}
}

func (o *Orchestrator) WithLogger(l interface{ Printf(string, ...interface{}) }) *Orchestrator {
	o.l = l
	return o
}

// WithCompletion sets the function telling if a spec has been downloaded by a previous run
func (o *Orchestrator) WithCompletion(fn func(models.TransferSpec) bool) *Orchestrator {
	if fn != nil {
		o.complete = fn
	}
	return o
}

// WithPublisher publishes each result as a message
func (o *Orchestrator) WithPublisher(p dispatcher.Publisher) *Orchestrator {
	o.pub = p
	return o
}

func validate(queue []models.TransferSpec, width int) error {
	if width < 1 {
		return fmt.Errorf("%w: width must be at least 1, got %d", ErrInvalidQueue, width)
	}
	if len(queue) == 0 {
		return fmt.Errorf("%w: nothing to transfer", ErrInvalidQueue)
	}
	ids := map[string]int{}
	for i, s := range queue {
		if s.ID == "" {
			return fmt.Errorf("%w: spec #%d has no ID", ErrInvalidQueue, i+1)
		}
		if j, ok := ids[s.ID]; ok {
			return fmt.Errorf("%w: specs #%d and #%d share the ID %q", ErrInvalidQueue, j+1, i+1, s.ID)
		}
		ids[s.ID] = i
	}
	return nil
}

// Run starts the batch and returns the channel of results.
// The channel yields one result per spec, then is closed. Results come in
// queue order when width is 1, in completion order otherwise.
// The caller must drain the channel.
func (o *Orchestrator) Run(ctx context.Context, queue []models.TransferSpec, width int) (<-chan models.TransferResult, error) {
	if err := validate(queue, width); err != nil {
		return nil, err
	}

	o.Lock()
	if o.running {
		o.Unlock()
		return nil, ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.summary = models.Summary{}
	o.Unlock()

	batch := uuid.New()
	queue = append([]models.TransferSpec(nil), queue...)
	results := make(chan models.TransferResult, width)
	o.l.Printf("[ORCHESTRATOR] Batch %s: %d transfer(s), %d at a time", batch, len(queue), width)

	go func() {
		defer func() {
			o.Lock()
			o.running = false
			o.Unlock()
			cancel()
			o.l.Printf("[ORCHESTRATOR] Batch %s done: %s", batch, o.Summary())
			close(results)
		}()

		pool := newWorkerPool(width, o.l, func(s models.TransferSpec) models.TransferResult {
			var r models.TransferResult
			if ctx.Err() != nil {
				r = notStarted(s)
			} else {
				r = o.exec.Execute(ctx, s, o.complete(s))
			}
			o.emit(results, r)
			return r
		})

		var pending []models.TransferSpec
	feed:
		for i, s := range queue {
			if ctx.Err() != nil {
				pending = queue[i:]
				break
			}
			select {
			case <-ctx.Done():
				pending = queue[i:]
				break feed
			case pool.submit <- s:
			}
		}
		pool.Stop()

		if len(pending) > 0 {
			o.l.Printf("[ORCHESTRATOR] Batch %s cancelled, %d transfer(s) not started", batch, len(pending))
		}
		for _, s := range pending {
			o.emit(results, notStarted(s))
		}
	}()

	return results, nil
}

func notStarted(s models.TransferSpec) models.TransferResult {
	return models.NewResult(s, models.FinalCancelled, models.ReasonNotStarted, []models.TransferAttempt{})
}

func (o *Orchestrator) emit(results chan<- models.TransferResult, r models.TransferResult) {
	o.Lock()
	o.summary.Add(r)
	o.Unlock()
	if o.pub != nil {
		o.pub.Publish(models.NewResultMessage(r))
	}
	results <- r
}

// Cancel stops the running batch: nothing more is started and running
// transfers are killed.
func (o *Orchestrator) Cancel() {
	o.Lock()
	defer o.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Summary gives the counts of the last batch. It is complete once the
// result channel is closed.
func (o *Orchestrator) Summary() models.Summary {
	o.Lock()
	defer o.Unlock()
	return o.summary
}

// RunAll runs the batch and collects all results
func (o *Orchestrator) RunAll(ctx context.Context, queue []models.TransferSpec, width int) ([]models.TransferResult, models.Summary, error) {
	ch, err := o.Run(ctx, queue, width)
	if err != nil {
		return nil, models.Summary{}, err
	}
	results := make([]models.TransferResult, 0, len(queue))
	for r := range ch {
		results = append(results, r)
	}
	return results, o.Summary(), nil
}
