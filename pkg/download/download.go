// Package download runs the axel multi-connection accelerator as a child
// process and maps what it does to a transfer outcome.
package download

import (
	"context"

	"github.com/simulot/aspiradl/pkg/models"
)

// Invoker runs one attempt of a transfer.
// Invoke blocks until the attempt is over. It never returns an error:
// everything is told by the outcome.
type Invoker interface {
	Invoke(ctx context.Context, spec models.TransferSpec) models.Outcome
}

// Progresser receives progress samples of running transfers.
// Calls are fire-and-forget and may come from several goroutines.
type Progresser interface {
	Progress(specID string, p models.ProgressionPayload)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, spec models.TransferSpec) models.Outcome

func (f InvokerFunc) Invoke(ctx context.Context, spec models.TransferSpec) models.Outcome {
	return f(ctx, spec)
}
