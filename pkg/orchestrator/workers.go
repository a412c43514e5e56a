package orchestrator

import (
	"sync"
	"time"

	"github.com/simulot/aspiradl/pkg/models"
)

// workerPool runs transfers on a fixed number of goroutines.
// Specs are taken in submission order, a freed worker takes the next one.
type workerPool struct {
	submit   chan models.TransferSpec // Send specs to this channel, one of workers will run it
	workerg  sync.WaitGroup           // To wait completion of all workers
	nbWorker int                      // The number of concurrent workers
	l        logger
}

// newWorkerPool starts n workers calling run for each submitted spec
func newWorkerPool(n int, l logger, run func(models.TransferSpec) models.TransferResult) *workerPool {
	w := &workerPool{
		submit:   make(chan models.TransferSpec),
		nbWorker: n,
		l:        l,
	}
	for i := 0; i < w.nbWorker; i++ {
		w.workerg.Add(1)
		go w.newWorker(i, run)
	}
	return w
}

// Stop closes the submission and waits the workers to finish their current transfer
func (w *workerPool) Stop() {
	close(w.submit)
	w.workerg.Wait()
}

// newWorker runs specs until the submission is closed
func (w *workerPool) newWorker(id int, run func(models.TransferSpec) models.TransferResult) {
	defer w.workerg.Done()
	for s := range w.submit {
		t := time.Now()
		r := run(s)
		w.l.Printf("[WORKER %d] %s (%s)", id, r, time.Since(t).Round(100*time.Millisecond))
	}
}
