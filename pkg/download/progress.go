package download

import (
	"sync"

	"github.com/simulot/aspiradl/pkg/models"
)

// progressSlot hands samples to the progresser from its own goroutine.
// Only the latest sample is kept: a slow progresser misses intermediate ones
// but never holds the reader of axel's output.
type progressSlot struct {
	p      Progresser
	specID string

	mu     sync.Mutex
	latest *models.ProgressionPayload
	wake   chan struct{}
	done   chan struct{}
}

func newProgressSlot(p Progresser, specID string) *progressSlot {
	s := &progressSlot{
		p:      p,
		specID: specID,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.forward()
	return s
}

// Put replaces the pending sample. It never blocks.
func (s *progressSlot) Put(pp models.ProgressionPayload) {
	s.mu.Lock()
	s.latest = &pp
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *progressSlot) forward() {
	defer close(s.done)
	for range s.wake {
		s.mu.Lock()
		pp := s.latest
		s.latest = nil
		s.mu.Unlock()
		if pp != nil {
			s.p.Progress(s.specID, *pp)
		}
	}
}

// Close delivers the pending sample and stops the forwarding goroutine.
// Put must not be called after Close.
func (s *progressSlot) Close() {
	close(s.wake)
	<-s.done
}
