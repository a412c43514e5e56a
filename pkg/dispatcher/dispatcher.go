// Package dispatcher fans out messages published by the transfers to whoever
// listens: progress bars, history store, log.
package dispatcher

import (
	"sync"

	"github.com/simulot/aspiradl/pkg/models"
)

type Subscriber interface {
	// Subscribe call the given function for each new notification.
	// The returned function must be called to cancel the subscription
	Subscribe(func(*models.Message)) (cancel func())
}

type Publisher interface {
	// Publish the notification to all current subcribers
	Publish(*models.Message)
}

// Dispatcher is in charge of dispatch notifications to
// all its subscribers
type Dispatcher struct {
	sync.RWMutex
	subscribers []*subscriber
	running     sync.WaitGroup // subscriber goroutines
	closed      bool
}

// subscriber will receive message emitted by the dispatcher
type subscriber struct {
	n chan *models.Message
}

// NewDispatcher creates a dispatcher
func NewDispatcher() *Dispatcher {
	d := Dispatcher{}
	return &d
}

// Publish send the notification to all of subscribers
// Messages published after Close are dropped
func (d *Dispatcher) Publish(n *models.Message) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return
	}
	for _, s := range d.subscribers {
		s.n <- n
	}
}

// TryPublish sends the notification to the subscribers ready to take it.
// A subscriber with a full queue misses it.
func (d *Dispatcher) TryPublish(n *models.Message) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return
	}
	for _, s := range d.subscribers {
		select {
		case s.n <- n:
		default:
		}
	}
}

// Subscribe call onMessage function for each message and return the Unsubscribe function
// It creates a subcriber record for each subscriber
func (d *Dispatcher) Subscribe(onMessage func(*models.Message)) (cancel func()) {
	d.Lock()
	defer d.Unlock()
	s := &subscriber{
		n: make(chan *models.Message, 16),
	}
	if d.closed {
		close(s.n)
		return func() {}
	}
	d.subscribers = append(d.subscribers, s)

	d.running.Add(1)
	go func() {
		defer d.running.Done()
		for n := range s.n {
			onMessage(n)
		}
	}()

	return func() {
		d.unsubscribe(s)
	}
}

// unsubscribe remove the subscriber from the list
func (d *Dispatcher) unsubscribe(s *subscriber) {
	d.Lock()
	defer d.Unlock()
	for i := range d.subscribers {
		if d.subscribers[i] == s {
			close(s.n)
			d.subscribers[i] = d.subscribers[len(d.subscribers)-1]
			d.subscribers[len(d.subscribers)-1] = nil
			d.subscribers = d.subscribers[0 : len(d.subscribers)-1]
			return
		}
	}
}

// Close ends all subscriptions and waits until every pending message is handled
func (d *Dispatcher) Close() {
	d.Lock()
	if !d.closed {
		d.closed = true
		for _, s := range d.subscribers {
			close(s.n)
		}
		d.subscribers = nil
	}
	d.Unlock()
	d.running.Wait()
}

// Progresser returns a progress sink publishing samples as messages
func (d *Dispatcher) Progresser() *ProgressPublisher {
	return &ProgressPublisher{d: d}
}

// ProgressPublisher turns progress samples into messages.
// Samples are dropped for subscribers lagging behind, results never are.
type ProgressPublisher struct {
	d *Dispatcher
}

func (p *ProgressPublisher) Progress(specID string, pp models.ProgressionPayload) {
	p.d.TryPublish(models.NewProgression(specID, pp))
}
