package download

import (
	"sync/atomic"
	"time"
)

// watchdog calls back when it isn't kicked during the interval
type watchdog struct {
	interval time.Duration
	timer    *time.Timer
	fired    atomic.Bool
}

func newWatchDog(interval time.Duration, callback func()) *watchdog {
	w := &watchdog{
		interval: interval,
	}
	w.timer = time.AfterFunc(interval, func() {
		w.fired.Store(true)
		callback()
	})
	return w
}

func (w *watchdog) Stop() {
	w.timer.Stop()
}

func (w *watchdog) Kick() {
	if w.timer.Stop() {
		w.timer.Reset(w.interval)
	}
}

// Fired tells if the callback has been called
func (w *watchdog) Fired() bool {
	return w.fired.Load()
}
