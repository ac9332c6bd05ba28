package session

import (
	"sync"
	"time"
)

// Timer is the repeating-timer capability the controller uses for playback
// auto-advance. It is injected so pacing stays decoupled from any host
// environment's clock; tests supply a manual implementation.
//
// Ticks are serialized: the next tick fires only after the previous tick's
// callback has returned. The callback returns false to stop the timer from
// within a tick (e.g. when the cursor reaches the last step).
type Timer interface {
	Start(interval time.Duration, tick func() bool)
	Stop()
}

// tickerTimer is the default Timer, backed by time.Ticker on a dedicated
// goroutine.
type tickerTimer struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTicker returns the default wall-clock Timer.
func NewTicker() Timer {
	return &tickerTimer{}
}

func (t *tickerTimer) Start(interval time.Duration, tick func() bool) {
	t.Stop()

	t.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !tick() {
					return
				}
			}
		}
	}()
}

func (t *tickerTimer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
