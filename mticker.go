package main

import (
	"sync"
	"time"
)

// mTicker is a single time.Ticker shared by every connection writer. Each
// tick is offered to all subscribers; a subscriber that is not ready to
// receive misses that tick, counted as ticker.dropped.
type mTicker struct {
	mux         sync.Mutex // Protects subscribers and stopped
	subscribers subscribers
	stopped     bool

	ticker *time.Ticker
	stopCh chan struct{}
}

type subscribers map[*subscriber]interface {
}

type subscriber struct {
	tick chan time.Time
}

// newMTicker creates and starts a ticker firing every interval.
func newMTicker(interval time.Duration) *mTicker {
	t := &mTicker{
		subscribers: make(subscribers),
		ticker:      time.NewTicker(interval),
		stopCh:      make(chan struct{}),
	}
	go t.run()
	return t
}

func newSubscriber() *subscriber {
	return &subscriber{
		tick: make(chan time.Time, 1),
	}
}

// subscribe returns a subscriber whose tick channel receives ticks until
// it is unsubscribed or the ticker stops. On a stopped ticker the channel
// is returned already closed.
func (t *mTicker) subscribe() *subscriber {
	t.mux.Lock()
	defer t.mux.Unlock()

	sub := newSubscriber()
	if t.stopped {
		close(sub.tick)
		return sub
	}
	t.subscribers[sub] = nil
	return sub
}

// unsubscribe closes the subscriber's channel. Calling it for a subscriber
// that is already gone is a no-op.
func (t *mTicker) unsubscribe(sub *subscriber) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if _, ok := t.subscribers[sub]; !ok {
		return
	}
	close(sub.tick)
	delete(t.subscribers, sub)
}

// stop halts the ticker and closes all subscribed channels.
func (t *mTicker) stop() {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	for sub := range t.subscribers {
		close(sub.tick)
		delete(t.subscribers, sub)
	}
	t.ticker.Stop()
	close(t.stopCh)
}

func (t *mTicker) len() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.subscribers)
}

func (t *mTicker) run() {
	for {
		select {
		case tick := <-t.ticker.C:
			t.mux.Lock()
			for sub := range t.subscribers {
				select {
				case sub.tick <- tick:
				default:
					incr("ticker.dropped", 1)
				}
			}
			t.mux.Unlock()
		case <-t.stopCh:
			return
		}
	}
}
