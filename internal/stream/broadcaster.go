// Package stream publishes what the output device plays to remote
// monitors: a chunked MP3 endpoint and a WebRTC/Opus endpoint, both fed
// from a real-time-safe tap on the device callback.
package stream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is about three seconds of monitor frames.
const subscriberBuffer = 150

// Subscriber is one remote monitor attached to a Broadcaster.
type Subscriber struct {
	name    string
	frames  chan MonitorFrame
	done    chan struct{}
	dropped atomic.Int64
	lagging atomic.Bool
}

// Frames delivers monitor frames in order. Frames the subscriber was too
// slow to take are skipped.
func (s *Subscriber) Frames() <-chan MonitorFrame { return s.frames }

// Done is closed when the subscriber is removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Dropped returns how many frames this subscriber missed.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Broadcaster hands every monitor frame from the tap to each subscriber
// without ever waiting on one.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}

	frames  atomic.Int64
	dropped atomic.Int64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscriber]struct{})}
}

// Subscribe attaches a monitor; name only appears in logs.
func (b *Broadcaster) Subscribe(name string) *Subscriber {
	s := &Subscriber{
		name:   name,
		frames: make(chan MonitorFrame, subscriberBuffer),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe detaches s. Calling it twice is harmless.
func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[s]
	delete(b.subs, s)
	b.mu.Unlock()
	if !ok {
		return
	}
	close(s.done)
	if n := s.Dropped(); n > 0 {
		log.Printf("Monitor %s left after missing %d frames", s.name, n)
	}
}

// MonitorStats is a snapshot for the status endpoint.
type MonitorStats struct {
	Subscribers int
	Frames      int64 // frames received from the tap
	Dropped     int64 // deliveries skipped across all subscribers
}

func (b *Broadcaster) Stats() MonitorStats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return MonitorStats{
		Subscribers: n,
		Frames:      b.frames.Load(),
		Dropped:     b.dropped.Load(),
	}
}

// Run distributes frames until ctx is cancelled or frames is closed.
func (b *Broadcaster) Run(ctx context.Context, frames <-chan MonitorFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			b.frames.Add(1)
			b.mu.RLock()
			for s := range b.subs {
				b.deliver(s, f)
			}
			b.mu.RUnlock()
		}
	}
}

// deliver logs once when a subscriber starts lagging and once when it
// catches up again.
func (b *Broadcaster) deliver(s *Subscriber, f MonitorFrame) {
	select {
	case s.frames <- f:
		if s.lagging.CompareAndSwap(true, false) {
			log.Printf("Monitor %s caught up", s.name)
		}
	default:
		s.dropped.Add(1)
		b.dropped.Add(1)
		if s.lagging.CompareAndSwap(false, true) {
			log.Printf("Monitor %s is falling behind, skipping frames", s.name)
		}
	}
}
