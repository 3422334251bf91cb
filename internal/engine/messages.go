package engine

import (
	"sync/atomic"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// message is a control message for the preparation goroutine.
type message interface {
	isMessage()
}

// ReplaceScript swaps in a new script, resuming at the script time that is
// currently playing.
type ReplaceScript struct {
	Script Script
}

// RestartPlaybackAt seeks to At, or stops when At is nil.
type RestartPlaybackAt struct {
	At *float64
}

func (ReplaceScript) isMessage()     {}
func (RestartPlaybackAt) isMessage() {}

// audioMessage is sent from the preparation goroutine to the mixer. It is a
// plain value so sending it never allocates.
type audioMessage struct {
	stop bool
	note ActiveNote
}

// clockMailbox carries PlaybackReachedTime from the mixer to the preparation
// goroutine. Only the latest frame matters, so the mixer overwrites it and
// raises a one-slot wake signal; neither side can block or allocate.
type clockMailbox struct {
	frame atomic.Int64
	wake  chan struct{}
}

func newClockMailbox() *clockMailbox {
	return &clockMailbox{wake: make(chan struct{}, 1)}
}

func (c *clockMailbox) post(f audio.FrameTime) {
	c.frame.Store(f)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *clockMailbox) latest() audio.FrameTime {
	return c.frame.Load()
}
