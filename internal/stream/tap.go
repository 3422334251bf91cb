package stream

import (
	"context"
	"sync/atomic"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// tapQueue is the number of device buffers the tap can hold before it
// starts discarding.
const tapQueue = 64

// MonitorFrame is 20ms of interleaved 16-bit stereo at audio.SampleRate.
type MonitorFrame []int16

type tapChunk struct {
	n      int
	frames [audio.BufferFrames]audio.Frame
}

// Tap copies the device output off the audio thread and regroups it into
// 20ms int16 monitor frames.
type Tap struct {
	chunks  chan tapChunk
	out     chan MonitorFrame
	dropped atomic.Int64
}

func NewTap() *Tap {
	return &Tap{
		chunks: make(chan tapChunk, tapQueue),
		out:    make(chan MonitorFrame, 16),
	}
}

// Write is safe to call from the device callback: it never blocks or
// allocates, and drops audio when the tap is behind.
func (t *Tap) Write(frames []audio.Frame) {
	for len(frames) > 0 {
		var c tapChunk
		c.n = copy(c.frames[:], frames)
		frames = frames[c.n:]
		select {
		case t.chunks <- c:
		default:
			t.dropped.Add(1)
		}
	}
}

// Frames is closed when Run returns.
func (t *Tap) Frames() <-chan MonitorFrame {
	return t.out
}

// Dropped returns the number of device buffers the tap discarded.
func (t *Tap) Dropped() int64 {
	return t.dropped.Load()
}

// Run assembles monitor frames until ctx is cancelled.
func (t *Tap) Run(ctx context.Context) {
	defer close(t.out)
	pending := make(MonitorFrame, 0, audio.FrameSamples)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-t.chunks:
			src := c.frames[:c.n]
			for len(src) > 0 {
				room := (audio.FrameSamples - len(pending)) / audio.Channels
				k := min(room, len(src))
				pending = audio.Interleave(pending, src[:k])
				src = src[k:]
				if len(pending) < audio.FrameSamples {
					continue
				}
				select {
				case t.out <- pending:
				case <-ctx.Done():
					return
				}
				pending = make(MonitorFrame, 0, audio.FrameSamples)
			}
		}
	}
}
