package device

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// maxLag bounds how far the clock catches up after a stall; anything beyond
// it is skipped rather than rendered in a burst.
const maxLag = 500 * time.Millisecond

// Clock calls the callback in buffer-sized chunks at real-time rate, paced
// by a ticker against the wall clock.
type Clock struct {
	callback     Callback
	sampleRate   float64
	bufferFrames int
	frames       atomic.Int64
}

func NewClock(callback Callback, sampleRate float64, bufferFrames int) *Clock {
	return &Clock{
		callback:     callback,
		sampleRate:   sampleRate,
		bufferFrames: bufferFrames,
	}
}

func (c *Clock) Name() string { return "clock" }

// Frames returns the number of frames rendered so far.
func (c *Clock) Frames() int64 {
	return c.frames.Load()
}

// Run blocks until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	period := time.Duration(float64(c.bufferFrames) / c.sampleRate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	buf := make([]audio.Frame, c.bufferFrames)
	start := time.Now()
	var skipped int64
	maxLagFrames := int64(maxLag.Seconds() * c.sampleRate)

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			due := int64(now.Sub(start).Seconds()*c.sampleRate) - skipped
			rendered := c.frames.Load()
			if lag := due - rendered; lag > maxLagFrames {
				log.Printf("Clock fell %.0fms behind, skipping ahead", float64(lag)/c.sampleRate*1000)
				skipped += lag
				due = rendered
			}
			for rendered+int64(c.bufferFrames) <= due {
				c.callback(buf)
				rendered = c.frames.Add(int64(c.bufferFrames))
			}
		}
	}
}
