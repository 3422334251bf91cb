//go:build !headless

package device

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// Oto plays the callback's output on the default sound device. oto pulls
// data through Read on its own goroutine, which is where the callback runs.
type Oto struct {
	ctx          *oto.Context
	player       *oto.Player
	callback     Callback
	bufferFrames int
	frames       []audio.Frame
}

// NewOto opens the default output at sampleRate. Only one oto context can
// exist per process.
func NewOto(callback Callback, sampleRate, bufferFrames int) (*Oto, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	o := &Oto{
		ctx:          ctx,
		callback:     callback,
		bufferFrames: bufferFrames,
		frames:       make([]audio.Frame, bufferFrames),
	}
	o.player = ctx.NewPlayer(o)
	o.player.SetBufferSize(bufferFrames * frameBytes * 2)
	return o, nil
}

func (o *Oto) Name() string { return "oto" }

// Read implements io.Reader for the oto player.
func (o *Oto) Read(p []byte) (int, error) {
	n := len(p) / frameBytes
	for done := 0; done < n; {
		k := min(n-done, o.bufferFrames)
		chunk := o.frames[:k]
		o.callback(chunk)
		putFloat32LE(p[done*frameBytes:], chunk)
		done += k
	}
	return n * frameBytes, nil
}

// Run starts playback and blocks until ctx is cancelled or the player fails.
func (o *Oto) Run(ctx context.Context) error {
	o.player.Play()
	defer o.player.Close()
	log.Printf("Audio device open: %d-frame buffers", o.bufferFrames)

	check := time.NewTicker(500 * time.Millisecond)
	defer check.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-check.C:
			if err := o.player.Err(); err != nil {
				return fmt.Errorf("audio device: %w", err)
			}
		}
	}
}
