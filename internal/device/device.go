// Package device drives the engine's callback from an audio clock: a real
// output through oto, or a ticker-paced software clock when there is no
// sound card.
package device

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// Callback fills out with the next frames. It is called from one goroutine
// at a time and must not block.
type Callback func(out []audio.Frame)

// Output runs a callback on its own clock until ctx is cancelled.
type Output interface {
	Name() string
	Run(ctx context.Context) error
}

// frameBytes is the size of one float32 stereo frame.
const frameBytes = 4 * audio.Channels

// putFloat32LE encodes frames as interleaved little-endian float32.
func putFloat32LE(p []byte, frames []audio.Frame) {
	for i, f := range frames {
		binary.LittleEndian.PutUint32(p[i*frameBytes:], math.Float32bits(f[0]))
		binary.LittleEndian.PutUint32(p[i*frameBytes+4:], math.Float32bits(f[1]))
	}
}
