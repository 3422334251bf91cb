package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms monitor frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per monitor frame
	FrameBytes    = FrameSamples * 2     // bytes per monitor frame (int16 = 2 bytes)

	BufferFrames = 256 // device callback period in frames
)

// FrameTime is an absolute frame index on the output device clock.
type FrameTime = int64

// Frame is one stereo sample instant.
type Frame [Channels]float32

// Add mixes o into f.
func (f *Frame) Add(o Frame) {
	f[0] += o[0]
	f[1] += o[1]
}

// Scale returns f multiplied by gain.
func (f Frame) Scale(gain float32) Frame {
	return Frame{f[0] * gain, f[1] * gain}
}

// Mono returns a frame with the same value on both channels.
func Mono(v float32) Frame {
	return Frame{v, v}
}

// Seconds converts a frame count at the given rate to a duration.
func Seconds(frames FrameTime, sampleRate float64) float64 {
	return float64(frames) / sampleRate
}
