package render

import (
	"math"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// maxEnvelope caps the attack/release time of a SineWave.
const maxEnvelope = 0.05

// SineWave is a pure tone with a short linear attack and release so it does
// not click at its own boundaries.
type SineWave struct {
	Time      float64 // start, in seconds
	Duration  float64
	Frequency float64
	Amplitude float64
}

func (w SineWave) Start() float64 { return w.Time }
func (w SineWave) End() float64   { return w.Time + w.Duration }

// Value returns the tone's sample at time t.
func (w SineWave) Value(t float64) float64 {
	start, end := w.Start(), w.End()
	if t < start || t > end {
		return 0
	}
	env := math.Min(w.Duration*0.05, maxEnvelope)
	gain := 1.0
	switch {
	case env <= 0:
	case t < start+env:
		gain = (t - start) / env
	case t > end-env:
		gain = (end - t) / env
	}
	return w.Amplitude * gain * math.Sin(2*math.Pi*w.Frequency*t)
}

func (w SineWave) Render(buf []audio.Frame, start audio.FrameTime, sampleRate float64) {
	for i := range buf {
		t := float64(start+audio.FrameTime(i)) / sampleRate
		buf[i].Add(audio.Mono(float32(w.Value(t))))
	}
}
