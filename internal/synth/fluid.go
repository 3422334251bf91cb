//go:build fluidsynth

// Building with -tags fluidsynth needs libfluidsynth and its headers, and
// github.com/sqweek/fluidsynth added to go.mod first:
//
//	go get github.com/sqweek/fluidsynth
//
// The default build leaves it out so the module stays cgo-free apart from
// the opus and oto backends.

package synth

import (
	"fmt"
	"os"

	"github.com/sqweek/fluidsynth"
)

// FluidAvailable reports whether the binary was built with fluidsynth.
const FluidAvailable = true

// Fluid is a SoundFont synthesizer backed by libfluidsynth.
type Fluid struct {
	synth *fluidsynth.Synth
	buf   []int16
}

// NewFluidFactory returns a factory creating fluidsynth instances that load
// the given SoundFont.
func NewFluidFactory(soundfont string) SynthesizerFactory {
	return func(sampleRate float64) (Synthesizer, error) {
		if _, err := os.Stat(soundfont); err != nil {
			return nil, fmt.Errorf("open soundfont: %w", err)
		}
		settings := make(map[string]interface{})
		settings["synth.sample-rate"] = sampleRate
		settings["synth.gain"] = 0.6
		s := fluidsynth.NewSynth(settings)
		s.SFLoad(soundfont, true)
		return &Fluid{synth: s}, nil
	}
}

func (f *Fluid) ProgramChange(channel, program uint8) {
	f.synth.ProgramChange(channel, program)
}

func (f *Fluid) NoteOn(channel, key, velocity uint8) {
	f.synth.NoteOn(channel, key, velocity)
}

func (f *Fluid) NoteOff(channel, key uint8) {
	f.synth.NoteOff(channel, key)
}

func (f *Fluid) Write(left, right []float32) {
	n := len(left) * 2
	if cap(f.buf) < n {
		f.buf = make([]int16, n)
	}
	buf := f.buf[:n]
	f.synth.WriteFrames_int16(buf)
	for i := range left {
		left[i] = float32(buf[2*i]) / 32768
		right[i] = float32(buf[2*i+1]) / 32768
	}
}
