//go:build !fluidsynth

package synth

import "errors"

// FluidAvailable reports whether the binary was built with fluidsynth.
const FluidAvailable = false

var errNoFluid = errors.New("built without fluidsynth (go get github.com/sqweek/fluidsynth, then build with -tags fluidsynth)")

// NewFluidFactory returns a factory that always fails; callers fall back to
// NewAdditive.
func NewFluidFactory(soundfont string) SynthesizerFactory {
	return func(float64) (Synthesizer, error) {
		return nil, errNoFluid
	}
}
