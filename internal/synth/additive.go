package synth

import (
	"math"
	"math/rand/v2"
)

const (
	maxVoices   = 64
	attackTime  = 0.005
	outputGain  = 0.25
	voiceFloor  = 1e-8
	noiseSeed   = 0x5c0e
	percussionQ = 0.3 // share of tone in a drum hit, the rest is noise
)

// timbre describes a General MIDI program family.
type timbre struct {
	harmonics []float64
	decay     float64 // time constant of the fall from peak while held; 0 = sustain
	sustain   float64 // level the decay settles at
	release   float64 // time constant after note-off
}

// timbres is indexed by program/8, the General MIDI family.
var timbres = [16]timbre{
	{[]float64{1, 0.5, 0.3, 0.15, 0.08, 0.04}, 1.2, 0, 0.08},     // piano
	{[]float64{1, 0, 0.4, 0, 0.2}, 0.6, 0, 0.3},                  // chromatic percussion
	{[]float64{1, 0.8, 0.6, 0, 0.4, 0, 0.2}, 0, 1, 0.03},         // organ
	{[]float64{1, 0.4, 0.25, 0.1, 0.05}, 0.9, 0, 0.1},            // guitar
	{[]float64{1, 0.6, 0.2, 0.1}, 1.5, 0.2, 0.05},                // bass
	{[]float64{1, 0.5, 0.33, 0.25, 0.2, 0.16, 0.14}, 0, 1, 0.15}, // strings
	{[]float64{1, 0.5, 0.33, 0.25, 0.2}, 0, 1, 0.2},              // ensemble
	{[]float64{1, 0.7, 0.5, 0.4, 0.3, 0.2}, 0, 1, 0.06},          // brass
	{[]float64{1, 0, 0.5, 0, 0.3, 0, 0.15}, 0, 1, 0.06},          // reed
	{[]float64{1, 0.1, 0.05}, 0, 1, 0.05},                        // pipe
	{[]float64{1, 0.5, 0.33, 0.25, 0.2, 0.16}, 0, 0.8, 0.05},     // synth lead
	{[]float64{1, 0.3, 0.1}, 0, 1, 0.4},                          // synth pad
	{[]float64{1, 0.2, 0.4, 0.1}, 0.8, 0.3, 0.3},                 // synth effects
	{[]float64{1, 0.3, 0.15, 0.1}, 1.0, 0, 0.1},                  // ethnic
	{[]float64{1, 0.2}, 0.2, 0, 0.05},                            // percussive
	{[]float64{1, 0.7, 0.4}, 0.5, 0.1, 0.2},                      // sound effects
}

// drum describes one percussion key.
type drum struct {
	freq  float64 // tone frequency at the hit
	sweep float64 // frequency multiplier reached after one decay time constant
	decay float64
	noise float64 // 0 = pure tone, 1 = pure noise
}

func drumFor(key uint8) drum {
	switch key {
	case 35, 36: // kick
		return drum{freq: 150, sweep: 0.35, decay: 0.15, noise: 0.05}
	case 38, 40: // snare
		return drum{freq: 190, sweep: 0.9, decay: 0.1, noise: 0.7}
	case 42, 44: // closed hi-hat
		return drum{freq: 0, decay: 0.035, noise: 1}
	case 46: // open hi-hat
		return drum{freq: 0, decay: 0.25, noise: 1}
	case 41, 43, 45, 47, 48, 50: // toms
		return drum{freq: 80 + 12*float64(key-41), sweep: 0.7, decay: 0.2, noise: 0.15}
	case 49, 51, 52, 55, 57, 59: // cymbals
		return drum{freq: 0, decay: 0.6, noise: 1}
	}
	return drum{freq: Frequency(key), sweep: 1, decay: 0.12, noise: percussionQ}
}

type voice struct {
	channel, key uint8
	freq         float64
	amp          float64
	timbre       timbre
	drum         *drum
	n            int // frames rendered so far
	level        float64
	released     bool
	prevNoise    float64
}

// Additive is a small deterministic additive synthesizer used when no
// SoundFont synthesizer is available. Channel 9 plays synthetic drums.
type Additive struct {
	sampleRate float64
	programs   [16]uint8
	voices     []voice
	noise      *rand.Rand
}

// NewAdditive returns an Additive synthesizer; it satisfies SynthesizerFactory.
func NewAdditive(sampleRate float64) (Synthesizer, error) {
	a := &Additive{sampleRate: sampleRate}
	a.Reset()
	return a, nil
}

// Reset silences every voice, restores default programs and reseeds the
// noise source so the next note renders identically every time.
func (a *Additive) Reset() {
	a.voices = a.voices[:0]
	a.programs = [16]uint8{}
	a.noise = rand.New(rand.NewPCG(noiseSeed, noiseSeed))
}

func (a *Additive) ProgramChange(channel, program uint8) {
	a.programs[channel&15] = program & 127
}

func (a *Additive) NoteOn(channel, key, velocity uint8) {
	if velocity == 0 {
		a.NoteOff(channel, key)
		return
	}
	v := voice{
		channel: channel,
		key:     key,
		freq:    Frequency(key),
		amp:     math.Pow(float64(velocity)/127, 2),
		timbre:  timbres[a.programs[channel&15]/8],
	}
	if channel == PercussionChannel {
		d := drumFor(key)
		v.drum = &d
	}
	if len(a.voices) >= maxVoices {
		a.voices = append(a.voices[:0], a.voices[1:]...)
	}
	a.voices = append(a.voices, v)
}

func (a *Additive) NoteOff(channel, key uint8) {
	for i := range a.voices {
		v := &a.voices[i]
		if v.channel == channel && v.key == key && !v.released {
			v.released = true
		}
	}
}

func (a *Additive) Write(left, right []float32) {
	for i := range left {
		var s float64
		for j := range a.voices {
			s += a.sample(&a.voices[j])
		}
		left[i] = float32(s * outputGain)
		right[i] = left[i]
	}
	kept := a.voices[:0]
	for _, v := range a.voices {
		if !v.done() {
			kept = append(kept, v)
		}
	}
	a.voices = kept
}

func (v *voice) done() bool {
	return (v.released || v.drum != nil) && v.n > 0 && v.level < voiceFloor
}

func (a *Additive) sample(v *voice) float64 {
	t := float64(v.n) / a.sampleRate
	v.n++
	if v.drum != nil {
		return a.drumSample(v, t)
	}

	tb := v.timbre
	switch {
	case v.released:
		v.level *= math.Exp(-1 / (tb.release * a.sampleRate))
	case t < attackTime:
		v.level = t / attackTime
	case tb.decay > 0:
		v.level = tb.sustain + (1-tb.sustain)*math.Exp(-(t-attackTime)/tb.decay)
	default:
		v.level = tb.sustain
	}
	if v.level < voiceFloor {
		v.level = 0
		return 0
	}

	var s float64
	for h, amp := range tb.harmonics {
		f := v.freq * float64(h+1)
		if amp == 0 || f >= a.sampleRate/2 {
			continue
		}
		s += amp * math.Sin(2*math.Pi*f*t)
	}
	return s * v.amp * v.level
}

func (a *Additive) drumSample(v *voice, t float64) float64 {
	d := v.drum
	v.level = math.Exp(-t / d.decay)
	if v.level < voiceFloor {
		v.level = 0
		return 0
	}
	var tone float64
	if d.freq > 0 {
		// Exponential pitch sweep; phase is the integral of the frequency.
		k := math.Log(d.sweep) / d.decay
		phase := d.freq * t
		if k != 0 {
			phase = d.freq * (math.Exp(k*t) - 1) / k
		}
		tone = math.Sin(2 * math.Pi * phase)
	}
	n := a.noise.Float64()*2 - 1
	if d.freq == 0 {
		// First difference brightens cymbal noise.
		n, v.prevNoise = (n-v.prevNoise)/2, n
	}
	return ((1-d.noise)*tone + d.noise*n) * v.amp * v.level
}
