package synth

import (
	"errors"
	"fmt"
	"sync"
)

// MaxSilenceExtensions bounds how many chunks are captured after note-off
// while waiting for the synthesizer to fall silent.
const MaxSilenceExtensions = 900

// silenceThreshold is the largest sample magnitude treated as silence.
const silenceThreshold = 1e-6

const (
	maxRenderFrames = 1 << 25 // about eleven minutes at 48 kHz
	maxSampleRate   = 768000
)

var (
	ErrNeverSilent = errors.New("synthesizer never went silent")
	ErrUnsupported = errors.New("unsupported descriptor")
	ErrRenderSize  = errors.New("render size out of range")
)

// Backend renders a descriptor to stereo samples. It must be deterministic
// per descriptor and sample rate.
type Backend interface {
	Render(d Descriptor, sampleRate float64) (left, right []float32, err error)
}

// Synthesizer is a streaming MIDI synthesizer. Write renders the next
// len(left) frames; left and right have equal length.
type Synthesizer interface {
	ProgramChange(channel, program uint8)
	NoteOn(channel, key, velocity uint8)
	NoteOff(channel, key uint8)
	Write(left, right []float32)
}

// resetter is implemented by synthesizers that can return to a known initial
// state before each note.
type resetter interface {
	Reset()
}

// SynthesizerFactory creates a synthesizer running at sampleRate.
type SynthesizerFactory func(sampleRate float64) (Synthesizer, error)

// SynthBackend renders MIDI notes by playing them on a synthesizer and
// capturing the output until it decays to silence. It owns one synthesizer
// per sample rate, created on first use.
type SynthBackend struct {
	factory SynthesizerFactory

	mu     sync.Mutex
	synths map[float64]Synthesizer
}

func NewSynthBackend(factory SynthesizerFactory) *SynthBackend {
	return &SynthBackend{
		factory: factory,
		synths:  make(map[float64]Synthesizer),
	}
}

func (b *SynthBackend) Render(d Descriptor, sampleRate float64) ([]float32, []float32, error) {
	n, ok := d.(MIDINote)
	if !ok {
		return nil, nil, fmt.Errorf("render %T: %w", d, ErrUnsupported)
	}
	if err := checkRenderSize(n.Length, sampleRate); err != nil {
		return nil, nil, fmt.Errorf("render %+v: %w", n, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.synthesizer(sampleRate)
	if err != nil {
		return nil, nil, err
	}
	if r, ok := s.(resetter); ok {
		r.Reset()
	}

	ch := n.Instrument.Channel
	percussion := n.Instrument.IsPercussion()
	if !percussion {
		s.ProgramChange(ch, n.Instrument.Program)
	}
	s.NoteOn(ch, n.Pitch, n.Velocity)

	held := int(n.Length * sampleRate)
	left := make([]float32, held)
	right := make([]float32, held)
	s.Write(left, right)
	if !percussion {
		s.NoteOff(ch, n.Pitch)
	}

	chunk := 1 + int(sampleRate/10)
	l := make([]float32, chunk)
	r := make([]float32, chunk)
	for range MaxSilenceExtensions {
		clear(l)
		clear(r)
		s.Write(l, r)
		left = append(left, l...)
		right = append(right, r...)
		if silent(l) && silent(r) {
			return left, right, nil
		}
	}
	return nil, nil, fmt.Errorf("render %+v: %w", n, ErrNeverSilent)
}

func (b *SynthBackend) synthesizer(sampleRate float64) (Synthesizer, error) {
	if s, ok := b.synths[sampleRate]; ok {
		return s, nil
	}
	s, err := b.factory(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer at %.0f Hz: %w", sampleRate, err)
	}
	b.synths[sampleRate] = s
	return s, nil
}

// checkRenderSize rejects renders whose buffers could not reasonably be
// allocated.
func checkRenderSize(seconds, sampleRate float64) error {
	if !(sampleRate > 0 && sampleRate <= maxSampleRate) {
		return fmt.Errorf("sample rate %v: %w", sampleRate, ErrRenderSize)
	}
	if !(seconds*sampleRate <= maxRenderFrames) {
		return fmt.Errorf("%gs at %.0f Hz: %w", seconds, sampleRate, ErrRenderSize)
	}
	return nil
}

func silent(samples []float32) bool {
	for _, v := range samples {
		if v > silenceThreshold || v < -silenceThreshold {
			return false
		}
	}
	return true
}
