// Package synth turns note descriptors into rendered sequences. Tones are
// computed directly; MIDI-style notes are captured from a Synthesizer until
// it falls silent. Results are memoized per (descriptor, sample rate) by Cache.
package synth

import (
	"errors"
	"fmt"
	"math"
)

// PercussionChannel is the General MIDI drum channel (channel 10, zero based).
const PercussionChannel = 9

// MaxNoteLength is the longest note, in seconds, a descriptor may ask for.
const MaxNoteLength = 600.0

var ErrInvalidDescriptor = errors.New("invalid note descriptor")

// Descriptor identifies the sound of a note independent of when it plays.
// Implementations are comparable values: equal descriptors render identical
// frames, which makes them usable as cache keys.
type Descriptor interface {
	// Duration is the nominal length in seconds. Rendered audio may run
	// past it while the sound decays.
	Duration() float64
	Validate() error
}

// Tone is a sine tone.
type Tone struct {
	Frequency float64
	Amplitude float64
	Length    float64
}

func (t Tone) Duration() float64 { return t.Length }

func (t Tone) Validate() error {
	if !finite(t.Frequency, t.Amplitude, t.Length) {
		return fmt.Errorf("tone %v: %w: non-finite field", t, ErrInvalidDescriptor)
	}
	if t.Length < 0 || t.Frequency < 0 {
		return fmt.Errorf("tone %v: %w: negative field", t, ErrInvalidDescriptor)
	}
	if t.Length > MaxNoteLength {
		return fmt.Errorf("tone %v: %w: longer than %gs", t, ErrInvalidDescriptor, MaxNoteLength)
	}
	return nil
}

// Instrument selects a channel and General MIDI program.
type Instrument struct {
	Channel uint8
	Program uint8
}

// Program returns a melodic instrument on channel 0.
func Program(gm uint8) Instrument {
	return Instrument{Program: gm}
}

// Percussion returns the drum kit.
func Percussion() Instrument {
	return Instrument{Channel: PercussionChannel}
}

func (i Instrument) IsPercussion() bool {
	return i.Channel == PercussionChannel
}

// MIDINote is a synthesized note.
type MIDINote struct {
	Pitch      uint8
	Velocity   uint8
	Instrument Instrument
	Length     float64
}

func (n MIDINote) Duration() float64 { return n.Length }

func (n MIDINote) Validate() error {
	switch {
	case !finite(n.Length):
		return fmt.Errorf("note %v: %w: non-finite length", n, ErrInvalidDescriptor)
	case n.Length < 0:
		return fmt.Errorf("note %v: %w: negative length", n, ErrInvalidDescriptor)
	case n.Length > MaxNoteLength:
		return fmt.Errorf("note %v: %w: longer than %gs", n, ErrInvalidDescriptor, MaxNoteLength)
	case n.Pitch > 127, n.Velocity > 127, n.Instrument.Program > 127:
		return fmt.Errorf("note %v: %w: value above 127", n, ErrInvalidDescriptor)
	case n.Instrument.Channel > 15:
		return fmt.Errorf("note %v: %w: channel above 15", n, ErrInvalidDescriptor)
	}
	return nil
}

// Frequency returns the equal-tempered frequency of a MIDI key (A4 = 69 = 440 Hz).
func Frequency(key uint8) float64 {
	return 440 * math.Pow(2, (float64(key)-69)/12)
}

// NearestKey returns the MIDI key closest to freq, clamped to [0,127].
func NearestKey(freq float64) uint8 {
	if freq <= 0 {
		return 0
	}
	k := math.Round(69 + 12*math.Log2(freq/440))
	return uint8(max(0, min(127, k)))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
