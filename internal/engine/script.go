package engine

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/satindergrewal/scoreplay/internal/synth"
)

var (
	ErrEmptyScript  = errors.New("script has no notes")
	ErrNonFinite    = errors.New("non-finite time")
	ErrNegativeTime = errors.New("negative time")
	ErrBadLoop      = errors.New("loop point must lie before the script end")
	ErrShortLoop    = errors.New("loop is too short")
)

// MinLoopLength is the shortest loop period, in seconds, a script may use.
// Every scheduling pass walks each lap it covers, so tiny periods would
// keep the preparation goroutine busy indefinitely.
const MinLoopLength = 0.05

// ScriptNote places a note descriptor at a script time in seconds.
type ScriptNote struct {
	Start float64
	Note  synth.Descriptor
}

// End returns the nominal end of the note.
func (n ScriptNote) End() float64 {
	return n.Start + n.Note.Duration()
}

// Script is what the engine plays. Once handed to the engine it is treated as
// immutable and replaced wholesale, never edited in place.
//
// When End is set nothing starting at or after it plays and notes still
// sounding there fade out. When LoopBackTo is also set, playback continues
// seamlessly from LoopBackTo each time it reaches End.
type Script struct {
	Notes      []ScriptNote
	End        *float64
	LoopBackTo *float64
}

// Validate reports the first reason the script cannot be played.
func (s Script) Validate() error {
	if len(s.Notes) == 0 {
		return ErrEmptyScript
	}
	for i, n := range s.Notes {
		if n.Note == nil {
			return fmt.Errorf("note %d: missing descriptor", i)
		}
		if err := checkTime(n.Start); err != nil {
			return fmt.Errorf("note %d start: %w", i, err)
		}
		if err := n.Note.Validate(); err != nil {
			return fmt.Errorf("note %d: %w", i, err)
		}
	}
	if s.End != nil {
		if err := checkTime(*s.End); err != nil {
			return fmt.Errorf("end: %w", err)
		}
	}
	if s.LoopBackTo != nil {
		if err := checkTime(*s.LoopBackTo); err != nil {
			return fmt.Errorf("loop: %w", err)
		}
		if s.End == nil || *s.LoopBackTo >= *s.End {
			return ErrBadLoop
		}
		if period := *s.End - *s.LoopBackTo; period < MinLoopLength {
			return fmt.Errorf("loop of %gs, minimum %gs: %w", period, MinLoopLength, ErrShortLoop)
		}
	}
	return nil
}

// Duration returns the time at which the script falls silent: End when set,
// otherwise the latest note end.
func (s Script) Duration() float64 {
	if s.End != nil {
		return *s.End
	}
	var end float64
	for _, n := range s.Notes {
		end = max(end, n.End())
	}
	return end
}

// sorted returns a copy with notes ordered by start time.
func (s Script) sorted() Script {
	out := s
	out.Notes = slices.Clone(s.Notes)
	slices.SortStableFunc(out.Notes, func(a, b ScriptNote) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	if s.End != nil {
		end := *s.End
		out.End = &end
	}
	if s.LoopBackTo != nil {
		loop := *s.LoopBackTo
		out.LoopBackTo = &loop
	}
	return out
}

func checkTime(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return ErrNonFinite
	}
	if t < 0 {
		return ErrNegativeTime
	}
	return nil
}
