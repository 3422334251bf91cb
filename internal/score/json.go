// Package score loads and saves scripts: the native JSON form, Standard
// MIDI Files, and offline WAV renders.
package score

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/satindergrewal/scoreplay/internal/engine"
	"github.com/satindergrewal/scoreplay/internal/synth"
)

var ErrBadNote = errors.New("note must have exactly one of tone or midi")

type fileScript struct {
	Notes      []fileNote `json:"notes"`
	End        *float64   `json:"end,omitempty"`
	LoopBackTo *float64   `json:"loop_back_to,omitempty"`
}

type fileNote struct {
	Start float64   `json:"start"`
	Tone  *fileTone `json:"tone,omitempty"`
	MIDI  *fileMIDI `json:"midi,omitempty"`
}

type fileTone struct {
	Frequency float64 `json:"frequency"`
	Amplitude float64 `json:"amplitude"`
	Duration  float64 `json:"duration"`
}

type fileMIDI struct {
	Pitch    uint8   `json:"pitch"`
	Velocity uint8   `json:"velocity"`
	Channel  uint8   `json:"channel"`
	Program  uint8   `json:"program"`
	Duration float64 `json:"duration"`
}

// Decode reads a JSON script. It does not validate timing; see
// engine.Script.Validate.
func Decode(r io.Reader) (engine.Script, error) {
	var f fileScript
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return engine.Script{}, fmt.Errorf("decode script: %w", err)
	}
	s := engine.Script{End: f.End, LoopBackTo: f.LoopBackTo}
	for i, n := range f.Notes {
		var d synth.Descriptor
		switch {
		case n.Tone != nil && n.MIDI == nil:
			d = synth.Tone{Frequency: n.Tone.Frequency, Amplitude: n.Tone.Amplitude, Length: n.Tone.Duration}
		case n.MIDI != nil && n.Tone == nil:
			d = synth.MIDINote{
				Pitch:      n.MIDI.Pitch,
				Velocity:   n.MIDI.Velocity,
				Instrument: synth.Instrument{Channel: n.MIDI.Channel, Program: n.MIDI.Program},
				Length:     n.MIDI.Duration,
			}
		default:
			return engine.Script{}, fmt.Errorf("decode script: note %d: %w", i, ErrBadNote)
		}
		s.Notes = append(s.Notes, engine.ScriptNote{Start: n.Start, Note: d})
	}
	return s, nil
}

// Encode writes s as indented JSON.
func Encode(w io.Writer, s engine.Script) error {
	f := fileScript{Notes: make([]fileNote, 0, len(s.Notes)), End: s.End, LoopBackTo: s.LoopBackTo}
	for i, n := range s.Notes {
		fn := fileNote{Start: n.Start}
		switch d := n.Note.(type) {
		case synth.Tone:
			fn.Tone = &fileTone{Frequency: d.Frequency, Amplitude: d.Amplitude, Duration: d.Length}
		case synth.MIDINote:
			fn.MIDI = &fileMIDI{
				Pitch:    d.Pitch,
				Velocity: d.Velocity,
				Channel:  d.Instrument.Channel,
				Program:  d.Instrument.Program,
				Duration: d.Length,
			}
		default:
			return fmt.Errorf("encode script: note %d: unsupported descriptor %T", i, n.Note)
		}
		f.Notes = append(f.Notes, fn)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Load reads a script from a .json or .mid file and validates it.
func Load(path string) (engine.Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.Script{}, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	var s engine.Script
	if isMIDI(path) {
		s, err = ReadSMF(f)
	} else {
		s, err = Decode(f)
	}
	if err != nil {
		return engine.Script{}, fmt.Errorf("load %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return engine.Script{}, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path, as a Standard MIDI File when the extension says so.
func Save(path string, s engine.Script) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create script: %w", err)
	}
	if isMIDI(path) {
		err = WriteSMF(f, s)
	} else {
		err = Encode(f, s)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func isMIDI(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi", ".smf":
		return true
	}
	return false
}
