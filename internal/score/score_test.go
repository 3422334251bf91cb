package score

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"

	"github.com/satindergrewal/scoreplay/internal/engine"
	"github.com/satindergrewal/scoreplay/internal/synth"
)

func sampleScript() engine.Script {
	end, loop := 2.0, 1.0
	return engine.Script{
		Notes: []engine.ScriptNote{
			{Start: 0, Note: synth.Tone{Frequency: 440, Amplitude: 0.25, Length: 0.5}},
			{Start: 0.5, Note: synth.MIDINote{Pitch: 60, Velocity: 100, Instrument: synth.Program(40), Length: 0.25}},
			{Start: 1.0, Note: synth.MIDINote{Pitch: 36, Velocity: 120, Instrument: synth.Percussion(), Length: 0.125}},
		},
		End:        &end,
		LoopBackTo: &loop,
	}
}

// --- JSON ---

func TestJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleScript()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := sampleScript()
	if len(got.Notes) != len(want.Notes) {
		t.Fatalf("notes = %d, want %d", len(got.Notes), len(want.Notes))
	}
	for i := range want.Notes {
		if got.Notes[i] != want.Notes[i] {
			t.Errorf("note %d = %+v, want %+v", i, got.Notes[i], want.Notes[i])
		}
	}
	if got.End == nil || *got.End != 2 || got.LoopBackTo == nil || *got.LoopBackTo != 1 {
		t.Errorf("end/loop = %v/%v, want 2/1", got.End, got.LoopBackTo)
	}
}

func TestDecodeRejectsAmbiguousNote(t *testing.T) {
	in := `{"notes":[{"start":0,"tone":{"frequency":440,"amplitude":0.1,"duration":1},"midi":{"pitch":60,"velocity":90,"duration":1}}]}`
	if _, err := Decode(strings.NewReader(in)); !errors.Is(err, ErrBadNote) {
		t.Errorf("Decode err = %v, want ErrBadNote", err)
	}
	if _, err := Decode(strings.NewReader(`{"notes":[{"start":0}]}`)); !errors.Is(err, ErrBadNote) {
		t.Errorf("Decode err = %v, want ErrBadNote for an empty note", err)
	}
}

func TestLoadValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(path, []byte(`{"notes":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, engine.ErrEmptyScript) {
		t.Errorf("Load(empty) err = %v, want ErrEmptyScript", err)
	}

	good := filepath.Join(dir, "song.json")
	if err := Save(good, sampleScript()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s, err := Load(good)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Notes) != 3 {
		t.Errorf("notes = %d, want 3", len(s.Notes))
	}
}

// --- Standard MIDI File ---

func TestSMFRoundTrip(t *testing.T) {
	s := engine.Script{Notes: []engine.ScriptNote{
		{Start: 0, Note: synth.MIDINote{Pitch: 60, Velocity: 100, Instrument: synth.Program(0), Length: 0.5}},
		{Start: 0.5, Note: synth.MIDINote{Pitch: 64, Velocity: 90, Instrument: synth.Program(0), Length: 0.25}},
		{Start: 0.75, Note: synth.MIDINote{Pitch: 67, Velocity: 80, Instrument: synth.Instrument{Channel: 1, Program: 33}, Length: 1.0}},
		{Start: 1.0, Note: synth.MIDINote{Pitch: 38, Velocity: 127, Instrument: synth.Percussion(), Length: 0.125}},
	}}

	var buf bytes.Buffer
	if err := WriteSMF(&buf, s); err != nil {
		t.Fatalf("WriteSMF: %v", err)
	}
	got, err := ReadSMF(&buf)
	if err != nil {
		t.Fatalf("ReadSMF: %v", err)
	}
	if len(got.Notes) != len(s.Notes) {
		t.Fatalf("notes = %d, want %d", len(got.Notes), len(s.Notes))
	}
	for i, want := range s.Notes {
		g := got.Notes[i]
		if math.Abs(g.Start-want.Start) > 1e-6 {
			t.Errorf("note %d start = %v, want %v", i, g.Start, want.Start)
		}
		gn, ok := g.Note.(synth.MIDINote)
		if !ok {
			t.Fatalf("note %d is %T, want MIDINote", i, g.Note)
		}
		wn := want.Note.(synth.MIDINote)
		if gn.Pitch != wn.Pitch || gn.Velocity != wn.Velocity || gn.Instrument != wn.Instrument {
			t.Errorf("note %d = %+v, want %+v", i, gn, wn)
		}
		if math.Abs(gn.Length-wn.Length) > 1e-6 {
			t.Errorf("note %d length = %v, want %v", i, gn.Length, wn.Length)
		}
	}
}

func TestSMFExportsTonesAsNearestKey(t *testing.T) {
	s := engine.Script{Notes: []engine.ScriptNote{
		{Start: 0.25, Note: synth.Tone{Frequency: 445, Amplitude: 0.5, Length: 0.5}},
	}}
	var buf bytes.Buffer
	if err := WriteSMF(&buf, s); err != nil {
		t.Fatalf("WriteSMF: %v", err)
	}
	got, err := ReadSMF(&buf)
	if err != nil {
		t.Fatalf("ReadSMF: %v", err)
	}
	if len(got.Notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(got.Notes))
	}
	n := got.Notes[0].Note.(synth.MIDINote)
	if n.Pitch != 69 || n.Velocity != 64 {
		t.Errorf("note = %+v, want pitch 69 velocity 64", n)
	}
}

// --- WAV ---

func TestWriteWAV(t *testing.T) {
	cache := synth.NewCache(synth.NewSynthBackend(synth.NewAdditive))
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWAV(f, sampleScript(), cache, 8000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		t.Fatal("not a valid wav file")
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if d.SampleRate != 8000 || d.NumChans != 2 {
		t.Errorf("format = %d Hz x %d, want 8000 x 2", d.SampleRate, d.NumChans)
	}
	if got := pcm.NumFrames(); got != 16000 {
		t.Errorf("frames = %d, want 16000 (cut at the script end)", got)
	}
	var nonzero bool
	for _, v := range pcm.Data {
		if v != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Error("mixdown is silent")
	}
}

func TestMixdownSumsNotes(t *testing.T) {
	cache := synth.NewCache(nil)
	one := engine.Script{Notes: []engine.ScriptNote{
		{Start: 0.1, Note: synth.Tone{Frequency: 300, Amplitude: 0.2, Length: 0.3}},
	}}
	two := engine.Script{Notes: append(one.Notes, one.Notes[0])}
	a := Mixdown(one, cache, 8000)
	b := Mixdown(two, cache, 8000)
	if len(a) != len(b) || len(a) == 0 {
		t.Fatalf("lengths %d and %d", len(a), len(b))
	}
	for i := range a {
		if b[i] != a[i].Scale(2) {
			t.Fatalf("frame %d = %v, want %v", i, b[i], a[i].Scale(2))
		}
	}
}
