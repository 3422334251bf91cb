package score

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/satindergrewal/scoreplay/internal/engine"
	"github.com/satindergrewal/scoreplay/internal/synth"
)

const (
	exportBPM       = 120
	ticksPerQuarter = 960
)

// ReadSMF imports every note of a Standard MIDI File, honouring its tempo
// map. Program changes select the instrument of later notes on a channel.
func ReadSMF(r io.Reader) (engine.Script, error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return engine.Script{}, fmt.Errorf("read midi file: %w", err)
	}

	type held struct {
		tick    int64
		vel     uint8
		program uint8
	}
	seconds := func(tick int64) float64 {
		return float64(sm.TimeAt(tick)) / 1e6
	}

	var s engine.Script
	for _, track := range sm.Tracks {
		var abs int64
		var programs [16]uint8
		pending := make(map[[2]uint8][]held)
		for _, ev := range track {
			abs += int64(ev.Delta)
			msg := midi.Message(ev.Message)
			var ch, key, vel, prog uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				k := [2]uint8{ch, key}
				pending[k] = append(pending[k], held{abs, vel, programs[ch]})
			case msg.GetNoteEnd(&ch, &key):
				k := [2]uint8{ch, key}
				if len(pending[k]) == 0 {
					continue
				}
				h := pending[k][0]
				pending[k] = pending[k][1:]
				start := seconds(h.tick)
				s.Notes = append(s.Notes, engine.ScriptNote{
					Start: start,
					Note: synth.MIDINote{
						Pitch:      key,
						Velocity:   h.vel,
						Instrument: synth.Instrument{Channel: ch, Program: h.program},
						Length:     seconds(abs) - start,
					},
				})
			case msg.GetProgramChange(&ch, &prog):
				programs[ch] = prog
			}
		}
	}
	slices.SortStableFunc(s.Notes, func(a, b engine.ScriptNote) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return s, nil
}

type smfEvent struct {
	tick  uint32
	kind  int // note-offs sort before program changes before note-ons
	order int
	msg   midi.Message
}

const (
	kindOff = iota
	kindProgram
	kindOn
)

// WriteSMF exports s as a format 1 Standard MIDI File at a fixed 120 BPM,
// one track per channel. Tones become the nearest equal-tempered key on
// channel 0, with velocity taken from their amplitude.
func WriteSMF(w io.Writer, s engine.Script) error {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(exportBPM))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	channels := make(map[uint8][]smfEvent)
	for i, n := range s.Notes {
		var ch, key, vel, prog uint8
		switch d := n.Note.(type) {
		case synth.MIDINote:
			ch, key, vel, prog = d.Instrument.Channel, d.Pitch, d.Velocity, d.Instrument.Program
		case synth.Tone:
			key = synth.NearestKey(d.Frequency)
			vel = uint8(max(1, min(127, math.Round(d.Amplitude*127))))
		default:
			return fmt.Errorf("export note %d: unsupported descriptor %T", i, n.Note)
		}
		on := ticks(n.Start)
		off := max(ticks(n.End()), on+1)
		evs := channels[ch]
		if ch != synth.PercussionChannel {
			evs = append(evs, smfEvent{on, kindProgram, i, midi.ProgramChange(ch, prog)})
		}
		evs = append(evs,
			smfEvent{on, kindOn, i, midi.NoteOn(ch, key, vel)},
			smfEvent{off, kindOff, i, midi.NoteOff(ch, key)},
		)
		channels[ch] = evs
	}

	for _, ch := range slices.Sorted(maps.Keys(channels)) {
		evs := channels[ch]
		slices.SortFunc(evs, func(a, b smfEvent) int {
			return cmp.Or(cmp.Compare(a.tick, b.tick), cmp.Compare(a.kind, b.kind), cmp.Compare(a.order, b.order))
		})
		var track smf.Track
		var last uint32
		program := -1
		for _, ev := range evs {
			if ev.kind == kindProgram {
				var c, p uint8
				ev.msg.GetProgramChange(&c, &p)
				if int(p) == program {
					continue
				}
				program = int(p)
			}
			track.Add(ev.tick-last, ev.msg)
			last = ev.tick
		}
		track.Close(0)
		if err := sm.Add(track); err != nil {
			return fmt.Errorf("add track for channel %d: %w", ch, err)
		}
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write midi file: %w", err)
	}
	return nil
}

func ticks(seconds float64) uint32 {
	return uint32(math.Round(seconds * ticksPerQuarter * exportBPM / 60))
}
