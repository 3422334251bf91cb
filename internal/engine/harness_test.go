package engine

import (
	"testing"

	"github.com/satindergrewal/scoreplay/internal/audio"
	"github.com/satindergrewal/scoreplay/internal/render"
	"github.com/satindergrewal/scoreplay/internal/synth"
)

// sentNote records an AddNote and the output position when it was sent.
type sentNote struct {
	note   ActiveNote
	latest audio.FrameTime
}

// harness drives the preparation state machine and the mixer on one
// goroutine, playing the role of Run and of the device.
type harness struct {
	t     *testing.T
	cfg   Config
	p     preparer
	mixer *Mixer
	clock *clockMailbox
	queue chan audioMessage
	buf   []audio.Frame

	sent  []sentNote
	stops int
	steps int
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	cfg.BufferFrames = 64
	cfg.MaxActive = 64
	return cfg
}

func newHarness(t *testing.T, cfg Config, r Renderer) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		cfg:   cfg,
		clock: newClockMailbox(),
		queue: make(chan audioMessage, cfg.QueueSize),
		buf:   make([]audio.Frame, cfg.BufferFrames),
	}
	if r == nil {
		r = synth.NewCache(nil)
	}
	h.mixer = newMixer(h.queue, h.clock, cfg)
	h.p = newPreparer(cfg, r, h.record)
	return h
}

func (h *harness) record(msg audioMessage) bool {
	if msg.stop {
		h.stops++
	} else {
		h.sent = append(h.sent, sentNote{note: msg.note, latest: h.p.latest})
	}
	h.queue <- msg
	return true
}

// run steps the preparer until it waits for the clock.
func (h *harness) run() {
	h.t.Helper()
	for h.p.step() {
		h.steps++
		if h.steps > 1_000_000 {
			h.t.Fatal("preparer never went idle")
		}
	}
}

// advance plays one buffer without giving the preparer a chance to run.
func (h *harness) advance() []audio.Frame {
	h.mixer.Process(h.buf)
	h.p.observe(h.clock.latest())
	return h.buf
}

// tick plays one buffer and then lets the preparer catch up.
func (h *harness) tick() []audio.Frame {
	out := h.advance()
	h.run()
	return out
}

func (h *harness) ticks(n int) {
	for range n {
		h.tick()
	}
}

func (h *harness) replace(s Script) {
	h.p.replace(s)
	h.run()
}

func (h *harness) seek(t float64) {
	h.p.restart(&t)
	h.run()
}

func (h *harness) stop() {
	h.p.restart(nil)
	h.run()
}

func tone(start, length, freq float64) ScriptNote {
	return ScriptNote{Start: start, Note: synth.Tone{Frequency: freq, Amplitude: 0.2, Length: length}}
}

func ptr(v float64) *float64 { return &v }

// slowRenderer advances the output clock while rendering selected
// descriptors for the first time, as a slow synthesizer would.
type slowRenderer struct {
	h     *harness
	inner Renderer
	slow  map[synth.Descriptor]int // buffers of output played during the render
}

func (s *slowRenderer) Sequence(d synth.Descriptor, rate float64) (*render.Sequence, error) {
	if n, ok := s.slow[d]; ok {
		delete(s.slow, d)
		for range n {
			s.h.advance()
		}
	}
	return s.inner.Sequence(d, rate)
}
