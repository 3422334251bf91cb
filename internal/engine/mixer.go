package engine

import (
	"sync"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// ActiveNote is a rendered note scheduled on the output frame clock.
type ActiveNote struct {
	Frames          []audio.Frame
	FirstSampleTime audio.FrameTime

	HasFadeIn   bool
	FadeInStart audio.FrameTime
	HasFadeOut  bool
	FadeOutEnd  audio.FrameTime
}

// End returns the frame after the note's last sample.
func (n ActiveNote) End() audio.FrameTime {
	return n.FirstSampleTime + audio.FrameTime(len(n.Frames))
}

// AudibleFrom returns the first frame at which the note can be heard.
func (n ActiveNote) AudibleFrom() audio.FrameTime {
	if n.HasFadeIn {
		return max(n.FirstSampleTime, n.FadeInStart)
	}
	return n.FirstSampleTime
}

// Gain returns the fade envelope at frame f.
func (n ActiveNote) Gain(f audio.FrameTime, fadeIn, fadeOut audio.FrameTime) float32 {
	g := float32(1)
	if n.HasFadeIn {
		if f < n.FadeInStart {
			return 0
		}
		g *= audio.Ramp(f-n.FadeInStart, fadeIn)
	}
	if n.HasFadeOut {
		if f >= n.FadeOutEnd {
			return 0
		}
		g *= audio.Ramp(n.FadeOutEnd-f, fadeOut)
	}
	return g
}

// Mixer is the device callback side of the engine. Process must be called
// from a single goroutine; it never blocks and, once its note slice has
// grown to the working set, never allocates.
type Mixer struct {
	inbox   <-chan audioMessage
	clock   *clockMailbox
	fadeIn  audio.FrameTime
	fadeOut audio.FrameTime

	active []ActiveNote
	now    audio.FrameTime

	closeOnce sync.Once
	closed    chan struct{}
}

func newMixer(inbox <-chan audioMessage, clock *clockMailbox, cfg Config) *Mixer {
	return &Mixer{
		inbox:   inbox,
		clock:   clock,
		fadeIn:  audio.FramesFor(cfg.FadeIn, cfg.SampleRate),
		fadeOut: audio.FramesFor(cfg.FadeOut, cfg.SampleRate),
		active:  make([]ActiveNote, 0, cfg.MaxActive),
		closed:  make(chan struct{}),
	}
}

// Process fills out with the next len(out) frames.
func (m *Mixer) Process(out []audio.Frame) {
	clear(out)
	m.drain()

	start := m.now
	end := start + audio.FrameTime(len(out))
	for i := range m.active {
		m.mix(out, &m.active[i], start, end)
	}

	kept := m.active[:0]
	for _, n := range m.active {
		if n.End() > end && !(n.HasFadeOut && n.FadeOutEnd <= end) {
			kept = append(kept, n)
		}
	}
	clear(m.active[len(kept):])
	m.active = kept

	m.now = end
	m.clock.post(end)
}

func (m *Mixer) drain() {
	for {
		select {
		case msg, ok := <-m.inbox:
			if !ok {
				m.inbox = nil
				return
			}
			if msg.stop {
				m.stop()
			} else {
				m.active = append(m.active, msg.note)
			}
		default:
			return
		}
	}
}

// stop drops notes not yet audible and fades out the rest.
func (m *Mixer) stop() {
	fadeEnd := m.now + m.fadeOut
	kept := m.active[:0]
	for _, n := range m.active {
		if n.AudibleFrom() >= m.now {
			continue
		}
		if fadeEnd < n.End() && (!n.HasFadeOut || fadeEnd < n.FadeOutEnd) {
			n.HasFadeOut = true
			n.FadeOutEnd = fadeEnd
		}
		kept = append(kept, n)
	}
	clear(m.active[len(kept):])
	m.active = kept
}

func (m *Mixer) mix(out []audio.Frame, n *ActiveNote, start, end audio.FrameTime) {
	from := max(start, n.FirstSampleTime)
	to := min(end, n.End())
	if n.HasFadeIn {
		from = max(from, n.FadeInStart)
	}
	if n.HasFadeOut {
		to = min(to, n.FadeOutEnd)
	}
	for f := from; f < to; f++ {
		s := n.Frames[f-n.FirstSampleTime]
		if g := n.Gain(f, m.fadeIn, m.fadeOut); g != 1 {
			s = s.Scale(g)
		}
		out[f-start].Add(s)
	}
}

// Now returns the frame the next Process call starts at.
func (m *Mixer) Now() audio.FrameTime {
	return m.now
}

// Close tells the preparation goroutine the output has gone away.
func (m *Mixer) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}
