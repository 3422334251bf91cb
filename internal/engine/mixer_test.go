package engine

import (
	"testing"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

func constantNote(first audio.FrameTime, n int) ActiveNote {
	frames := make([]audio.Frame, n)
	for i := range frames {
		frames[i] = audio.Mono(1)
	}
	return ActiveNote{Frames: frames, FirstSampleTime: first}
}

func newTestMixer(cfg Config) (*Mixer, chan audioMessage) {
	ch := make(chan audioMessage, 16)
	return newMixer(ch, newClockMailbox(), cfg), ch
}

func TestGainBounds(t *testing.T) {
	const fadeIn, fadeOut = 80, 2000
	n := constantNote(0, 10000)
	n.HasFadeIn, n.FadeInStart = true, 100
	n.HasFadeOut, n.FadeOutEnd = true, 5000

	prevIn := float32(0)
	for f := audio.FrameTime(0); f <= 100+fadeIn+10; f++ {
		g := n.Gain(f, fadeIn, fadeOut)
		if g < 0 || g > 1 {
			t.Fatalf("Gain(%d) = %v out of [0,1]", f, g)
		}
		if g < prevIn {
			t.Fatalf("fade-in not monotonic at %d: %v < %v", f, g, prevIn)
		}
		prevIn = g
	}
	if g := n.Gain(100, fadeIn, fadeOut); g != 0 {
		t.Errorf("Gain at fade-in start = %v, want 0", g)
	}
	if g := n.Gain(100+fadeIn, fadeIn, fadeOut); g != 1 {
		t.Errorf("Gain after fade-in = %v, want 1", g)
	}

	prevOut := float32(1)
	for f := audio.FrameTime(5000 - fadeOut - 10); f <= 5010; f++ {
		g := n.Gain(f, fadeIn, fadeOut)
		if g < 0 || g > 1 {
			t.Fatalf("Gain(%d) = %v out of [0,1]", f, g)
		}
		if g > prevOut {
			t.Fatalf("fade-out not monotonic at %d: %v > %v", f, g, prevOut)
		}
		prevOut = g
	}
	if g := n.Gain(5000, fadeIn, fadeOut); g != 0 {
		t.Errorf("Gain at fade-out end = %v, want 0", g)
	}
}

func TestMixerPlacesNoteSampleAccurately(t *testing.T) {
	m, ch := newTestMixer(testConfig())
	ch <- audioMessage{note: constantNote(70, 10)}

	out := make([]audio.Frame, 64)
	m.Process(out)
	for _, f := range out {
		if f != (audio.Frame{}) {
			t.Fatal("first buffer not silent")
		}
	}
	m.Process(out)
	for i, f := range out {
		want := audio.Frame{}
		if i >= 6 && i < 16 {
			want = audio.Mono(1)
		}
		if f != want {
			t.Errorf("frame %d = %v, want %v", 64+i, f, want)
		}
	}
	if len(m.active) != 0 {
		t.Errorf("active = %d, want the finished note retired", len(m.active))
	}
	if got := m.clock.latest(); got != 128 {
		t.Errorf("reported position = %d, want 128", got)
	}
}

func TestMixerStopDropsPendingNotes(t *testing.T) {
	cfg := testConfig()
	m, ch := newTestMixer(cfg)
	out := make([]audio.Frame, 64)

	ch <- audioMessage{note: constantNote(0, 100000)}
	ch <- audioMessage{note: constantNote(1000, 100)}
	m.Process(out)

	ch <- audioMessage{stop: true}
	m.Process(out)
	if len(m.active) != 1 {
		t.Fatalf("active = %d, want only the sounding note", len(m.active))
	}
	n := m.active[0]
	if want := 64 + m.fadeOut; !n.HasFadeOut || n.FadeOutEnd != want {
		t.Errorf("fade-out = %v at %d, want at %d", n.HasFadeOut, n.FadeOutEnd, want)
	}

	// A second stop cannot extend the fade.
	ch <- audioMessage{stop: true}
	m.Process(out)
	if got := m.active[0].FadeOutEnd; got != 64+m.fadeOut {
		t.Errorf("fade-out end moved to %d", got)
	}
}

func TestMixerSurvivesClosedInbox(t *testing.T) {
	m, ch := newTestMixer(testConfig())
	close(ch)
	out := make([]audio.Frame, 64)
	m.Process(out)
	m.Process(out)
	if m.Now() != 128 {
		t.Errorf("Now = %d, want 128", m.Now())
	}
}
