package render

import (
	"math"
	"testing"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

const rate = 44100.0

func renderAll(r Renderable, start audio.FrameTime, n int) []audio.Frame {
	buf := make([]audio.Frame, n)
	r.Render(buf, start, rate)
	return buf
}

// --- Windows ---

func TestCollectionWindow(t *testing.T) {
	var empty Collection
	if empty.Start() != 1 || empty.End() != 0 {
		t.Errorf("empty window = [%v, %v), want [1, 0)", empty.Start(), empty.End())
	}

	c := Collection{
		SineWave{Time: 0.5, Duration: 1, Frequency: 440, Amplitude: 0.1},
		SineWave{Time: 0.25, Duration: 0.5, Frequency: 220, Amplitude: 0.1},
	}
	if c.Start() != 0.25 {
		t.Errorf("Start = %v, want 0.25", c.Start())
	}
	if c.End() != 1.5 {
		t.Errorf("End = %v, want 1.5", c.End())
	}
}

func TestSineWaveSilentOutsideWindow(t *testing.T) {
	w := SineWave{Time: 0.1, Duration: 0.1, Frequency: 440, Amplitude: 0.5}
	buf := renderAll(w, 0, int(rate*0.3))
	for i, f := range buf {
		tm := float64(i) / rate
		if (tm < w.Start() || tm > w.End()) && f != (audio.Frame{}) {
			t.Fatalf("frame %d at %.4fs = %v, want silence", i, tm, f)
		}
	}
}

func TestSineWaveEnvelope(t *testing.T) {
	w := SineWave{Time: 0, Duration: 2, Frequency: 1000, Amplitude: 1}
	// Envelope is capped at 50ms for long tones.
	for _, tm := range []float64{0.01, 0.02, 1.98, 1.99} {
		if v := math.Abs(w.Value(tm)); v > 0.5 {
			t.Errorf("Value(%v) = %v, want attenuated by envelope", tm, v)
		}
	}
	short := SineWave{Time: 0, Duration: 0.2, Frequency: 1000, Amplitude: 1}
	if v := short.Value(0); v != 0 {
		t.Errorf("Value at attack start = %v, want 0", v)
	}
}

// --- Additivity ---

func TestAdditivity(t *testing.T) {
	a := SineWave{Time: 0, Duration: 0.05, Frequency: 440, Amplitude: 0.3}
	b := SineWave{Time: 0.06, Duration: 0.05, Frequency: 660, Amplitude: 0.3}
	n := int(rate * 0.12)

	together := make([]audio.Frame, n)
	a.Render(together, 0, rate)
	b.Render(together, 0, rate)

	sa := renderAll(a, 0, n)
	sb := renderAll(b, 0, n)
	for i := range together {
		sum := sa[i]
		sum.Add(sb[i])
		if together[i] != sum {
			t.Fatalf("frame %d: together = %v, summed = %v", i, together[i], sum)
		}
	}
}

func TestDoubleAmplitude(t *testing.T) {
	w := SineWave{Time: 0, Duration: 0.1, Frequency: 440, Amplitude: 0.25}
	single := RenderedFrom(w, rate)
	double := RenderedFrom(Collection{w, w}, rate)
	if single.Len() != double.Len() {
		t.Fatalf("Len = %d, want %d", double.Len(), single.Len())
	}
	for i := range single.Frames {
		if want := single.Frames[i].Scale(2); double.Frames[i] != want {
			t.Fatalf("frame %d = %v, want %v", i, double.Frames[i], want)
		}
	}
}

// --- Sequence ---

func TestRenderedFromWindow(t *testing.T) {
	w := SineWave{Time: 0.5, Duration: 0.25, Frequency: 440, Amplitude: 0.1}
	seq := RenderedFrom(w, rate)
	if seq.StartFrame != 22050 {
		t.Errorf("StartFrame = %d, want 22050", seq.StartFrame)
	}
	if want := int(math.Floor(0.75*rate)) + 1 - 22050; seq.Len() != want {
		t.Errorf("Len = %d, want %d", seq.Len(), want)
	}
	if seq.Start() != 0.5 {
		t.Errorf("Start = %v, want 0.5", seq.Start())
	}
}

func TestResampleIdentity(t *testing.T) {
	w := SineWave{Time: 0.01, Duration: 0.05, Frequency: 523.25, Amplitude: 0.5}
	seq := RenderedFrom(w, rate)
	buf := renderAll(seq, seq.StartFrame, seq.Len())
	for i := range buf {
		if buf[i] != seq.Frames[i] {
			t.Fatalf("frame %d = %v, want %v", i, buf[i], seq.Frames[i])
		}
	}
}

func TestInterpolate(t *testing.T) {
	seq := &Sequence{StartFrame: 10, SampleRate: 10, Frames: []audio.Frame{{0, 1}, {1, 0}}}
	tests := []struct {
		t    float64
		want audio.Frame
	}{
		{1.0, audio.Frame{0, 1}},
		{1.05, audio.Frame{0.5, 0.5}},
		{1.1, audio.Frame{1, 0}},
		{0.5, audio.Frame{}},
		{5.0, audio.Frame{}},
	}
	for _, tt := range tests {
		got := seq.Interpolate(tt.t)
		for c := range got {
			if math.Abs(float64(got[c]-tt.want[c])) > 1e-5 {
				t.Errorf("Interpolate(%v) = %v, want %v", tt.t, got, tt.want)
				break
			}
		}
	}
}

func TestResampleToOtherRate(t *testing.T) {
	w := SineWave{Time: 0, Duration: 0.1, Frequency: 100, Amplitude: 0.5}
	seq := RenderedFrom(w, 48000)
	buf := renderAll(seq, 0, int(rate*0.1))
	for i := range buf {
		want := float32(w.Value(float64(i) / rate))
		if math.Abs(float64(buf[i][0]-want)) > 1e-3 {
			t.Fatalf("frame %d = %v, want ~%v", i, buf[i][0], want)
		}
	}
}

func TestPlacedShiftsSequence(t *testing.T) {
	w := SineWave{Time: 0, Duration: 0.02, Frequency: 440, Amplitude: 0.5}
	seq := RenderedFrom(w, rate)
	p := Placed{Seq: seq, At: 1}
	if p.Start() != 1 {
		t.Errorf("Start = %v, want 1", p.Start())
	}
	buf := renderAll(p, 44100, seq.Len())
	for i := range buf {
		if buf[i] != seq.Frames[i] {
			t.Fatalf("frame %d = %v, want %v", i, buf[i], seq.Frames[i])
		}
	}
}
