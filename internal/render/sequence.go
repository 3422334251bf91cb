package render

import (
	"math"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// Sequence is a buffer of rendered frames positioned on a frame grid.
// Its frames are never modified after construction, so one Sequence can be
// shared by any number of concurrent playbacks.
type Sequence struct {
	StartFrame audio.FrameTime
	SampleRate float64
	Frames     []audio.Frame
}

// RenderedFrom renders r into a new Sequence at sampleRate.
func RenderedFrom(r Renderable, sampleRate float64) *Sequence {
	from, to := frameWindow(r, sampleRate)
	length := max(0, to-from)
	frames := make([]audio.Frame, length)
	r.Render(frames, from, sampleRate)
	return &Sequence{StartFrame: from, SampleRate: sampleRate, Frames: frames}
}

// Len returns the number of frames.
func (s *Sequence) Len() int {
	return len(s.Frames)
}

func (s *Sequence) Start() float64 {
	return float64(s.StartFrame) / s.SampleRate
}

func (s *Sequence) End() float64 {
	return float64(s.StartFrame+audio.FrameTime(len(s.Frames))-1) / s.SampleRate
}

// Render adds the sequence into buf. At the sequence's own rate frames are
// copied exactly; otherwise they are linearly resampled.
func (s *Sequence) Render(buf []audio.Frame, start audio.FrameTime, sampleRate float64) {
	if sampleRate == s.SampleRate {
		for i := range buf {
			buf[i].Add(s.at(start + audio.FrameTime(i) - s.StartFrame))
		}
		return
	}
	for i := range buf {
		t := float64(start+audio.FrameTime(i)) / sampleRate
		buf[i].Add(s.Interpolate(t))
	}
}

// Interpolate returns the frame at time t (seconds) by linear interpolation
// between the two nearest frames. Outside the sequence it returns silence.
func (s *Sequence) Interpolate(t float64) audio.Frame {
	rel := t*s.SampleRate - float64(s.StartFrame)
	prev := math.Floor(rel)
	factor := float32(rel - prev)
	i := audio.FrameTime(prev)
	a := s.at(i).Scale(1 - factor)
	a.Add(s.at(i + 1).Scale(factor))
	return a
}

func (s *Sequence) at(i audio.FrameTime) audio.Frame {
	if i < 0 || i >= audio.FrameTime(len(s.Frames)) {
		return audio.Frame{}
	}
	return s.Frames[i]
}

// Placed is a Sequence shifted to begin At seconds later.
type Placed struct {
	Seq *Sequence
	At  float64
}

func (p Placed) Start() float64 { return p.At + p.Seq.Start() }
func (p Placed) End() float64   { return p.At + p.Seq.End() }

func (p Placed) Render(buf []audio.Frame, start audio.FrameTime, sampleRate float64) {
	if sampleRate == p.Seq.SampleRate {
		shift := audio.FrameTime(math.Round(p.At * sampleRate))
		p.Seq.Render(buf, start-shift, sampleRate)
		return
	}
	for i := range buf {
		t := float64(start+audio.FrameTime(i))/sampleRate - p.At
		buf[i].Add(p.Seq.Interpolate(t))
	}
}
