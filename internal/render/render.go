// Package render defines the windowed, additively renderable audio entities
// that notes, rendered sequences and whole scripts share.
package render

import (
	"math"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// Windowed is anything active over a window of seconds.
type Windowed interface {
	Start() float64
	End() float64
}

// Renderable mixes itself into buf, whose first frame is the absolute frame
// start at sampleRate. Contributions are added, never overwritten, so
// overlapping entities superpose.
type Renderable interface {
	Windowed
	Render(buf []audio.Frame, start audio.FrameTime, sampleRate float64)
}

// Collection is a Renderable made of other renderables.
type Collection []Renderable

// Start returns the earliest child start, or 1 for an empty collection.
func (c Collection) Start() float64 {
	if len(c) == 0 {
		return 1
	}
	start := math.Inf(1)
	for _, r := range c {
		start = math.Min(start, r.Start())
	}
	return start
}

// End returns the latest child end, or 0 for an empty collection.
func (c Collection) End() float64 {
	if len(c) == 0 {
		return 0
	}
	end := math.Inf(-1)
	for _, r := range c {
		end = math.Max(end, r.End())
	}
	return end
}

// Render renders each child into the part of buf that overlaps its window.
func (c Collection) Render(buf []audio.Frame, start audio.FrameTime, sampleRate float64) {
	afterEnd := start + audio.FrameTime(len(buf))
	for _, r := range c {
		from, to := frameWindow(r, sampleRate)
		from = max(from, start)
		to = min(to, afterEnd)
		if to > from {
			r.Render(buf[from-start:to-start], from, sampleRate)
		}
	}
}

// frameWindow converts a window to the frames [ceil(start), floor(end)+1).
func frameWindow(w Windowed, sampleRate float64) (from, to audio.FrameTime) {
	from = audio.FrameTime(math.Ceil(w.Start() * sampleRate))
	to = audio.FrameTime(math.Floor(w.End()*sampleRate)) + 1
	return from, to
}
