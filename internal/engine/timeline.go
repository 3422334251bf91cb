package engine

import "math"

// timeline maps offsets since the schedule start (the stall point) to script
// time. Without a loop the mapping is a shift. With a loop the schedule is
// unrolled into laps: lap 0 covers [start, end), every later lap covers
// [loopStart, end).
type timeline struct {
	start     float64
	end       float64
	hasEnd    bool
	loopStart float64
	loops     bool
}

func newTimeline(s *Script, at float64) timeline {
	tl := timeline{start: at}
	if s == nil {
		return tl
	}
	if s.End != nil {
		tl.end, tl.hasEnd = *s.End, true
	}
	if s.LoopBackTo != nil && tl.hasEnd {
		tl.loopStart, tl.loops = *s.LoopBackTo, true
		tl.start = tl.wrap(at)
	}
	return tl
}

// wrap folds a script time at or past the end back into the loop.
func (tl timeline) wrap(t float64) float64 {
	if !tl.loops || t < tl.end {
		return t
	}
	return tl.loopStart + math.Mod(t-tl.end, tl.period())
}

func (tl timeline) period() float64 {
	return tl.end - tl.loopStart
}

// firstLapEnd is the offset at which the script end is first reached.
func (tl timeline) firstLapEnd() float64 {
	return tl.end - tl.start
}

// lap returns lap k's offset range and the script time its offsets start at.
func (tl timeline) lap(k int) (from, to, base float64) {
	from, base = tl.lapStart(k), tl.start
	if k > 0 {
		base = tl.loopStart
	}
	if !tl.hasEnd {
		return from, math.Inf(1), base
	}
	if !tl.loops {
		return from, tl.firstLapEnd(), base
	}
	return from, tl.lapStart(k + 1), base
}

func (tl timeline) lapStart(k int) float64 {
	if k == 0 {
		return 0
	}
	return tl.firstLapEnd() + float64(k-1)*tl.period()
}

// lapIndex returns the lap containing offset d.
func (tl timeline) lapIndex(d float64) int {
	if !tl.loops || d < tl.firstLapEnd() {
		return 0
	}
	k := 1 + int((d-tl.firstLapEnd())/tl.period())
	for k > 0 && tl.lapStart(k) > d {
		k--
	}
	return k
}

// scriptTime returns the script time playing at offset d.
func (tl timeline) scriptTime(d float64) float64 {
	if d < 0 {
		d = 0
	}
	switch {
	case !tl.hasEnd:
		return tl.start + d
	case !tl.loops:
		return min(tl.start+d, max(tl.end, tl.start))
	}
	k := tl.lapIndex(d)
	from, _, base := tl.lap(k)
	return base + d - from
}
