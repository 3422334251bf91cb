package engine

import (
	"container/heap"
	"log"
	"math"
	"sort"

	"github.com/satindergrewal/scoreplay/internal/audio"
	"github.com/satindergrewal/scoreplay/internal/render"
)

// preparingNote is a note waiting to be rendered or handed to the mixer.
type preparingNote struct {
	note   ScriptNote
	offset float64 // seconds after the schedule start; negative for notes already sounding
	seq    *render.Sequence

	fadeAtLapEnd bool
	lapEnd       float64 // offset of the script end this note crosses

	order uint64
}

// noteQueue is a min-heap ordered by offset, then by insertion.
type noteQueue []preparingNote

func (q noteQueue) Len() int { return len(q) }
func (q noteQueue) Less(i, j int) bool {
	if q[i].offset != q[j].offset {
		return q[i].offset < q[j].offset
	}
	return q[i].order < q[j].order
}
func (q noteQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *noteQueue) Push(x any)   { *q = append(*q, x.(preparingNote)) }
func (q *noteQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = preparingNote{}
	*q = old[:len(old)-1]
	return n
}

// preparer is the scheduling state machine run by the preparation goroutine:
// Stopped or Stalled(at) → Priming → Playing(frameStart), with every script
// replacement or seek collapsing it back to Stalled.
type preparer struct {
	cfg      Config
	renderer Renderer
	send     func(audioMessage) bool

	bufferFrames audio.FrameTime
	leadFrames   audio.FrameTime
	handoff      audio.FrameTime // hand notes over no earlier than this before they sound
	fadeOut      audio.FrameTime

	script *Script
	state  State
	at     float64 // stall target, or where playback stopped
	tl     timeline

	latest      audio.FrameTime // PlaybackReachedTime
	frameStart  audio.FrameTime // actual playback start frame, valid while playing
	queuedUntil float64

	renderQ noteQueue
	playQ   noteQueue
	order   uint64

	broken bool // the mixer went away
}

func newPreparer(cfg Config, renderer Renderer, send func(audioMessage) bool) preparer {
	buf := audio.FrameTime(cfg.BufferFrames)
	lead := audio.FrameTime(cfg.LeadBuffers) * buf
	return preparer{
		cfg:          cfg,
		renderer:     renderer,
		send:         send,
		bufferFrames: buf,
		leadFrames:   lead,
		handoff:      max(audio.FramesFor(cfg.Step, cfg.SampleRate), 2*(lead+buf)),
		fadeOut:      audio.FramesFor(cfg.FadeOut, cfg.SampleRate),
	}
}

func (p *preparer) observe(latest audio.FrameTime) {
	p.latest = max(p.latest, latest)
}

func (p *preparer) replace(s Script) {
	at, resume := p.position()
	s = s.sorted()
	p.script = &s
	if !resume {
		p.tl = newTimeline(p.script, p.at)
		return
	}
	p.stall(&at)
}

func (p *preparer) restart(at *float64) {
	if at == nil {
		p.at, _ = p.position()
	}
	p.stall(at)
}

// position returns the script time currently playing, and whether the
// machine has a target at all.
func (p *preparer) position() (float64, bool) {
	switch p.state {
	case StateStopped:
		return p.at, false
	case StatePlaying:
		return p.tl.scriptTime(p.elapsed()), true
	}
	return p.tl.start, true
}

// elapsed returns seconds of schedule played so far.
func (p *preparer) elapsed() float64 {
	if p.state != StatePlaying {
		return 0
	}
	return float64(p.latest-p.frameStart) / p.cfg.SampleRate
}

func (p *preparer) status() Status {
	t, _ := p.position()
	return Status{
		State:      p.state,
		ScriptTime: t,
		Frame:      p.latest,
		Pending:    len(p.renderQ) + len(p.playQ),
	}
}

// stall discards all pending work, tells the mixer to fade out, and fixes a
// new target time. Notes sounding across the target are queued at negative
// offsets so they resume mid-note behind a fade-in.
func (p *preparer) stall(at *float64) {
	clear(p.renderQ)
	clear(p.playQ)
	p.renderQ = p.renderQ[:0]
	p.playQ = p.playQ[:0]
	p.frameStart = 0
	p.queuedUntil = 0
	if !p.send(audioMessage{stop: true}) {
		p.broken = true
	}

	if at == nil {
		p.state = StateStopped
		p.tl = newTimeline(p.script, p.at)
		return
	}

	p.tl = newTimeline(p.script, *at)
	p.at = p.tl.start
	p.state = StateStalled
	if p.script == nil {
		return
	}
	t := p.tl.start
	for _, n := range p.script.Notes {
		if n.Start >= t {
			break
		}
		if n.End() <= t || (p.tl.hasEnd && n.Start >= p.tl.end) {
			continue
		}
		p.push(n, n.Start-t, p.tl.firstLapEnd())
	}
}

// push queues a note for rendering. Notes running past the script end fade
// out at lapEnd, the offset where the current lap reaches it.
func (p *preparer) push(n ScriptNote, offset, lapEnd float64) {
	pn := preparingNote{note: n, offset: offset, order: p.order}
	p.order++
	if p.tl.hasEnd && n.End() > p.tl.end {
		pn.fadeAtLapEnd = true
		pn.lapEnd = lapEnd
	}
	heap.Push(&p.renderQ, pn)
}

// step does one unit of preparation work and reports whether more work is
// immediately available. When it returns false the goroutine waits for a
// message or a clock update.
func (p *preparer) step() bool {
	if p.state == StateStopped || p.script == nil || p.broken {
		return false
	}

	if p.renderQ.Len() > 0 {
		p.renderNext()
		return true
	}

	if p.state == StatePlaying {
		if p.handOff() {
			return true
		}
		if p.reachedEnd() {
			log.Printf("Playback reached the end at %.3fs", p.tl.end)
			p.at = p.tl.end
			p.stall(nil)
			return false
		}
	} else if p.queuedUntil >= p.cfg.PrimeAhead || p.exhausted() {
		p.frameStart = p.latest + p.leadFrames
		p.state = StatePlaying
		return true
	} else {
		p.state = StatePriming
	}

	if p.exhausted() || p.queuedUntil > p.elapsed()+p.cfg.Lookahead {
		return false
	}
	p.queueWindow()
	return true
}

func (p *preparer) renderNext() {
	pn := heap.Pop(&p.renderQ).(preparingNote)
	seq, err := p.renderer.Sequence(pn.note.Note, p.cfg.SampleRate)
	if err != nil || seq.Len() == 0 {
		return
	}
	pn.seq = seq
	heap.Push(&p.playQ, pn)
}

// handOff sends the soonest rendered note to the mixer once it is due within
// the hand-off horizon. It reports whether it did any work.
func (p *preparer) handOff() bool {
	if p.playQ.Len() == 0 {
		return false
	}
	pn := p.playQ[0]
	first := p.frameStart + p.frames(pn.offset) + pn.seq.StartFrame
	audible := max(first, p.frameStart)
	if audible-p.latest >= p.handoff {
		return false
	}
	heap.Pop(&p.playQ)

	if audible <= p.latest+p.bufferFrames {
		restart := pn.note.Start
		if pn.offset < 0 {
			restart = p.tl.start
		}
		log.Printf("Preparation fell behind at %.3fs, restarting there", restart)
		p.stall(&restart)
		return true
	}

	n := ActiveNote{Frames: pn.seq.Frames, FirstSampleTime: first}
	if first < p.frameStart {
		n.HasFadeIn = true
		n.FadeInStart = p.frameStart
	}
	if pn.fadeAtLapEnd {
		n.HasFadeOut = true
		n.FadeOutEnd = p.frameStart + p.frames(pn.lapEnd) + p.fadeOut
	}
	if !p.send(audioMessage{note: n}) {
		p.broken = true
	}
	return true
}

func (p *preparer) frames(seconds float64) audio.FrameTime {
	return audio.FrameTime(math.Round(seconds * p.cfg.SampleRate))
}

// exhausted reports whether nothing further can ever be queued.
func (p *preparer) exhausted() bool {
	return p.tl.hasEnd && !p.tl.loops && p.queuedUntil >= p.tl.firstLapEnd()
}

// reachedEnd reports whether the output has played past the script end and
// its fade-out.
func (p *preparer) reachedEnd() bool {
	if !p.tl.hasEnd || p.tl.loops || p.playQ.Len() > 0 {
		return false
	}
	end := p.frameStart + p.frames(max(0, p.tl.firstLapEnd())) + p.fadeOut
	return p.latest >= end
}

// queueWindow queues every note starting in the next step of the schedule.
func (p *preparer) queueWindow() {
	from, to := p.queuedUntil, p.queuedUntil+p.cfg.Step
	p.queuedUntil = to

	for k := p.tl.lapIndex(from); ; k++ {
		lapFrom, lapTo, base := p.tl.lap(k)
		if lapFrom >= to {
			return
		}
		lo, hi := max(from, lapFrom), min(to, lapTo)
		if hi > lo {
			p.queueRange(base+lo-lapFrom, base+hi-lapFrom, lapFrom-base, lapTo)
		}
		if !p.tl.loops {
			return
		}
	}
}

// queueRange queues notes starting in script times [lo, hi). shift converts
// a script time to an offset in the current lap.
func (p *preparer) queueRange(lo, hi, shift, lapEnd float64) {
	if p.tl.hasEnd {
		hi = min(hi, p.tl.end)
	}
	notes := p.script.Notes
	i := sort.Search(len(notes), func(i int) bool { return notes[i].Start >= lo })
	for ; i < len(notes) && notes[i].Start < hi; i++ {
		p.push(notes[i], notes[i].Start+shift, lapEnd)
	}
}
