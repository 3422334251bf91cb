// Package engine schedules a Script onto a real-time audio output.
//
// Two goroutines cooperate. The preparation goroutine (Run) owns the script
// and renders notes ahead of need; the device callback (Process) mixes the
// prepared notes. They share no state beyond the channels between them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/satindergrewal/scoreplay/internal/audio"
	"github.com/satindergrewal/scoreplay/internal/render"
	"github.com/satindergrewal/scoreplay/internal/synth"
)

var (
	ErrOutputClosed = errors.New("audio output closed")
	ErrNotRunning   = errors.New("engine not running")
)

// Renderer supplies rendered notes; *synth.Cache implements it.
type Renderer interface {
	Sequence(d synth.Descriptor, sampleRate float64) (*render.Sequence, error)
}

// Config holds the engine's timing parameters.
type Config struct {
	SampleRate   float64
	BufferFrames int     // device callback period
	Step         float64 // seconds of script queued per scheduling pass
	PrimeAhead   float64 // seconds queued before playback is committed
	LeadBuffers  int     // buffer periods between commit and the first note
	Lookahead    float64 // seconds queued ahead of the playback position
	FadeIn       float64
	FadeOut      float64
	MaxActive    int // notes the mixer holds without allocating
	QueueSize    int // capacity of the channel to the mixer
}

func DefaultConfig() Config {
	return Config{
		SampleRate:   audio.SampleRate,
		BufferFrames: audio.BufferFrames,
		Step:         0.1,
		PrimeAhead:   0.1,
		LeadBuffers:  2,
		Lookahead:    5.0,
		FadeIn:       0.01,
		FadeOut:      0.25,
		MaxActive:    1024,
		QueueSize:    4096,
	}
}

// State is the preparation goroutine's scheduling state.
type State int

const (
	StateStopped State = iota // stalled with no target time
	StateStalled              // target time fixed, nothing queued yet
	StatePriming              // queueing ahead of the target time
	StatePlaying              // committed to a start frame
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStalled:
		return "stalled"
	case StatePriming:
		return "priming"
	case StatePlaying:
		return "playing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a snapshot of the playback position.
type Status struct {
	State      State
	ScriptTime float64
	Frame      audio.FrameTime // last frame reported by the output
	Pending    int             // notes queued but not yet handed to the mixer
}

// Engine plays scripts. Create with New, start Run in a goroutine and drive
// Process from the audio device.
type Engine struct {
	cfg      Config
	renderer Renderer

	inbox   chan message
	toAudio chan audioMessage
	clock   *clockMailbox
	mixer   *Mixer
	done    chan struct{}
	ctxDone <-chan struct{} // set by Run

	prep preparer

	mu     sync.RWMutex
	status Status
	script *Script
}

func New(cfg Config, renderer Renderer) *Engine {
	e := &Engine{
		cfg:      cfg,
		renderer: renderer,
		inbox:    make(chan message, 16),
		toAudio:  make(chan audioMessage, cfg.QueueSize),
		clock:    newClockMailbox(),
		done:     make(chan struct{}),
	}
	e.mixer = newMixer(e.toAudio, e.clock, cfg)
	e.prep = newPreparer(cfg, renderer, e.send)
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Process is the device callback: it fills out with the next frames.
func (e *Engine) Process(out []audio.Frame) {
	e.mixer.Process(out)
}

// CloseOutput reports that the device stopped calling Process. Run returns
// ErrOutputClosed.
func (e *Engine) CloseOutput() {
	e.mixer.Close()
}

// Run is the preparation goroutine. It returns when ctx is cancelled or the
// output is closed.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	e.ctxDone = ctx.Done()
	log.Printf("Engine started: %.0f Hz, %d-frame buffers", e.cfg.SampleRate, e.cfg.BufferFrames)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.mixer.closed:
			return ErrOutputClosed
		case msg := <-e.inbox:
			e.handle(msg)
		case <-e.clock.wake:
			e.prep.observe(e.clock.latest())
		}

		for more := true; more; {
			select {
			case <-ctx.Done():
				return nil
			case msg := <-e.inbox:
				e.handle(msg)
			case <-e.clock.wake:
				e.prep.observe(e.clock.latest())
			default:
			}
			more = e.prep.step()
			e.publish()
			if e.prep.broken {
				if ctx.Err() != nil {
					return nil
				}
				return ErrOutputClosed
			}
		}
	}
}

func (e *Engine) handle(msg message) {
	switch m := msg.(type) {
	case ReplaceScript:
		e.prep.replace(m.Script)
	case RestartPlaybackAt:
		e.prep.restart(m.At)
	}
	e.publish()
}

func (e *Engine) publish() {
	s := e.prep.status()
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// send delivers a message to the mixer, blocking while its queue is full.
func (e *Engine) send(msg audioMessage) bool {
	select {
	case e.toAudio <- msg:
		return true
	case <-e.mixer.closed:
		return false
	case <-e.ctxDone:
		return false
	}
}

// ReplaceScript validates s and hands it to the preparation goroutine.
// Invalid scripts are rejected and the current one keeps playing.
func (e *Engine) ReplaceScript(s Script) error {
	if err := s.Validate(); err != nil {
		log.Printf("Rejected script: %v", err)
		return fmt.Errorf("replace script: %w", err)
	}
	s = s.sorted()
	if err := e.post(ReplaceScript{Script: s}); err != nil {
		return err
	}
	e.mu.Lock()
	e.script = &s
	e.mu.Unlock()
	return nil
}

// RestartPlaybackAt seeks to *at, or stops when at is nil.
func (e *Engine) RestartPlaybackAt(at *float64) error {
	if at != nil {
		if err := checkTime(*at); errors.Is(err, ErrNonFinite) {
			log.Printf("Rejected seek to %v", *at)
			return fmt.Errorf("restart playback: %w", err)
		}
		t := *at
		at = &t
	}
	return e.post(RestartPlaybackAt{At: at})
}

// Seek restarts playback at script time t.
func (e *Engine) Seek(t float64) error {
	return e.RestartPlaybackAt(&t)
}

func (e *Engine) Stop() error {
	return e.RestartPlaybackAt(nil)
}

func (e *Engine) post(msg message) error {
	select {
	case <-e.done:
		return ErrNotRunning
	default:
	}
	select {
	case e.inbox <- msg:
		return nil
	case <-e.done:
		return ErrNotRunning
	}
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Script returns the most recently accepted script.
func (e *Engine) Script() (Script, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.script == nil {
		return Script{}, false
	}
	return *e.script, true
}
