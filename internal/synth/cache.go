package synth

import (
	"fmt"
	"log"
	"sync"

	"github.com/satindergrewal/scoreplay/internal/audio"
	"github.com/satindergrewal/scoreplay/internal/render"
)

type cacheKey struct {
	d    Descriptor
	rate float64
}

type cacheEntry struct {
	seq *render.Sequence
	err error
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Entries  int
	Hits     int
	Misses   int
	Failures int
}

// Cache renders each (descriptor, sample rate) pair exactly once and shares
// the immutable result. It never evicts. Failed renders are remembered too,
// so a broken descriptor is logged once and then plays as silence.
type Cache struct {
	backend Backend

	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
	stats   Stats
}

func NewCache(backend Backend) *Cache {
	return &Cache{
		backend: backend,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Sequence returns the rendered frames for d at sampleRate.
func (c *Cache) Sequence(d Descriptor, sampleRate float64) (*render.Sequence, error) {
	key := cacheKey{d, sampleRate}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hit()
		return e.seq, e.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.stats.Hits++
		return e.seq, e.err
	}

	c.stats.Misses++
	e.seq, e.err = c.render(d, sampleRate)
	if e.err != nil {
		c.stats.Failures++
		log.Printf("Rendering %+v failed, playing it as silence: %v", d, e.err)
	}
	c.entries[key] = e
	return e.seq, e.err
}

func (c *Cache) hit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
}

func (c *Cache) render(d Descriptor, sampleRate float64) (*render.Sequence, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := checkRenderSize(d.Duration(), sampleRate); err != nil {
		return nil, fmt.Errorf("render %+v: %w", d, err)
	}
	if t, ok := d.(Tone); ok {
		return render.RenderedFrom(render.SineWave{
			Duration:  t.Length,
			Frequency: t.Frequency,
			Amplitude: t.Amplitude,
		}, sampleRate), nil
	}
	if c.backend == nil {
		return nil, fmt.Errorf("render %T: %w", d, ErrUnsupported)
	}
	left, right, err := c.backend.Render(d, sampleRate)
	if err != nil {
		return nil, err
	}
	if len(left) != len(right) {
		return nil, fmt.Errorf("render %+v: channel lengths differ (%d, %d)", d, len(left), len(right))
	}
	frames := make([]audio.Frame, len(left))
	for i := range frames {
		frames[i] = audio.Frame{left[i], right[i]}
	}
	return &render.Sequence{SampleRate: sampleRate, Frames: frames}, nil
}

// Len returns the number of cached entries, failures included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
