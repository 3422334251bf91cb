package score

import (
	"fmt"
	"io"
	"log"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/satindergrewal/scoreplay/internal/audio"
	"github.com/satindergrewal/scoreplay/internal/engine"
	"github.com/satindergrewal/scoreplay/internal/render"
)

// exportFade is the fade applied where an export is cut at the script end.
const exportFade = 0.01

// Renderable returns the whole script as one composite Renderable: every
// note's rendered sequence placed at its start. Notes that fail to render
// are left out.
func Renderable(s engine.Script, r engine.Renderer, sampleRate float64) render.Collection {
	c := make(render.Collection, 0, len(s.Notes))
	for _, n := range s.Notes {
		seq, err := r.Sequence(n.Note, sampleRate)
		if err != nil || seq.Len() == 0 {
			continue
		}
		c = append(c, render.Placed{Seq: seq, At: n.Start})
	}
	return c
}

// Mixdown renders one pass of the script from time 0. Loops are not
// unrolled; when the script has an end the render is cut there with a short
// fade.
func Mixdown(s engine.Script, r engine.Renderer, sampleRate float64) []audio.Frame {
	c := Renderable(s, r, sampleRate)
	end := c.End()
	if s.End != nil {
		end = *s.End
	}
	if len(c) == 0 || end <= 0 {
		return nil
	}
	frames := make([]audio.Frame, int(math.Ceil(end*sampleRate)))
	c.Render(frames, 0, sampleRate)

	if s.End != nil {
		fade := audio.FramesFor(exportFade, sampleRate)
		n := audio.FrameTime(len(frames))
		for f := max(0, n-fade); f < n; f++ {
			frames[f] = frames[f].Scale(audio.Ramp(n-f, fade))
		}
	}
	return frames
}

// WriteWAV writes a 16-bit stereo WAV mixdown of s.
func WriteWAV(w io.WriteSeeker, s engine.Script, r engine.Renderer, sampleRate int) error {
	frames := Mixdown(s, r, float64(sampleRate))

	enc := wav.NewEncoder(w, sampleRate, 16, audio.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: audio.Channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, 0, len(frames)*audio.Channels),
		SourceBitDepth: 16,
	}
	var peak float32
	for _, f := range frames {
		buf.Data = append(buf.Data, int(audio.ToInt16(f[0])), int(audio.ToInt16(f[1])))
		peak = max(peak, f[0], -f[0], f[1], -f[1])
	}
	if peak > 1 {
		log.Printf("Export clipped: peak %.2f", peak)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}
