package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/scoreplay/internal/audio"
	"github.com/satindergrewal/scoreplay/internal/config"
	"github.com/satindergrewal/scoreplay/internal/device"
	"github.com/satindergrewal/scoreplay/internal/engine"
	"github.com/satindergrewal/scoreplay/internal/stream"
	"github.com/satindergrewal/scoreplay/internal/synth"
	"github.com/satindergrewal/scoreplay/internal/tui"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The terminal belongs to the TUI, so logs go to a file.
	if cfg.TUI {
		f, err := tea.LogToFile("scoreplay.log", "")
		if err != nil {
			log.Fatalf("Open log file: %v", err)
		}
		defer f.Close()
	}

	log.Println("scoreplay starting up...")

	// Synthesis: fluidsynth when built in, the additive synthesizer otherwise
	factory := synth.SynthesizerFactory(synth.NewAdditive)
	if synth.FluidAvailable {
		factory = synth.NewFluidFactory(cfg.SoundFont)
		log.Printf("Synthesizer: fluidsynth (%s)", cfg.SoundFont)
	} else {
		log.Println("Synthesizer: additive (build with -tags fluidsynth for SoundFont playback)")
	}
	cache := synth.NewCache(synth.NewSynthBackend(factory))

	eng := engine.New(engineConfig(cfg), cache)

	// Monitor streams tap the device output
	callback := device.Callback(eng.Process)
	var tap *stream.Tap
	if cfg.Monitor && cfg.SampleRate != audio.SampleRate {
		log.Printf("Monitor streams need %d Hz output, disabled", audio.SampleRate)
	} else if cfg.Monitor {
		tap = stream.NewTap()
		callback = func(out []audio.Frame) {
			eng.Process(out)
			tap.Write(out)
		}
	}

	out := openOutput(cfg, callback)
	go func() {
		if err := out.Run(ctx); err != nil {
			log.Printf("Audio output stopped: %v", err)
		}
		eng.CloseOutput()
	}()
	go func() {
		if err := eng.Run(ctx); err != nil {
			log.Printf("Engine stopped: %v", err)
			cancel()
		}
	}()

	srv := newServer(eng, cache, cfg)
	if cfg.Script != "" {
		if err := srv.Reload(); err != nil {
			log.Printf("Could not load %s: %v", cfg.Script, err)
		} else if err := eng.Seek(0); err != nil {
			log.Printf("Could not start playback: %v", err)
		}
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	if tap != nil {
		broadcaster := stream.NewBroadcaster()
		go tap.Run(ctx)
		go broadcaster.Run(ctx, tap.Frames())

		webrtcHandler := stream.NewWebRTCHandler(broadcaster, 0)
		defer webrtcHandler.Close()
		mux.Handle("/stream", stream.NewMP3Handler(broadcaster, 0))
		mux.Handle("/offer", webrtcHandler)
		srv.listeners = func() int {
			return broadcaster.Stats().Subscribers
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	if cfg.TUI {
		go serve(server, cancel)
		title := "scoreplay"
		if cfg.Script != "" {
			title = filepath.Base(cfg.Script)
		}
		if err := tui.Run(srv, title); err != nil {
			log.Printf("TUI error: %v", err)
		}
		cancel()
		return
	}
	serve(server, cancel)
}

func serve(server *http.Server, cancel context.CancelFunc) {
	log.Printf("scoreplay listening on %s", server.Addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Printf("HTTP server error: %v", err)
		cancel()
	}
}

// engineConfig maps the environment onto the engine defaults. Values that
// are zero or negative keep the default.
func engineConfig(cfg config.Config) engine.Config {
	ec := engine.DefaultConfig()
	if cfg.SampleRate > 0 {
		ec.SampleRate = float64(cfg.SampleRate)
	}
	if cfg.BufferFrames > 0 {
		ec.BufferFrames = cfg.BufferFrames
	}
	if cfg.LeadBuffers > 0 {
		ec.LeadBuffers = cfg.LeadBuffers
	}
	for _, f := range []struct {
		dst *float64
		v   float64
	}{
		{&ec.Step, cfg.Step},
		{&ec.PrimeAhead, cfg.PrimeAhead},
		{&ec.Lookahead, cfg.Lookahead},
		{&ec.FadeIn, cfg.FadeIn},
		{&ec.FadeOut, cfg.FadeOut},
	} {
		if f.v > 0 {
			*f.dst = f.v
		}
	}
	return ec
}

// openOutput prefers the sound card and falls back to the software clock.
func openOutput(cfg config.Config, callback device.Callback) device.Output {
	if cfg.Device != "clock" {
		o, err := device.NewOto(callback, cfg.SampleRate, cfg.BufferFrames)
		if err == nil {
			return o
		}
		log.Printf("Audio device unavailable (%v), using the software clock", err)
	}
	log.Printf("Output: software clock at %d Hz", cfg.SampleRate)
	return device.NewClock(callback, float64(cfg.SampleRate), cfg.BufferFrames)
}
