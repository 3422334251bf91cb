package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/satindergrewal/scoreplay/internal/config"
	"github.com/satindergrewal/scoreplay/internal/engine"
	"github.com/satindergrewal/scoreplay/internal/score"
	"github.com/satindergrewal/scoreplay/internal/synth"
)

// server exposes the engine over HTTP and to the TUI.
type server struct {
	engine    *engine.Engine
	cache     *synth.Cache
	cfg       config.Config
	listeners func() int // monitor listeners, nil when the monitor is off
}

func newServer(eng *engine.Engine, cache *synth.Cache, cfg config.Config) *server {
	return &server{engine: eng, cache: cache, cfg: cfg}
}

func (s *server) Status() engine.Status { return s.engine.Status() }
func (s *server) Seek(t float64) error  { return s.engine.Seek(t) }
func (s *server) Stop() error           { return s.engine.Stop() }

func (s *server) Duration() float64 {
	sc, ok := s.engine.Script()
	if !ok {
		return 0
	}
	return sc.Duration()
}

// Reload reads the configured script file again and swaps it in.
func (s *server) Reload() error {
	if s.cfg.Script == "" {
		return errors.New("no script file configured (set SCOREPLAY_SCRIPT)")
	}
	sc, err := score.Load(s.cfg.Script)
	if err != nil {
		return err
	}
	if err := s.engine.ReplaceScript(sc); err != nil {
		return err
	}
	log.Printf("Loaded %s: %d notes, %.1fs", s.cfg.Script, len(sc.Notes), sc.Duration())
	return nil
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/script", s.handleScript)
	mux.HandleFunc("/api/seek", s.handleSeek)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/reload", s.handleReload)
	mux.HandleFunc("/api/export.wav", s.handleExportWAV)
	mux.HandleFunc("/api/export.mid", s.handleExportMIDI)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

// engineError maps an engine error to a response.
func engineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNotRunning) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	stats := s.cache.Stats()
	_, loaded := s.engine.Script()
	listeners := 0
	if s.listeners != nil {
		listeners = s.listeners()
	}
	ec := s.engine.Config()

	writeJSON(w, map[string]any{
		"state":         st.State.String(),
		"script_time":   st.ScriptTime,
		"frame":         st.Frame,
		"pending":       st.Pending,
		"script_loaded": loaded,
		"duration":      s.Duration(),
		"listeners":     listeners,
		"cache": map[string]any{
			"entries":  stats.Entries,
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"failures": stats.Failures,
		},
		"config": map[string]any{
			"sample_rate":   ec.SampleRate,
			"buffer_frames": ec.BufferFrames,
			"lookahead":     ec.Lookahead,
			"fade_in":       ec.FadeIn,
			"fade_out":      ec.FadeOut,
			"fluidsynth":    synth.FluidAvailable,
		},
	})
}

func (s *server) handleScript(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		sc, ok := s.engine.Script()
		if !ok {
			http.Error(w, "no script loaded", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		score.Encode(w, sc)
		return
	}
	if !requirePost(w, r) {
		return
	}
	sc, err := score.Decode(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.ReplaceScript(sc); err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "notes": len(sc.Notes), "duration": sc.Duration()})
}

func (s *server) handleSeek(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Time *float64 `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Time == nil {
		http.Error(w, "invalid request, want {\"time\": seconds}", http.StatusBadRequest)
		return
	}
	if err := s.engine.Seek(*req.Time); err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "time": *req.Time})
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.engine.Stop(); err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.Reload(); err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

// handleExportWAV renders the current script offline. The WAV encoder needs
// to seek, so it writes to a temp file first.
func (s *server) handleExportWAV(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.engine.Script()
	if !ok {
		http.Error(w, "no script loaded", http.StatusNotFound)
		return
	}
	f, err := os.CreateTemp("", "scoreplay-*.wav")
	if err != nil {
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := score.WriteWAV(f, sc, s.cache, s.cfg.SampleRate); err != nil {
		log.Printf("WAV export failed: %v", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="script.wav"`)
	http.ServeContent(w, r, "script.wav", time.Now(), f)
}

func (s *server) handleExportMIDI(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.engine.Script()
	if !ok {
		http.Error(w, "no script loaded", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := score.WriteSMF(&buf, sc); err != nil {
		log.Printf("MIDI export failed: %v", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", `attachment; filename="script.mid"`)
	w.Write(buf.Bytes())
}
