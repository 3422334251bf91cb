package config

import (
	"os"
	"strconv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port   int
	Script string // script file loaded at startup (.json or .mid)

	// Output
	SampleRate   int
	BufferFrames int
	Device       string // "oto" or "clock"

	// Scheduling, in seconds unless noted
	Step        float64
	PrimeAhead  float64
	LeadBuffers int // buffer periods
	Lookahead   float64
	FadeIn      float64
	FadeOut     float64

	// Synthesis
	SoundFont string // only used by fluidsynth builds

	// Extras
	Monitor bool // MP3 and WebRTC monitor streams
	TUI     bool
}

// Load reads configuration from environment variables. Missing or
// unparsable values fall back to the defaults.
func Load() Config {
	return Config{
		Port:   envInt("SCOREPLAY_PORT", 8080),
		Script: envStr("SCOREPLAY_SCRIPT", ""),

		SampleRate:   envInt("SCOREPLAY_SAMPLE_RATE", 48000),
		BufferFrames: envInt("SCOREPLAY_BUFFER_FRAMES", 256),
		Device:       envStr("SCOREPLAY_DEVICE", "oto"),

		Step:        envFloat("SCOREPLAY_STEP", 0.1),
		PrimeAhead:  envFloat("SCOREPLAY_PRIME_AHEAD", 0.1),
		LeadBuffers: envInt("SCOREPLAY_LEAD_BUFFERS", 2),
		Lookahead:   envFloat("SCOREPLAY_LOOKAHEAD", 5.0),
		FadeIn:      envFloat("SCOREPLAY_FADEIN", 0.01),
		FadeOut:     envFloat("SCOREPLAY_FADEOUT", 0.25),

		SoundFont: envStr("SCOREPLAY_SOUNDFONT", "/usr/share/sounds/sf2/FluidR3_GM.sf2"),

		Monitor: envBool("SCOREPLAY_MONITOR", true),
		TUI:     envBool("SCOREPLAY_TUI", false),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
