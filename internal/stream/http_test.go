package stream

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func TestMP3Args(t *testing.T) {
	args := NewMP3Handler(NewBroadcaster(), 0).ffmpegArgs()
	for _, want := range [][2]string{{"-ar", "48000"}, {"-ac", "2"}, {"-b:a", "192k"}, {"-f", "s16le"}} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Errorf("ffmpeg args %v missing %s %s", args, want[0], want[1])
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
	}
}

func TestWebRTCRejectsBadRequests(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), 0)

	tests := []struct {
		method, body string
		want         int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodOptions, "", http.StatusOK},
		{http.MethodPost, "not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/offer", strings.NewReader(tt.body)))
		if rec.Code != tt.want {
			t.Errorf("%s %q: status = %d, want %d", tt.method, tt.body, rec.Code, tt.want)
		}
	}
	if n := h.PeerCount(); n != 0 {
		t.Errorf("PeerCount = %d, want 0", n)
	}
}
