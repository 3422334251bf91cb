package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/scoreplay/internal/audio"
)

// MP3Handler serves the monitor as a chunked MP3 stream. Every connection
// gets its own ffmpeg process reading s16le on stdin.
type MP3Handler struct {
	broadcaster *Broadcaster
	bitrate     int // kbit/s
}

func NewMP3Handler(b *Broadcaster, bitrate int) *MP3Handler {
	if bitrate <= 0 {
		bitrate = 192
	}
	return &MP3Handler{broadcaster: b, bitrate: bitrate}
}

func (h *MP3Handler) ffmpegArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(h.bitrate) + "k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *MP3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", h.ffmpegArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("MP3 monitor: stdin pipe: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("MP3 monitor: stdout pipe: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("MP3 monitor: start ffmpeg: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "scoreplay monitor")

	sub := h.broadcaster.Subscribe("mp3 " + r.RemoteAddr)
	defer h.broadcaster.Unsubscribe(sub)
	log.Printf("MP3 monitor connected (monitors: %d)", h.broadcaster.Stats().Subscribers)
	defer log.Printf("MP3 monitor disconnected")

	go feedPCM(ctx, sub, stdin)

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				cancel()
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Printf("MP3 monitor: read ffmpeg output: %v", err)
			}
			return
		}
	}
}

// feedPCM writes the subscriber's frames to w until either side goes away.
func feedPCM(ctx context.Context, sub *Subscriber, w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
