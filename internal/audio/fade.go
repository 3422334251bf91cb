package audio

// Ramp returns x/length clamped to [0,1]. It is the linear gain curve used for
// fade-ins (x = frames since the fade began) and fade-outs (x = frames left
// before the fade ends). A non-positive length means no fade.
func Ramp(x, length FrameTime) float32 {
	if length <= 0 {
		return 1
	}
	if x <= 0 {
		return 0
	}
	if x >= length {
		return 1
	}
	return float32(x) / float32(length)
}

// FramesFor converts a duration in seconds to a whole number of frames,
// truncating like the fade constants of the device callback.
func FramesFor(seconds, sampleRate float64) FrameTime {
	return FrameTime(seconds * sampleRate)
}
