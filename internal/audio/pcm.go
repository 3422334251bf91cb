package audio

import "encoding/binary"

// ToInt16 converts a float sample in [-1,1] to int16, clipping out-of-range values.
func ToInt16(v float32) int16 {
	s := v * 32767
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}

// Interleave appends frames to dst as interleaved int16 samples.
func Interleave(dst []int16, frames []Frame) []int16 {
	for _, f := range frames {
		dst = append(dst, ToInt16(f[0]), ToInt16(f[1]))
	}
	return dst
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
