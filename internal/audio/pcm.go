// Package audio provides level analysis, peak tracking, and PCM capture helpers for the meter.
package audio

import "encoding/binary"

const (
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// FrameSize is the byte size of one S16LE stereo frame.
	FrameSize = 4
)

// DecodeS16LE deinterleaves whole S16LE stereo frames from buf into left and right,
// scaled to [-1, 1). It returns the number of frames decoded, which is limited by
// the shorter of the two destination slices.
func DecodeS16LE(buf []byte, left, right []float64) int {
	frames := min(len(buf)/FrameSize, len(left), len(right))
	for i := range frames {
		off := i * FrameSize
		left[i] = float64(int16(binary.LittleEndian.Uint16(buf[off:]))) / MaxSampleValue
		right[i] = float64(int16(binary.LittleEndian.Uint16(buf[off+2:]))) / MaxSampleValue
	}
	return frames
}

// EncodeS16LE interleaves left and right into S16LE stereo frames, clamping to the
// 16-bit range. It is the inverse of DecodeS16LE and is used to build test signals.
func EncodeS16LE(left, right []float64) []byte {
	frames := min(len(left), len(right))
	buf := make([]byte, frames*FrameSize)
	for i := range frames {
		off := i * FrameSize
		binary.LittleEndian.PutUint16(buf[off:], uint16(toS16(left[i])))
		binary.LittleEndian.PutUint16(buf[off+2:], uint16(toS16(right[i])))
	}
	return buf
}

func toS16(v float64) int16 {
	s := v * MaxSampleValue
	switch {
	case s >= MaxSampleValue-1:
		return 32767
	case s <= -MaxSampleValue:
		return -32768
	}
	return int16(s)
}
