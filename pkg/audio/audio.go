// Package audio defines the PCM frame type shared by the capture, pipeline,
// and playback layers, together with the WAV container codec and the small
// set of PCM format helpers (downmix, upmix, resample) the voice pipeline
// needs.
//
// All PCM in this package is 16-bit signed little-endian, interleaved when
// multi-channel.
package audio

import "time"

// Frame is a single unit of raw audio payload delivered by a capture
// subscription. Frames are the atomic unit of audio transport between the
// platform adapter and the capture sessions.
type Frame struct {
	// PCM is 16-bit signed little-endian PCM data, interleaved when stereo.
	PCM []byte

	// SampleRate in Hz (48000 for Discord voice, 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Duration returns the play time of n PCM bytes in format f.
// Returns 0 for an invalid format.
func (f Format) Duration(n int) time.Duration {
	bytesPerSec := f.SampleRate * f.Channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}
