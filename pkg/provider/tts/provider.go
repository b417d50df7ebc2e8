// Package tts defines the Provider interface for Text-to-Speech backends.
//
// Providers here are batch synthesisers: the pipeline hands them one complete
// reply and receives one complete [Clip]. Playback starts only once the whole
// clip is on disk, so streaming synthesis would not shorten the path.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"
)

// Clip is a complete synthesised audio clip as raw 16-bit signed
// little-endian PCM.
type Clip struct {
	// PCM is the raw audio payload.
	PCM []byte

	// SampleRate is the sample rate in Hz.
	SampleRate int

	// Channels is the channel count (1 = mono).
	Channels int
}

// Voice describes a synthesis voice configuration.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string
}

// Provider is the abstraction over any batch TTS backend.
type Provider interface {
	// Synthesize renders text as speech and returns the complete clip.
	// Providers return their native output format; the playback layer
	// converts to the room's format.
	Synthesize(ctx context.Context, text string) (Clip, error)
}

// SynthesisError wraps a backend failure with the provider's name.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("tts %s: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
