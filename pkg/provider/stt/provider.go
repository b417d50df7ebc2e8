// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Providers here are batch transcribers: the capture layer hands them a
// complete utterance as a WAV file on disk and they return the recognised
// text in one call. This matches engines like whisper.cpp that do not
// support true streaming recognition, and keeps the pipeline free to delete
// the file as soon as the call returns.
//
// Implementations must be safe for concurrent use; one transcription may be
// in flight per speaker.
package stt

import (
	"context"
	"fmt"
)

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe recognises the speech in the WAV file at wavPath and
	// returns the transcribed text. An empty string with a nil error means
	// the audio contained no recognisable speech.
	//
	// The file is only guaranteed to exist for the duration of the call;
	// implementations must not retain the path.
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// TranscriptionError wraps a backend failure with the provider's name so the
// pipeline can log which stage and backend failed.
type TranscriptionError struct {
	Provider string
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("stt %s: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
