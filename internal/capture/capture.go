// Package capture turns per-speaker voice frame subscriptions into complete
// utterances.
//
// A [Session] accumulates a single speaker's PCM frames from the moment the
// platform reports speech until the subscription terminates after the
// platform's silence window. The [Registry] enforces at most one session per
// (room, speaker) identity and hands finished utterances to a sink.
package capture

import (
	"time"

	"github.com/quenra/kalliope/pkg/audio"
)

// State is the lifecycle phase of a capture session.
type State int

const (
	// StateIdle means no frames have been received yet.
	StateIdle State = iota

	// StateCapturing means the session is accumulating frames.
	StateCapturing

	// StateFinalizing means the frame stream has ended and the session is
	// assembling the utterance.
	StateFinalizing
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Utterance is one speaker's complete stretch of speech, bounded by the
// platform's silence window.
type Utterance struct {
	// RoomID identifies the room the speech occurred in.
	RoomID string

	// SpeakerID is the platform identity of the speaker.
	SpeakerID string

	// PCM is the concatenated raw audio of every captured frame.
	PCM []byte

	// Format describes the PCM encoding.
	Format audio.Format

	// Frames is the number of frames that contributed to PCM.
	Frames int

	// CapturedAt is when the first frame arrived.
	CapturedAt time.Time
}

// Duration returns the audio length of the utterance.
func (u Utterance) Duration() time.Duration {
	return u.Format.Duration(len(u.PCM))
}

// defaultFormat is assumed for frames that carry no format metadata.
var defaultFormat = audio.Format{SampleRate: 48000, Channels: 2}
