// Package voice defines the narrow contracts between the utterance pipeline
// and a voice-chat platform.
//
// The three abstractions are:
//
//   - [Dialer] — joins a voice room and returns a [Connection].
//   - [Connection] — an active presence in one room: per-speaker capture
//     subscriptions, occupancy changes, and a playback [Player].
//   - [Player] — plays one audio clip at a time into the room and reports
//     when it falls idle.
//
// Implementations wrap platform SDKs (see voice/discord). The interfaces are
// intentionally narrow so the capture and playback layers stay decoupled
// from provider details, and so tests can drive them with synthetic signals.
//
// This package lives under pkg/ because external platform adapters are
// expected to implement these interfaces.
package voice

import (
	"context"

	"github.com/quenra/kalliope/pkg/audio"
)

// Capture is one speaker's frame subscription, created when the platform
// reports that the speaker started talking.
//
// Frames delivers raw PCM frames and closes on its own when the platform
// has observed the configured span of continuous silence after the last
// voiced frame, or when the stream fails. After Frames is closed, Err
// reports the terminal stream error, or nil for a normal silence-bounded
// end.
type Capture struct {
	// SpeakerID is the platform identity of the speaker.
	SpeakerID string

	// Frames delivers the speaker's PCM frames until the subscription
	// self-terminates.
	Frames <-chan audio.Frame

	// Err reports the terminal error once Frames is closed. It must not be
	// called before Frames is closed.
	Err func() error
}

// Player plays audio clips into a room. A Player emits at most one clip at
// a time; starting a new clip while one is in flight interrupts and
// replaces it.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Play starts playing the WAV file at path, interrupting any clip that
	// is still in flight. It returns once playback has been started; the
	// clip finishes asynchronously.
	Play(path string) error

	// Stop interrupts the in-flight clip, if any.
	Stop()

	// OnIdle registers cb to be invoked with the clip path each time a clip
	// finishes or is interrupted. Only one callback may be registered;
	// subsequent calls replace it. The callback runs on an internal
	// goroutine and must not block.
	OnIdle(cb func(path string))

	// Close stops playback and releases the player's resources.
	Close() error
}

// Connection is an active presence in one voice room. All channels and
// callbacks terminate when the connection closes.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// RoomID identifies the room this connection is joined to.
	RoomID() string

	// OnSpeakingStart registers cb to be invoked each time a speaker in the
	// room starts talking. Only one callback may be registered; subsequent
	// calls replace it. The callback runs on an internal goroutine.
	OnSpeakingStart(cb func(Capture))

	// OnOccupancy registers cb to be invoked whenever the number of other
	// occupants in the room changes (the connection's own identity is not
	// counted). The callback runs on an internal goroutine.
	OnOccupancy(cb func(count int))

	// NewPlayer creates a player emitting into this room. A connection
	// supports at most one player; a second call returns an error.
	NewPlayer() (Player, error)

	// Close tears down the connection, closes all capture subscriptions
	// with a terminal error, and stops the player. Close is idempotent.
	Close() error
}

// Dialer joins voice rooms.
//
// Implementations must be safe for concurrent use.
type Dialer interface {
	// Join connects to the room identified by roomID. The ctx governs the
	// join attempt only; the returned Connection lives until Close.
	Join(ctx context.Context, roomID string) (Connection, error)
}
