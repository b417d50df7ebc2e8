package capture

import (
	"log/slog"
	"sync"

	"github.com/quenra/kalliope/pkg/voice"
)

// DefaultMinFrames is the minimum number of frames an utterance must contain
// before it is forwarded. Shorter bursts are discarded as noise.
const DefaultMinFrames = 10

// Sink receives finished utterances. It is invoked from the capture
// session's goroutine and must not block for long.
type Sink func(Utterance)

// identity keys one speaker in one room.
type identity struct {
	roomID    string
	speakerID string
}

// Registry owns all in-flight capture sessions. It enforces at most one
// session per (room, speaker) identity: while a session is running,
// further speaking-start signals for the same identity are ignored.
//
// All exported methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	active map[identity]*Session

	minFrames int
	sink      Sink
	activity  func(delta int)
}

// Option configures a [Registry].
type Option func(*Registry)

// WithMinFrames overrides the minimum frame count for a valid utterance.
func WithMinFrames(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.minFrames = n
		}
	}
}

// WithActivityFunc registers fn to be called with +1 when a session starts
// and -1 when it ends. Used to keep an active-session gauge current.
func WithActivityFunc(fn func(delta int)) Option {
	return func(r *Registry) {
		r.activity = fn
	}
}

// NewRegistry creates a registry that forwards finished utterances to sink.
func NewRegistry(sink Sink, opts ...Option) *Registry {
	r := &Registry{
		active:    make(map[identity]*Session),
		minFrames: DefaultMinFrames,
		sink:      sink,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins a capture session for the given room and frame subscription.
// If a session for the same identity is already running the call is a no-op;
// the platform occasionally re-signals speech for a stream already being
// consumed.
//
// The session runs on its own goroutine until the subscription's frame
// channel closes.
func (r *Registry) Start(roomID string, sub voice.Capture) {
	id := identity{roomID: roomID, speakerID: sub.SpeakerID}

	r.mu.Lock()
	if _, ok := r.active[id]; ok {
		r.mu.Unlock()
		slog.Debug("capture: session already active, ignoring start",
			"room_id", roomID, "speaker_id", sub.SpeakerID)
		return
	}
	sess := newSession(roomID, sub.SpeakerID)
	r.active[id] = sess
	r.mu.Unlock()

	if r.activity != nil {
		r.activity(1)
	}

	go func() {
		utt, ok := sess.run(sub, r.minFrames)

		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()

		if r.activity != nil {
			r.activity(-1)
		}

		if !ok {
			return
		}
		slog.Debug("capture: utterance complete",
			"room_id", utt.RoomID, "speaker_id", utt.SpeakerID,
			"frames", utt.Frames, "duration", utt.Duration())
		r.sink(utt)
	}()
}

// ActiveCount returns the number of in-flight capture sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
