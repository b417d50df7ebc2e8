package capture

import (
	"log/slog"
	"sync"
	"time"

	"github.com/quenra/kalliope/pkg/voice"
)

// Session accumulates one speaker's frames into an utterance. A session is
// created by the [Registry] when the platform reports speech and lives until
// the frame subscription terminates.
//
// State transitions are Idle → Capturing (first frame) → Finalizing (stream
// end) and are observable through [Session.State].
type Session struct {
	roomID    string
	speakerID string

	mu    sync.Mutex
	state State

	buf        []byte
	frames     int
	capturedAt time.Time
}

func newSession(roomID, speakerID string) *Session {
	return &Session{
		roomID:    roomID,
		speakerID: speakerID,
		state:     StateIdle,
	}
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// run consumes the capture's frame channel until it closes, then returns the
// assembled utterance. ok is false when the stream ended in error or the
// accumulated audio is too short to be speech.
func (s *Session) run(sub voice.Capture, minFrames int) (Utterance, bool) {
	var format = defaultFormat

	for frame := range sub.Frames {
		s.mu.Lock()
		if s.state == StateIdle {
			s.state = StateCapturing
			s.capturedAt = time.Now()
		}
		s.buf = append(s.buf, frame.PCM...)
		s.frames++
		s.mu.Unlock()

		if frame.SampleRate != 0 {
			format.SampleRate = frame.SampleRate
			format.Channels = frame.Channels
		}
	}

	s.mu.Lock()
	s.state = StateFinalizing
	frames := s.frames
	s.mu.Unlock()

	if err := sub.Err(); err != nil {
		slog.Warn("capture: stream ended in error, discarding",
			"room_id", s.roomID, "speaker_id", s.speakerID, "frames", frames, "err", err)
		return Utterance{}, false
	}

	if frames < minFrames {
		slog.Debug("capture: too few frames, discarding as noise",
			"room_id", s.roomID, "speaker_id", s.speakerID, "frames", frames, "min_frames", minFrames)
		return Utterance{}, false
	}

	return Utterance{
		RoomID:     s.roomID,
		SpeakerID:  s.speakerID,
		PCM:        s.buf,
		Format:     format,
		Frames:     frames,
		CapturedAt: s.capturedAt,
	}, true
}
