// Package memory holds the bounded per-speaker conversation history used to
// give the language model short-term context. History lives for the process
// lifetime only; nothing is persisted.
package memory

import (
	"container/list"
	"sync"
)

const (
	// DefaultMaxTurns bounds the history per identity: 10 turns, i.e. the
	// last 5 user/assistant exchanges.
	DefaultMaxTurns = 10

	// DefaultMaxSpeakers bounds how many distinct (room, speaker)
	// identities retain history at once. The least recently active
	// identity is evicted wholesale when the bound is exceeded.
	DefaultMaxSpeakers = 512
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a conversation history.
type Turn struct {
	Role Role
	Text string
}

// Key identifies one conversation: a speaker within a room. The same person
// in two rooms holds two independent histories.
type Key struct {
	RoomID    string
	SpeakerID string
}

type entry struct {
	key   Key
	turns []Turn
}

// Option configures a [Store].
type Option func(*Store)

// WithMaxTurns overrides the per-identity turn bound.
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithMaxSpeakers overrides the identity-count bound.
func WithMaxSpeakers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSpeakers = n
		}
	}
}

// Store is an in-memory conversation history store keyed by (room, speaker).
// Each history is bounded to maxTurns turns with oldest-first eviction, and
// the key space itself is bounded by an LRU policy so a server that hears
// an unbounded stream of distinct speakers does not grow without limit.
//
// All methods are safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	maxTurns    int
	maxSpeakers int
	entries     map[Key]*list.Element // value: *entry
	order       *list.List            // front = most recently used
}

// New creates an empty Store with the default bounds.
func New(opts ...Option) *Store {
	s := &Store{
		maxTurns:    DefaultMaxTurns,
		maxSpeakers: DefaultMaxSpeakers,
		entries:     make(map[Key]*list.Element),
		order:       list.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns a copy of the recorded turns for (roomID, speakerID), oldest
// first. The result is empty when nothing has been recorded. Reading marks
// the identity as recently used.
func (s *Store) Get(roomID, speakerID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[Key{RoomID: roomID, SpeakerID: speakerID}]
	if !ok {
		return nil
	}
	s.order.MoveToFront(el)

	e := el.Value.(*entry)
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Append records one completed exchange — the user's transcript and the
// assistant's reply — then trims the history from the front so it never
// exceeds the configured turn bound. The identity is created lazily.
func (s *Store) Append(roomID, speakerID, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{RoomID: roomID, SpeakerID: speakerID}
	el, ok := s.entries[key]
	if !ok {
		el = s.order.PushFront(&entry{key: key})
		s.entries[key] = el
		s.evictOverflow()
	} else {
		s.order.MoveToFront(el)
	}

	e := el.Value.(*entry)
	e.turns = append(e.turns,
		Turn{Role: RoleUser, Text: userText},
		Turn{Role: RoleAssistant, Text: assistantText},
	)
	if excess := len(e.turns) - s.maxTurns; excess > 0 {
		kept := make([]Turn, s.maxTurns)
		copy(kept, e.turns[excess:])
		e.turns = kept
	}
}

// Clear drops the history for one identity. Clearing an unknown identity
// is a no-op.
func (s *Store) Clear(roomID, speakerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{RoomID: roomID, SpeakerID: speakerID}
	if el, ok := s.entries[key]; ok {
		s.order.Remove(el)
		delete(s.entries, key)
	}
}

// ClearRoom drops every history recorded for roomID.
func (s *Store) ClearRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, el := range s.entries {
		if key.RoomID == roomID {
			s.order.Remove(el)
			delete(s.entries, key)
		}
	}
}

// Len reports how many identities currently hold history.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictOverflow removes least-recently-used identities until the key bound
// holds. Must be called with s.mu held.
func (s *Store) evictOverflow() {
	for len(s.entries) > s.maxSpeakers {
		oldest := s.order.Back()
		if oldest == nil {
			return
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).key)
	}
}
