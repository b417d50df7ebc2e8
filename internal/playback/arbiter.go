// Package playback owns every room's outbound audio. Each joined room gets
// one player; when a newly synthesised clip arrives while an earlier one is
// still playing, the new clip interrupts and replaces it. Clip files are
// released as soon as the player reports them finished or interrupted.
package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/quenra/kalliope/pkg/voice"
)

// ReleaseFunc removes a clip file once it can no longer be played.
type ReleaseFunc func(path string)

// roomState is the playback state of one joined room.
type roomState struct {
	conn   voice.Connection
	player voice.Player

	mu      sync.Mutex
	current string // path of the clip now in the player, "" when idle
}

// Arbiter routes synthesised clips to the right room's player and tears
// rooms down when they are left.
//
// All exported methods are safe for concurrent use.
type Arbiter struct {
	mu      sync.Mutex
	rooms   map[string]*roomState
	release ReleaseFunc
}

// NewArbiter creates an arbiter that disposes finished clips via release.
func NewArbiter(release ReleaseFunc) *Arbiter {
	if release == nil {
		release = func(string) {}
	}
	return &Arbiter{
		rooms:   make(map[string]*roomState),
		release: release,
	}
}

// Register creates a player for the connection's room and starts routing
// clips to it. Registering a room that is already registered is an error.
func (a *Arbiter) Register(conn voice.Connection) error {
	player, err := conn.NewPlayer()
	if err != nil {
		return fmt.Errorf("playback: create player for room %s: %w", conn.RoomID(), err)
	}

	st := &roomState{conn: conn, player: player}
	player.OnIdle(func(path string) {
		st.mu.Lock()
		if st.current == path {
			st.current = ""
		}
		st.mu.Unlock()
		a.release(path)
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rooms[conn.RoomID()]; ok {
		player.Close()
		return fmt.Errorf("playback: room %s already registered", conn.RoomID())
	}
	a.rooms[conn.RoomID()] = st
	return nil
}

// Enqueue hands a synthesised clip to the room's player. A clip still in
// flight is interrupted and replaced; its file is released through the
// player's idle callback. The arbiter owns path from this call on, even when
// an error is returned.
func (a *Arbiter) Enqueue(roomID, path string) error {
	a.mu.Lock()
	st, ok := a.rooms[roomID]
	a.mu.Unlock()
	if !ok {
		a.release(path)
		return fmt.Errorf("playback: room %s is not registered", roomID)
	}

	st.mu.Lock()
	if st.current != "" {
		slog.Debug("playback: replacing in-flight clip", "room_id", roomID, "replaced", st.current)
	}
	st.current = path
	st.mu.Unlock()

	if err := st.player.Play(path); err != nil {
		st.mu.Lock()
		if st.current == path {
			st.current = ""
		}
		st.mu.Unlock()
		a.release(path)
		return fmt.Errorf("playback: play in room %s: %w", roomID, err)
	}
	return nil
}

// Teardown stops the room's playback, closes its player and connection, and
// releases any in-flight clip. Tearing down an unregistered room is a no-op.
func (a *Arbiter) Teardown(roomID string) {
	a.mu.Lock()
	st, ok := a.rooms[roomID]
	delete(a.rooms, roomID)
	a.mu.Unlock()
	if !ok {
		return
	}

	st.player.Stop()
	if err := st.player.Close(); err != nil {
		slog.Warn("playback: player close error", "room_id", roomID, "err", err)
	}
	if err := st.conn.Close(); err != nil {
		slog.Warn("playback: connection close error", "room_id", roomID, "err", err)
	}

	st.mu.Lock()
	current := st.current
	st.current = ""
	st.mu.Unlock()
	if current != "" {
		a.release(current)
	}

	slog.Info("playback: room torn down", "room_id", roomID)
}

// Rooms returns the IDs of all registered rooms.
func (a *Arbiter) Rooms() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.rooms))
	for id := range a.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every registered room.
func (a *Arbiter) Close() error {
	for _, id := range a.Rooms() {
		a.Teardown(id)
	}
	return nil
}
