package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quenra/kalliope/internal/capture"
	"github.com/quenra/kalliope/internal/memory"
	"github.com/quenra/kalliope/internal/observe"
	"github.com/quenra/kalliope/internal/playback"
	"github.com/quenra/kalliope/pkg/voice"
)

// LeaveReasonRequested marks a leave triggered by a user command;
// LeaveReasonEmpty marks an automatic leave of an emptied room.
const (
	LeaveReasonRequested = "requested"
	LeaveReasonEmpty     = "empty"
)

// RoomInfo holds metadata about a joined room.
type RoomInfo struct {
	RoomID   string
	JoinedBy string
	JoinedAt time.Time
}

// RoomManager tracks which voice rooms the application is present in. Each
// joined room gets its frame streams routed into the capture registry and a
// registered playback player; leaving a room tears both down and clears the
// room's conversation history.
//
// All exported methods are safe for concurrent use.
type RoomManager struct {
	dialer   voice.Dialer
	registry *capture.Registry
	arbiter  *playback.Arbiter
	mem      *memory.Store
	metrics  *observe.Metrics

	mu     sync.Mutex
	rooms  map[string]RoomInfo
	leftCb func(roomID, reason string)
}

// NewRoomManager creates a RoomManager routing joined rooms' audio into
// registry and their synthesised replies through arbiter.
func NewRoomManager(dialer voice.Dialer, registry *capture.Registry, arbiter *playback.Arbiter, mem *memory.Store, metrics *observe.Metrics) *RoomManager {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &RoomManager{
		dialer:   dialer,
		registry: registry,
		arbiter:  arbiter,
		mem:      mem,
		metrics:  metrics,
		rooms:    make(map[string]RoomInfo),
	}
}

// OnLeft registers cb to be invoked after a room has been left, with the
// reason ([LeaveReasonRequested] or [LeaveReasonEmpty]). Only one callback
// may be registered; subsequent calls replace it.
func (m *RoomManager) OnLeft(cb func(roomID, reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leftCb = cb
}

// Join connects to the voice room and starts serving it: speaking-start
// events feed the capture registry, the playback arbiter gets a player for
// the room, and an occupancy drop to zero leaves the room again.
//
// Joining a room that is already joined is an error.
func (m *RoomManager) Join(ctx context.Context, roomID, userID string) error {
	m.mu.Lock()
	if _, ok := m.rooms[roomID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("app: already joined room %s", roomID)
	}
	// Reserve the slot before dialing so concurrent joins of the same room
	// cannot race past each other.
	m.rooms[roomID] = RoomInfo{RoomID: roomID, JoinedBy: userID, JoinedAt: time.Now().UTC()}
	m.mu.Unlock()

	conn, err := m.dialer.Join(ctx, roomID)
	if err != nil {
		m.mu.Lock()
		delete(m.rooms, roomID)
		m.mu.Unlock()
		return fmt.Errorf("app: join room %s: %w", roomID, err)
	}

	conn.OnSpeakingStart(func(sub voice.Capture) {
		m.registry.Start(roomID, sub)
	})

	if err := m.arbiter.Register(conn); err != nil {
		_ = conn.Close()
		m.mu.Lock()
		delete(m.rooms, roomID)
		m.mu.Unlock()
		return fmt.Errorf("app: register playback for room %s: %w", roomID, err)
	}

	// Registered after the arbiter so an immediate empty-room event finds
	// the player to tear down.
	conn.OnOccupancy(func(count int) {
		if count == 0 {
			go m.leave(roomID, LeaveReasonEmpty)
		}
	})

	m.metrics.ActiveRooms.Add(ctx, 1)
	slog.Info("joined room", "room_id", roomID, "joined_by", userID)
	return nil
}

// Leave disconnects from the room, stopping playback and discarding its
// conversation history. Leaving a room that is not joined is an error.
func (m *RoomManager) Leave(roomID string) error {
	return m.leave(roomID, LeaveReasonRequested)
}

func (m *RoomManager) leave(roomID, reason string) error {
	m.mu.Lock()
	_, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("app: not joined to room %s", roomID)
	}
	delete(m.rooms, roomID)
	cb := m.leftCb
	m.mu.Unlock()

	// Teardown closes the room's player and voice connection; closing the
	// connection ends its capture streams, which unwinds the room's capture
	// sessions.
	m.arbiter.Teardown(roomID)
	m.mem.ClearRoom(roomID)
	m.metrics.ActiveRooms.Add(context.Background(), -1)

	slog.Info("left room", "room_id", roomID, "reason", reason)
	if cb != nil {
		cb(roomID, reason)
	}
	return nil
}

// Joined reports whether the room is currently joined.
func (m *RoomManager) Joined(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomID]
	return ok
}

// Rooms returns metadata for all joined rooms.
func (m *RoomManager) Rooms() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]RoomInfo, 0, len(m.rooms))
	for _, info := range m.rooms {
		infos = append(infos, info)
	}
	return infos
}

// Close leaves every joined room.
func (m *RoomManager) Close() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.leave(id, LeaveReasonRequested); err != nil {
			slog.Warn("app: leave during close", "room_id", id, "err", err)
		}
	}
	return nil
}
