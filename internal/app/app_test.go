package app_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quenra/kalliope/internal/app"
	"github.com/quenra/kalliope/internal/config"
	"github.com/quenra/kalliope/pkg/audio"
	llmmock "github.com/quenra/kalliope/pkg/provider/llm/mock"
	sttmock "github.com/quenra/kalliope/pkg/provider/stt/mock"
	"github.com/quenra/kalliope/pkg/provider/tts"
	ttsmock "github.com/quenra/kalliope/pkg/provider/tts/mock"
	"github.com/quenra/kalliope/pkg/voice"
)

// fakePlayer completes every clip immediately through the idle callback.
type fakePlayer struct {
	mu     sync.Mutex
	played []string
	closed bool
	onIdle func(path string)
}

func (p *fakePlayer) Play(path string) error {
	p.mu.Lock()
	p.played = append(p.played, path)
	cb := p.onIdle
	p.mu.Unlock()
	if cb != nil {
		go cb(path)
	}
	return nil
}

func (p *fakePlayer) Stop() {}

func (p *fakePlayer) OnIdle(cb func(path string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onIdle = cb
}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePlayer) playedPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// fakeConn is a scriptable voice.Connection: tests drive its speaking and
// occupancy callbacks directly.
type fakeConn struct {
	roomID string
	player *fakePlayer

	mu      sync.Mutex
	speakCb func(voice.Capture)
	occCb   func(int)
	closed  bool
}

func newFakeConn(roomID string) *fakeConn {
	return &fakeConn{roomID: roomID, player: &fakePlayer{}}
}

func (c *fakeConn) RoomID() string { return c.roomID }

func (c *fakeConn) OnSpeakingStart(cb func(voice.Capture)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakCb = cb
}

func (c *fakeConn) OnOccupancy(cb func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occCb = cb
}

func (c *fakeConn) NewPlayer() (voice.Player, error) {
	return c.player, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// speak emits one capture carrying frames full frames of silence, then ends
// the stream as a silence timeout would.
func (c *fakeConn) speak(speakerID string, frames int) {
	c.mu.Lock()
	cb := c.speakCb
	c.mu.Unlock()
	if cb == nil {
		return
	}

	ch := make(chan audio.Frame, frames)
	for i := range frames {
		ch <- audio.Frame{
			PCM:        make([]byte, 3840),
			SampleRate: 48000,
			Channels:   2,
			Timestamp:  time.Duration(i) * 20 * time.Millisecond,
		}
	}
	close(ch)
	cb(voice.Capture{
		SpeakerID: speakerID,
		Frames:    ch,
		Err:       func() error { return nil },
	})
}

func (c *fakeConn) reportOccupancy(count int) {
	c.mu.Lock()
	cb := c.occCb
	c.mu.Unlock()
	if cb != nil {
		cb(count)
	}
}

// fakeDialer hands out fakeConns keyed by room ID.
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	err   error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(map[string]*fakeConn)}
}

func (d *fakeDialer) Join(_ context.Context, roomID string) (voice.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := newFakeConn(roomID)
	d.conns[roomID] = conn
	return conn, nil
}

func (d *fakeDialer) conn(roomID string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[roomID]
}

// testApp bundles an App with its fakes.
type testApp struct {
	app    *app.App
	dialer *fakeDialer
	stt    *sttmock.Provider
	llm    *llmmock.Provider
	tts    *ttsmock.Provider
	dir    string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Artifacts: config.ArtifactsConfig{Dir: dir},
	}

	sttp := &sttmock.Provider{Text: "hello there"}
	llmp := &llmmock.Provider{Reply: "Hi! How can I help?"}
	ttsp := &ttsmock.Provider{Clip: tts.Clip{
		PCM:        make([]byte, 3200),
		SampleRate: 16000,
		Channels:   1,
	}}
	dialer := newFakeDialer()

	a, err := app.New(context.Background(), cfg, &app.Providers{
		STT: sttp, LLM: llmp, TTS: ttsp,
	}, dialer)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})

	return &testApp{app: a, dialer: dialer, stt: sttp, llm: llmp, tts: ttsp, dir: dir}
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func artifactCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Artifacts: config.ArtifactsConfig{Dir: t.TempDir()}}
	_, err := app.New(context.Background(), cfg, &app.Providers{
		STT: &sttmock.Provider{}, LLM: &llmmock.Provider{},
	}, newFakeDialer())
	if err == nil {
		t.Fatal("New with a missing TTS provider returned nil error")
	}
}

func TestRoomManager_JoinAndLeave(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	rooms := ta.app.Rooms()
	ctx := context.Background()

	if err := rooms.Join(ctx, "room-1", "user-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !rooms.Joined("room-1") {
		t.Error("Joined(room-1) = false after Join")
	}
	if err := rooms.Join(ctx, "room-1", "user-2"); err == nil {
		t.Error("second Join of the same room returned nil error")
	}

	if err := rooms.Leave("room-1"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if rooms.Joined("room-1") {
		t.Error("Joined(room-1) = true after Leave")
	}
	if !ta.dialer.conn("room-1").isClosed() {
		t.Error("voice connection not closed by Leave")
	}

	if err := rooms.Leave("room-1"); err == nil {
		t.Error("Leave of a room not joined returned nil error")
	}
}

func TestRoomManager_JoinFailure(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	ta.dialer.err = errors.New("voice gateway unavailable")

	err := ta.app.Rooms().Join(context.Background(), "room-1", "user-1")
	if err == nil {
		t.Fatal("Join with failing dialer returned nil error")
	}
	if ta.app.Rooms().Joined("room-1") {
		t.Error("failed Join left the room marked as joined")
	}
}

func TestRoomManager_LeavesEmptyRoom(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	rooms := ta.app.Rooms()

	left := make(chan string, 1)
	rooms.OnLeft(func(roomID, reason string) {
		if reason == app.LeaveReasonEmpty {
			left <- roomID
		}
	})

	if err := rooms.Join(context.Background(), "room-1", "user-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	conn := ta.dialer.conn("room-1")
	conn.reportOccupancy(2)
	if !rooms.Joined("room-1") {
		t.Fatal("room left while still occupied")
	}

	conn.reportOccupancy(0)
	select {
	case roomID := <-left:
		if roomID != "room-1" {
			t.Errorf("left room = %q, want room-1", roomID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("empty room was not left")
	}
	if !conn.isClosed() {
		t.Error("voice connection not closed on auto-leave")
	}
}

func TestSpeechProducesSpokenReply(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	rooms := ta.app.Rooms()

	if err := rooms.Join(context.Background(), "room-1", "user-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := ta.dialer.conn("room-1")

	conn.speak("speaker-1", 25)

	waitFor(t, "reply clip to play", func() bool {
		return len(conn.player.playedPaths()) == 1
	})
	path := conn.player.playedPaths()[0]
	if !strings.HasPrefix(path, ta.dir) {
		t.Errorf("clip %q not under artifact dir %q", path, ta.dir)
	}

	// The fake player reports idle immediately, so the clip file is
	// released once the pipeline hands it over.
	waitFor(t, "artifacts to be released", func() bool {
		return artifactCount(t, ta.dir) == 0
	})

	if got := ta.llm.CallCount(); got != 1 {
		t.Errorf("LLM calls = %d, want 1", got)
	}
}

func TestShortBurstIsDiscarded(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	rooms := ta.app.Rooms()

	if err := rooms.Join(context.Background(), "room-1", "user-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := ta.dialer.conn("room-1")

	// Under the minimum frame count: discarded as noise before any
	// provider call.
	conn.speak("speaker-1", 3)

	time.Sleep(100 * time.Millisecond)
	if got := ta.stt.CallCount(); got != 0 {
		t.Errorf("STT calls = %d, want 0 for a noise burst", got)
	}
	if got := len(conn.player.playedPaths()); got != 0 {
		t.Errorf("played clips = %d, want 0", got)
	}
}

func TestProviderFailureLeavesNoArtifacts(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	ta.tts.Err = errors.New("synthesis backend down")
	rooms := ta.app.Rooms()

	if err := rooms.Join(context.Background(), "room-1", "user-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := ta.dialer.conn("room-1")

	conn.speak("speaker-1", 25)

	waitFor(t, "synthesis attempt", func() bool {
		return ta.tts.CallCount() == 1
	})
	waitFor(t, "artifacts to be released", func() bool {
		return artifactCount(t, ta.dir) == 0
	})
	if got := len(conn.player.playedPaths()); got != 0 {
		t.Errorf("played clips = %d, want 0 after synthesis failure", got)
	}
}

func TestLeaveClearsRoomMemory(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	rooms := ta.app.Rooms()

	if err := rooms.Join(context.Background(), "room-1", "user-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := ta.dialer.conn("room-1")

	conn.speak("speaker-1", 25)
	waitFor(t, "first reply", func() bool {
		return len(conn.player.playedPaths()) == 1
	})

	if err := rooms.Leave("room-1"); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	// Rejoin and speak again: the conversation starts over, so the LLM
	// sees no assistant turns from before the leave.
	if err := rooms.Join(context.Background(), "room-1", "user-1"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	conn2 := ta.dialer.conn("room-1")
	conn2.speak("speaker-1", 25)
	waitFor(t, "second reply", func() bool {
		return len(conn2.player.playedPaths()) == 1
	})

	call, ok := ta.llm.LastCall()
	if !ok {
		t.Fatal("no LLM calls recorded")
	}
	for _, msg := range call.Messages {
		if msg.Role == "assistant" {
			t.Fatalf("history not cleared: found assistant turn %q", msg.Content)
		}
	}
}
