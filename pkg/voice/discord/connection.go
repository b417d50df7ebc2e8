package discord

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quenra/kalliope/pkg/audio"
	"github.com/quenra/kalliope/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Connection = (*Connection)(nil)

const (
	// defaultSilenceWindow is the gap after a speaker's last packet that
	// closes their capture stream.
	defaultSilenceWindow = 1500 * time.Millisecond

	// frameChannelBuffer sizes each speaker's frame channel. At one frame
	// per 20 ms this is over a second of slack before frames are dropped.
	frameChannelBuffer = 64
)

// ErrConnectionClosed is the terminal error reported by capture streams that
// were cut off by [Connection.Close] instead of ending on silence.
var ErrConnectionClosed = errors.New("discord: connection closed")

// errPlayerExists is returned by NewPlayer when a player was already created.
var errPlayerExists = errors.New("discord: connection already has a player")

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [voice.Connection] interface. Incoming Opus packets are demuxed by SSRC
// into per-speaker capture streams; each stream self-terminates after the
// silence window elapses without a packet from its speaker.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string
	roomID  string

	silenceWindow time.Duration
	recv          <-chan *discordgo.Packet

	mu       sync.Mutex
	streams  map[uint32]*stream
	ssrcUser map[uint32]string // SSRC -> user ID, fed by speaking updates
	speakCb  func(voice.Capture)
	occCb    func(count int)
	player   *Player

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC is called during Close to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the receive loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, roomID string, silenceWindow time.Duration) *Connection {
	c := &Connection{
		vc:            vc,
		session:       session,
		guildID:       guildID,
		roomID:        roomID,
		silenceWindow: silenceWindow,
		streams:       make(map[uint32]*stream),
		ssrcUser:      make(map[uint32]string),
		done:          make(chan struct{}),
	}
	if vc != nil {
		c.recv = vc.OpusRecv
		c.disconnectVC = vc.Disconnect
		// Speaking updates carry the SSRC -> user mapping.
		vc.AddHandler(c.handleSpeakingUpdate)
	}
	if session != nil {
		c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)
	}

	go c.recvLoop()
	return c
}

// RoomID identifies the voice channel this connection is joined to.
func (c *Connection) RoomID() string { return c.roomID }

// OnSpeakingStart registers cb for new capture streams. Only one callback may
// be registered; subsequent calls replace the previous one.
func (c *Connection) OnSpeakingStart(cb func(voice.Capture)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakCb = cb
}

// OnOccupancy registers cb for room occupancy changes. Only one callback may
// be registered; subsequent calls replace the previous one.
func (c *Connection) OnOccupancy(cb func(count int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occCb = cb
}

// NewPlayer creates the connection's playback player. A connection supports
// at most one player; a second call returns an error.
func (c *Connection) NewPlayer() (voice.Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		return nil, errPlayerExists
	}
	if c.vc == nil {
		return nil, errors.New("discord: no voice connection")
	}
	c.player = newPlayer(c.vc.OpusSend, c.vc.Speaking)
	return c.player, nil
}

// Close cleanly tears down the voice connection, ends all capture streams
// with [ErrConnectionClosed], and stops the player. It is safe to call more
// than once; subsequent calls return nil.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}

		c.mu.Lock()
		streams := c.streams
		c.streams = make(map[uint32]*stream)
		player := c.player
		c.mu.Unlock()

		for _, st := range streams {
			st.end(ErrConnectionClosed)
		}
		if player != nil {
			if cErr := player.Close(); cErr != nil {
				slog.Warn("discord: player close error", "room_id", c.roomID, "err", cErr)
			}
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// recvLoop reads Opus packets from Discord, demuxes them by SSRC, decodes
// them to PCM, and delivers frames to per-speaker capture streams.
func (c *Connection) recvLoop() {
	// Each SSRC gets its own decoder to maintain state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.recv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			c.handlePacket(pkt, decoders)
		}
	}
}

// handlePacket routes one Opus packet to its speaker's stream, creating the
// stream (and announcing the capture) on the first packet of a burst.
func (c *Connection) handlePacket(pkt *discordgo.Packet, decoders map[uint32]*opusDecoder) {
	ssrc := pkt.SSRC

	dec, ok := decoders[ssrc]
	if !ok {
		var err error
		dec, err = newOpusDecoder()
		if err != nil {
			slog.Error("discord: failed to create opus decoder", "ssrc", ssrc, "err", err)
			return
		}
		decoders[ssrc] = dec
	}

	c.mu.Lock()
	st, exists := c.streams[ssrc]
	var speakCb func(voice.Capture)
	var speakerID string
	if !exists {
		st = newStream(ssrc)
		st.timer = time.AfterFunc(c.silenceWindow, func() {
			c.endStream(ssrc, nil)
		})
		c.streams[ssrc] = st
		speakCb = c.speakCb
		speakerID = c.speakerIDLocked(ssrc)
	}
	c.mu.Unlock()

	if !exists && speakCb != nil {
		sub := voice.Capture{
			SpeakerID: speakerID,
			Frames:    st.frames,
			Err:       st.Err,
		}
		go speakCb(sub)
	}

	pcm, err := dec.decode(pkt.Opus)
	if err != nil {
		slog.Warn("discord: opus decode error", "ssrc", ssrc, "err", err)
		return
	}

	st.deliver(audio.Frame{
		PCM:        pcm,
		SampleRate: opusSampleRate,
		Channels:   opusChannels,
		Timestamp:  time.Since(st.start),
	})
	st.timer.Reset(c.silenceWindow)
}

// endStream removes the stream for ssrc and closes it with err.
func (c *Connection) endStream(ssrc uint32, err error) {
	c.mu.Lock()
	st, ok := c.streams[ssrc]
	if ok {
		delete(c.streams, ssrc)
	}
	c.mu.Unlock()
	if ok {
		st.end(err)
	}
}

// speakerIDLocked resolves an SSRC to a user ID. Falls back to the decimal
// SSRC when no speaking update has arrived yet. Must be called with c.mu held.
func (c *Connection) speakerIDLocked(ssrc uint32) string {
	if id, ok := c.ssrcUser[ssrc]; ok && id != "" {
		return id
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}

// handleSpeakingUpdate records the SSRC -> user mapping Discord announces
// when a user starts or stops transmitting.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	c.mu.Lock()
	c.ssrcUser[uint32(su.SSRC)] = su.UserID
	c.mu.Unlock()
}

// handleVoiceStateUpdate reports occupancy changes for this connection's
// channel. The count excludes the bot's own identity.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}
	// Only react when the update touches our channel.
	joined := vsu.ChannelID == c.roomID
	left := vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == c.roomID
	if !joined && !left {
		return
	}

	count := c.occupantCount()

	c.mu.Lock()
	cb := c.occCb
	c.mu.Unlock()
	if cb != nil {
		go cb(count)
	}
}

// occupantCount counts users currently in this connection's channel,
// excluding the bot itself.
func (c *Connection) occupantCount() int {
	if c.session == nil || c.session.State == nil {
		return 0
	}
	g, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return 0
	}
	own := ""
	if c.session.State.User != nil {
		own = c.session.State.User.ID
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == c.roomID && vs.UserID != own {
			n++
		}
	}
	return n
}

// stream is one speaker's silence-bounded frame subscription.
type stream struct {
	ssrc   uint32
	frames chan audio.Frame
	timer  *time.Timer
	start  time.Time

	mu     sync.Mutex
	err    error
	closed bool
}

func newStream(ssrc uint32) *stream {
	return &stream{
		ssrc:   ssrc,
		frames: make(chan audio.Frame, frameChannelBuffer),
		start:  time.Now(),
	}
}

// deliver pushes a frame unless the stream already ended. A full channel
// drops the frame rather than stall the receive loop.
func (s *stream) deliver(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- f:
	default:
		slog.Warn("discord: capture stream full, dropping frame", "ssrc", s.ssrc)
	}
}

// end closes the stream with err as its terminal error. Idempotent.
func (s *stream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.frames)
}

// Err reports the terminal error. Valid once the frames channel is closed.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
