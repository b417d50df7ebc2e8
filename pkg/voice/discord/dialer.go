// Package discord implements the voice contracts on top of Discord voice
// channels via the bwmarrin/discordgo library. It bridges Discord's
// Opus-based voice transport with the PCM frame pipeline: incoming packets
// are demuxed by SSRC into silence-bounded per-speaker capture streams, and
// finished reply clips are encoded back to Opus for playback.
//
// The dialer requires an active *discordgo.Session (owned by the bot layer)
// and a guild ID. Room IDs are Discord voice channel IDs.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quenra/kalliope/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Dialer = (*Dialer)(nil)

// Dialer joins Discord voice channels and returns active connections.
// It is safe for concurrent use.
type Dialer struct {
	session       *discordgo.Session
	guildID       string
	silenceWindow time.Duration
}

// DialerOption configures a [Dialer].
type DialerOption func(*Dialer)

// WithSilenceWindow overrides the silence gap that closes a speaker's
// capture stream. The default is 1500 ms.
func WithSilenceWindow(d time.Duration) DialerOption {
	return func(dl *Dialer) {
		if d > 0 {
			dl.silenceWindow = d
		}
	}
}

// NewDialer creates a Dialer for the given session and guild.
func NewDialer(session *discordgo.Session, guildID string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		session:       session,
		guildID:       guildID,
		silenceWindow: defaultSilenceWindow,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Join connects to the voice channel identified by roomID. The supplied ctx
// governs the join attempt only; the returned Connection lives until Close.
func (d *Dialer) Join(ctx context.Context, roomID string) (voice.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// mute=false (we send audio), deaf=false (we receive audio).
	vc, err := d.session.ChannelVoiceJoin(d.guildID, roomID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", roomID, err)
	}

	conn := newConnection(vc, d.session, d.guildID, roomID, d.silenceWindow)
	return conn, nil
}
