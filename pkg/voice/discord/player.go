package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quenra/kalliope/pkg/audio"
)

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("discord: player closed")

// Player plays WAV clips into a Discord voice channel. It converts clip
// audio to Discord's 48 kHz stereo format, encodes it to Opus frame by
// frame, and feeds discordgo's send channel, which paces transmission at the
// 20 ms frame rate.
//
// At most one clip plays at a time; Play interrupts and replaces an
// in-flight clip. Player is safe for concurrent use.
type Player struct {
	send     chan<- []byte
	speaking func(bool) error

	mu     sync.Mutex
	cancel context.CancelFunc
	idleCb func(path string)
	closed bool
	wg     sync.WaitGroup
}

// newPlayer creates a Player feeding send. speaking toggles the Discord
// speaking indicator and may be nil in tests.
func newPlayer(send chan<- []byte, speaking func(bool) error) *Player {
	return &Player{
		send:     send,
		speaking: speaking,
	}
}

// OnIdle registers cb to be invoked with the clip path each time a clip
// finishes or is interrupted. Only one callback may be registered;
// subsequent calls replace it.
func (p *Player) OnIdle(cb func(path string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleCb = cb
}

// Play starts playing the WAV file at path, interrupting any clip still in
// flight. It returns once playback has started; the clip finishes
// asynchronously and is reported through the OnIdle callback.
func (p *Player) Play(path string) error {
	hdr, pcm, err := audio.ReadWAVFile(path)
	if err != nil {
		return fmt.Errorf("discord: read clip %q: %w", path, err)
	}
	pcm = audio.ConvertFormat(pcm,
		audio.Format{SampleRate: hdr.SampleRate, Channels: hdr.Channels},
		audio.Format{SampleRate: opusSampleRate, Channels: opusChannels},
	)

	// A fresh encoder per clip keeps encoder state from bleeding between
	// unrelated clips.
	enc, err := newOpusEncoder()
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go p.playLoop(ctx, path, pcm, enc)
	return nil
}

// Stop interrupts the in-flight clip, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}

// Close stops playback and waits for the play goroutine to exit.
func (p *Player) Close() error {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// playLoop encodes and sends the clip frame by frame until done or
// cancelled. The final partial frame is zero-padded to a full Opus frame.
func (p *Player) playLoop(ctx context.Context, path string, pcm []byte, enc *opusEncoder) {
	defer p.wg.Done()
	defer p.fireIdle(path)

	p.setSpeaking(true)
	defer p.setSpeaking(false)

	for off := 0; off < len(pcm); off += opusFrameBytes {
		chunk := pcm[off:min(off+opusFrameBytes, len(pcm))]
		if len(chunk) < opusFrameBytes {
			padded := make([]byte, opusFrameBytes)
			copy(padded, chunk)
			chunk = padded
		}

		data, err := enc.encode(chunk)
		if err != nil {
			slog.Warn("discord: opus encode error", "clip", path, "err", err)
			return
		}

		select {
		case p.send <- data:
		case <-ctx.Done():
			return
		}
	}
}

// fireIdle invokes the idle callback with the finished clip's path.
func (p *Player) fireIdle(path string) {
	p.mu.Lock()
	cb := p.idleCb
	p.mu.Unlock()
	if cb != nil {
		cb(path)
	}
}

// setSpeaking toggles the Discord speaking indicator, logging any errors.
func (p *Player) setSpeaking(b bool) {
	if p.speaking == nil {
		return
	}
	if err := p.speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}
