// Package bot provides the Discord gateway layer for Kalliope. It owns the
// discordgo.Session lifecycle and routes slash command interactions to
// registered handlers.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	voicediscord "github.com/quenra/kalliope/pkg/voice/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token (e.g., "Bot MTIz...").
	Token string

	// GuildID is the target guild (single-guild deployment).
	GuildID string

	// SilenceWindow is how long a speaker must stay silent before their
	// utterance is considered finished. Zero means the dialer default.
	SilenceWindow time.Duration
}

// Bot owns the Discord gateway connection and routes interactions to
// registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	dialer    *voicediscord.Dialer
	router    *CommandRouter
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the interaction
// handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("bot: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("bot: open session: %w", err)
	}

	var dialerOpts []voicediscord.DialerOption
	if cfg.SilenceWindow > 0 {
		dialerOpts = append(dialerOpts, voicediscord.WithSilenceWindow(cfg.SilenceWindow))
	}

	b := &Bot{
		session: session,
		dialer:  voicediscord.NewDialer(session, cfg.GuildID, dialerOpts...),
		router:  NewCommandRouter(),
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Dialer returns the voice dialer for joining voice channels.
func (b *Bot) Dialer() *voicediscord.Dialer {
	return b.dialer
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session. Used by subsystems that
// need direct Discord API access (e.g., channel messages on auto-leave).
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Ready reports whether the gateway connection is established. Used as a
// readiness checker.
func (b *Bot) Ready() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil || b.session.State == nil || b.session.State.User == nil {
		return fmt.Errorf("bot: gateway not connected")
	}
	return nil
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("bot: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("bot: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("bot: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
