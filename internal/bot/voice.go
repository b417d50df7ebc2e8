package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quenra/kalliope/internal/app"
)

// joinTimeout bounds the voice gateway handshake for /join.
const joinTimeout = 30 * time.Second

// VoiceCommands holds the dependencies for the /join and /leave slash
// commands.
type VoiceCommands struct {
	rooms   *app.RoomManager
	bot     *Bot
	guildID string
}

// NewVoiceCommands creates a VoiceCommands, registers its handlers with the
// bot's router, and wires the auto-leave notification.
func NewVoiceCommands(b *Bot, rooms *app.RoomManager) *VoiceCommands {
	vc := &VoiceCommands{
		rooms:   rooms,
		bot:     b,
		guildID: b.GuildID(),
	}
	vc.Register(b.Router())

	rooms.OnLeft(func(roomID, reason string) {
		if reason != app.LeaveReasonEmpty {
			return
		}
		// Voice channels carry their own text chat, so the notice lands in
		// the room that was left.
		if _, err := b.Session().ChannelMessageSend(roomID, "Everyone left, so I did too. Use `/join` to bring me back."); err != nil {
			slog.Warn("bot: auto-leave notice failed", "room_id", roomID, "err", err)
		}
	})

	return vc
}

// Register registers the /join and /leave commands with the router.
func (vc *VoiceCommands) Register(router *CommandRouter) {
	router.RegisterCommand("join", &discordgo.ApplicationCommand{
		Name:        "join",
		Description: "Join your current voice channel and start listening",
	}, vc.handleJoin)
	router.RegisterCommand("leave", &discordgo.ApplicationCommand{
		Name:        "leave",
		Description: "Leave your current voice channel",
	}, vc.handleLeave)
}

// handleJoin handles /join: connect to the invoker's voice channel.
func (vc *VoiceCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, err := vc.invokerVoiceChannel(s, i)
	if err != nil {
		RespondEphemeral(s, i, "You must be in a voice channel to use `/join`.")
		return
	}
	if vc.rooms.Joined(channelID) {
		RespondEphemeral(s, i, "I'm already in your voice channel.")
		return
	}

	// Defer since the voice handshake can take a moment.
	DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if err := vc.rooms.Join(ctx, channelID, interactionUserID(i)); err != nil {
		slog.Error("bot: join failed", "channel_id", channelID, "err", err)
		FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		// Joining is the one failure users must see even if they missed the
		// ephemeral reply, so it also goes to the channel itself.
		if _, msgErr := s.ChannelMessageSend(i.ChannelID, fmt.Sprintf("Could not join <#%s>: %v", channelID, err)); msgErr != nil {
			slog.Warn("bot: join failure notice failed", "channel_id", i.ChannelID, "err", msgErr)
		}
		return
	}

	FollowUp(s, i, fmt.Sprintf("Joined <#%s> — say something!", channelID))
}

// handleLeave handles /leave: disconnect from the invoker's voice channel.
func (vc *VoiceCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, err := vc.invokerVoiceChannel(s, i)
	if err != nil {
		RespondEphemeral(s, i, "You must be in a voice channel to use `/leave`.")
		return
	}
	if !vc.rooms.Joined(channelID) {
		RespondEphemeral(s, i, "I'm not in your voice channel.")
		return
	}

	if err := vc.rooms.Leave(channelID); err != nil {
		RespondError(s, i, fmt.Errorf("leave: %w", err))
		return
	}
	RespondEphemeral(s, i, fmt.Sprintf("Left <#%s>.", channelID))
}

// invokerVoiceChannel resolves the voice channel the interaction's invoker
// is currently in.
func (vc *VoiceCommands) invokerVoiceChannel(s *discordgo.Session, i *discordgo.InteractionCreate) (string, error) {
	userID := interactionUserID(i)
	if userID == "" {
		return "", fmt.Errorf("bot: interaction without a user")
	}
	vs, err := s.State.VoiceState(vc.guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", fmt.Errorf("bot: user %s is not in a voice channel", userID)
	}
	return vs.ChannelID, nil
}

// interactionUserID extracts the user ID from an interaction, handling both
// guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
