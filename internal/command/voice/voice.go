// Package voice implements the /voice slash command: join, leave and 24/7 pinning.
package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/music/player"
	"github.com/keshon/lyrabot/internal/ui"
)

// Locator finds the voice channel a member currently sits in.
type Locator interface {
	UserVoiceChannel(guildID, userID string) string
}

type VoiceCommand struct {
	Players *player.Manager
	Voice   Locator
	Log     *zap.SugaredLogger
}

func (c *VoiceCommand) Name() string        { return "voice" }
func (c *VoiceCommand) Description() string { return "Manage the bot's voice connection" }
func (c *VoiceCommand) Category() string    { return config.CategoryVoice }

func (c *VoiceCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Join your voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Leave the voice channel and clear the queue",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "247mode",
				Description: "Keep the bot in voice around the clock",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "enabled",
						Description: "Enable or disable 24/7 mode; omit to show the status",
					},
				},
			},
		},
	}
}

func (c *VoiceCommand) Run(ctx context.Context, ic *command.SlashInteractionContext) error {
	sub, opts := ic.Subcommand()
	p := c.Players.Get(ic.GuildID())

	switch sub {
	case "join":
		return c.runJoin(ctx, ic, p)
	case "leave":
		return c.runLeave(ctx, ic, p)
	case "247mode":
		on, set := opts.Bool("enabled")
		if !set {
			status := "❌ 24/7 mode is **disabled**."
			if p.Mode247() {
				status = "✅ 24/7 mode is **enabled**."
			}
			_ = ic.Usage.Commit(ctx)
			return ic.Embed(ui.Info("24/7 Mode", status))
		}
		return c.run247(ctx, ic, p, on)
	default:
		return ic.EmbedEphemeral(ui.Error("Unknown Subcommand", fmt.Sprintf("Unknown subcommand: %s", sub)))
	}
}

func (c *VoiceCommand) runJoin(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer) error {
	channel := c.Voice.UserVoiceChannel(ic.GuildID(), ic.User().ID)
	joined, err := p.Join(ctx, channel, ic.ChannelID())
	if err != nil {
		return c.fail(ic, err)
	}
	_ = ic.Usage.Commit(ctx)
	if !joined {
		return ic.Embed(ui.Info("Already Connected", fmt.Sprintf("I'm already in <#%s>.", channel)))
	}
	return ic.Embed(ui.Success("Joined Voice Channel", fmt.Sprintf("🔊 Connected to <#%s>.", channel)))
}

func (c *VoiceCommand) runLeave(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer) error {
	if p.State() == player.StateIdle {
		return c.fail(ic, player.ErrNotConnected)
	}
	if err := p.Leave(ctx); err != nil {
		return c.fail(ic, err)
	}
	_ = ic.Usage.Commit(ctx)
	return ic.Embed(ui.Success("Left Voice Channel", "👋 Disconnected and cleared the queue."))
}

func (c *VoiceCommand) run247(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, on bool) error {
	channel := c.Voice.UserVoiceChannel(ic.GuildID(), ic.User().ID)
	if _, err := p.Set247(ctx, on, channel, ic.ChannelID()); err != nil {
		return c.fail(ic, err)
	}
	_ = ic.Usage.Commit(ctx)
	if on {
		return ic.Embed(ui.Success("24/7 Mode Enabled", "🔒 I'll stay in the voice channel even when it's empty."))
	}
	return ic.Embed(ui.Success("24/7 Mode Disabled", "🔓 I'll leave when the channel is empty or nothing is playing."))
}

func (c *VoiceCommand) fail(ic *command.SlashInteractionContext, err error) error {
	var voiceErr *player.VoiceError
	var e *discordgo.MessageEmbed
	expected := true
	switch {
	case errors.Is(err, player.ErrNotInVoice):
		e = ui.Error("Voice Channel Required", "You need to be in a voice channel to use this command.")
	case errors.Is(err, player.ErrConnectedElsewhere):
		e = ui.Error("Already Connected", "I'm already connected to a different voice channel.")
	case errors.Is(err, player.ErrNotConnected):
		e = ui.Error("Not Connected", "I'm not connected to a voice channel.")
	case errors.As(err, &voiceErr) && voiceErr.Op == "leave":
		// local state is already reset
		e = ui.Warning("Left Voice Channel", "Disconnected, but Discord did not confirm the leave.")
		expected = false
	default:
		e = ui.Error("Voice Error", "Failed to connect to the voice channel.")
		expected = false
	}
	if !expected {
		logging.OrNop(c.Log).Warnw("Voice command failed", "guild", ic.GuildID(), "error", err)
	}
	if rerr := ic.EmbedEphemeral(e); rerr != nil {
		return rerr
	}
	if expected {
		return nil
	}
	return err
}
