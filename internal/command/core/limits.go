package core

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/internal/ui"
)

// ProbeOperation is the limited operation /limits evaluates.
const ProbeOperation = "skip"

// Checker evaluates a usage decision without spending quota.
type Checker interface {
	CanUse(ctx context.Context, userID, guildID, op string) access.Decision
	Quota() int
}

type LimitsCommand struct {
	Limiter Checker
}

func (c *LimitsCommand) Name() string        { return "limits" }
func (c *LimitsCommand) Description() string { return "Show your role and remaining daily uses" }
func (c *LimitsCommand) Category() string    { return config.CategoryInformation }

func (c *LimitsCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
	}
}

func (c *LimitsCommand) Run(ctx context.Context, ic *command.SlashInteractionContext) error {
	d := c.Limiter.CanUse(ctx, ic.User().ID, ic.GuildID(), ProbeOperation)

	e := ui.Info("Your Usage Limits", "")
	e.Fields = []*discordgo.MessageEmbedField{
		{Name: "👤 Role", Value: d.Role.Display(), Inline: true},
	}

	switch {
	case d.Remaining == access.Unmetered:
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "🎟️ Daily Uses", Value: "♾️ Unlimited", Inline: true})
		e.Description = d.Message()
	case d.Reason == access.ReasonUnavailable:
		e.Description = d.Message()
	default:
		e.Fields = append(e.Fields,
			&discordgo.MessageEmbedField{Name: "🎟️ Daily Uses", Value: fmt.Sprintf("%d / %d remaining", d.Remaining, c.Limiter.Quota()), Inline: true},
			&discordgo.MessageEmbedField{Name: "🔄 Next Reset", Value: fmt.Sprintf("%s (%s)", ui.Full(d.ResetAt), ui.Relative(d.ResetAt)), Inline: false},
		)
		e.Description = "Skip, volume, queue and now-playing spend one use each. Playback controls are free."
	}
	return ic.EmbedEphemeral(e)
}
