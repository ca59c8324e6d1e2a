package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/storage"
	"github.com/keshon/lyrabot/internal/ui"
)

// History reads per-guild play history.
type History interface {
	TopListeners(ctx context.Context, guildID string, limit int) ([]storage.ListenerStat, error)
	RecentSongs(ctx context.Context, guildID string, limit int) ([]storage.SongRecord, error)
}

const statsLimit = 10

var medals = []string{"🥇", "🥈", "🥉"}

type StatsCommand struct {
	History History
	Log     *zap.SugaredLogger
}

func (c *StatsCommand) Name() string        { return "stats" }
func (c *StatsCommand) Description() string { return "Listening statistics for this server" }
func (c *StatsCommand) Category() string    { return config.CategoryInformation }

func (c *StatsCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "toplisteners",
				Description: "Members who requested the most songs",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "history",
				Description: "Recently played songs",
			},
		},
	}
}

func (c *StatsCommand) Run(ctx context.Context, ic *command.SlashInteractionContext) error {
	sub, _ := ic.Subcommand()
	var b strings.Builder

	switch sub {
	case "toplisteners":
		top, err := c.History.TopListeners(ctx, ic.GuildID(), statsLimit)
		if err != nil {
			return c.failed(ic, err)
		}
		if len(top) == 0 {
			return ic.EmbedEphemeral(ui.Info("Top Listeners", "No songs have been played here yet."))
		}
		for i, st := range top {
			rank := fmt.Sprintf("**%d.**", i+1)
			if i < len(medals) {
				rank = medals[i]
			}
			fmt.Fprintf(&b, "%s <@%s> with **%d** song(s)\n", rank, st.UserID, st.Plays)
		}
		_ = ic.Usage.Commit(ctx)
		return ic.Embed(ui.Primary("🏆 Top Listeners", b.String()))

	case "history":
		songs, err := c.History.RecentSongs(ctx, ic.GuildID(), statsLimit)
		if err != nil {
			return c.failed(ic, err)
		}
		if len(songs) == 0 {
			return ic.EmbedEphemeral(ui.Info("Recently Played", "No songs have been played here yet."))
		}
		for _, s := range songs {
			fmt.Fprintf(&b, "%s **%s** %s", ui.PlatformEmoji(s.Platform), s.Title, ui.Relative(s.PlayedAt))
			if s.UserID != "" {
				fmt.Fprintf(&b, " by <@%s>", s.UserID)
			}
			b.WriteString("\n")
		}
		_ = ic.Usage.Commit(ctx)
		return ic.Embed(ui.Primary("🕘 Recently Played", b.String()))

	default:
		return ic.EmbedEphemeral(ui.Error("Unknown Subcommand", fmt.Sprintf("Unknown subcommand: %s", sub)))
	}
}

func (c *StatsCommand) failed(ic *command.SlashInteractionContext, err error) error {
	logging.OrNop(c.Log).Errorw("Stats query failed", "guild", ic.GuildID(), "error", err)
	if rerr := ic.EmbedEphemeral(ui.Error("Database Error", "Statistics are unavailable right now.")); rerr != nil {
		return rerr
	}
	return err
}
