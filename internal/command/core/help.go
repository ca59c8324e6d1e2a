// Package core holds the informational commands: /help, /limits and /stats.
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/internal/ui"
	"github.com/keshon/lyrabot/pkg/cmd"
)

type HelpCommand struct {
	Registry *cmd.Registry
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Get a list of available commands" }
func (c *HelpCommand) Category() string    { return config.CategoryInformation }

func (c *HelpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
	}
}

func (c *HelpCommand) Run(ctx context.Context, ic *command.SlashInteractionContext) error {
	return ic.EmbedEphemeral(ui.Primary("🎶 LyraBot Help", buildHelp(c.Registry.All())))
}

// buildHelp lists commands by category weight, expanding subcommands.
func buildHelp(all []cmd.Command) string {
	byCat := make(map[string][]cmd.Command)
	var cats []string
	for _, c := range all {
		cat := command.Category(c)
		if _, ok := byCat[cat]; !ok {
			cats = append(cats, cat)
		}
		byCat[cat] = append(byCat[cat], c)
	}
	sort.SliceStable(cats, func(i, j int) bool {
		wi, wj := config.CategoryWeights[cats[i]], config.CategoryWeights[cats[j]]
		if wi != wj {
			return wi < wj
		}
		return cats[i] < cats[j]
	})

	var sb strings.Builder
	for _, cat := range cats {
		fmt.Fprintf(&sb, "**%s**\n", cat)
		for _, c := range byCat[cat] {
			subs := subcommands(command.Slash(c))
			if len(subs) == 0 {
				fmt.Fprintf(&sb, "`/%s` - %s\n", c.Name(), c.Description())
				continue
			}
			for _, s := range subs {
				fmt.Fprintf(&sb, "`/%s %s` - %s\n", c.Name(), s.Name, s.Description)
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func subcommands(def *discordgo.ApplicationCommand) []*discordgo.ApplicationCommandOption {
	if def == nil {
		return nil
	}
	var out []*discordgo.ApplicationCommandOption
	for _, o := range def.Options {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			out = append(out, o)
		}
	}
	return out
}
