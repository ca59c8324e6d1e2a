// Command build-readme renders README.md from README.md.tmpl, filling in the
// slash command reference from the command registry.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"text/template"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/command/admin"
	"github.com/keshon/lyrabot/internal/command/core"
	"github.com/keshon/lyrabot/internal/command/music"
	"github.com/keshon/lyrabot/internal/command/voice"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/pkg/cmd"
)

func main() {
	if err := build("README.md.tmpl", "README.md"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func build(tmplPath, outPath string) error {
	tmplData, err := os.ReadFile(tmplPath)
	if err != nil {
		return err
	}
	tmpl, err := template.New("readme").Parse(string(tmplData))
	if err != nil {
		return err
	}

	reg, err := registry()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, map[string]any{"CommandSections": sections(reg)}); err != nil {
		return err
	}
	return os.WriteFile(outPath, out.Bytes(), 0o644)
}

// registry registers every command without dependencies; only the slash
// definitions are read.
func registry() (*cmd.Registry, error) {
	reg := cmd.NewRegistry()
	for _, c := range []command.DiscordCommand{
		&core.HelpCommand{Registry: reg},
		&core.LimitsCommand{},
		&core.StatsCommand{},
		&music.MusicCommand{},
		&voice.VoiceCommand{},
		&admin.AdminCommand{},
	} {
		if err := command.RegisterCommand(reg, c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func sections(reg *cmd.Registry) string {
	byCat := make(map[string][]cmd.Command)
	var cats []string
	for _, c := range reg.All() {
		cat := command.Category(c)
		if _, ok := byCat[cat]; !ok {
			cats = append(cats, cat)
		}
		byCat[cat] = append(byCat[cat], c)
	}
	sort.SliceStable(cats, func(i, j int) bool {
		return config.CategoryWeights[cats[i]] < config.CategoryWeights[cats[j]]
	})

	var buf bytes.Buffer
	for _, cat := range cats {
		fmt.Fprintf(&buf, "### %s\n\n", cat)
		for _, c := range byCat[cat] {
			def := command.Slash(c)
			var subs []*discordgo.ApplicationCommandOption
			if def != nil {
				for _, o := range def.Options {
					if o.Type == discordgo.ApplicationCommandOptionSubCommand {
						subs = append(subs, o)
					}
				}
			}
			if len(subs) == 0 {
				fmt.Fprintf(&buf, "* **`/%s`**\n  %s\n\n", c.Name(), c.Description())
				continue
			}
			for _, s := range subs {
				fmt.Fprintf(&buf, "* **`/%s %s`**\n  %s\n\n", c.Name(), s.Name, s.Description)
			}
		}
	}
	return buf.String()
}
