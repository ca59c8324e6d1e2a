// Package command adapts Discord slash commands to the transport-agnostic
// core in pkg/cmd.
package command

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lyrabot/pkg/cmd"
)

// SlashProvider is implemented by commands registered as slash commands.
type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// DiscordMeta is exposed by the adapter so help and middleware can read the
// category without knowing the concrete command type.
type DiscordMeta interface {
	Category() string
}

// DiscordCommand is what individual Discord commands implement.
type DiscordCommand interface {
	Name() string
	Description() string
	Category() string
	SlashDefinition() *discordgo.ApplicationCommand
	Run(ctx context.Context, ic *SlashInteractionContext) error
}

// DiscordAdapter makes a DiscordCommand a cmd.Command.
type DiscordAdapter struct {
	Cmd DiscordCommand
}

func (a *DiscordAdapter) Name() string        { return a.Cmd.Name() }
func (a *DiscordAdapter) Description() string { return a.Cmd.Description() }
func (a *DiscordAdapter) Category() string    { return a.Cmd.Category() }

func (a *DiscordAdapter) SlashDefinition() *discordgo.ApplicationCommand {
	return a.Cmd.SlashDefinition()
}

func (a *DiscordAdapter) Run(ctx context.Context, inv *cmd.Invocation) error {
	ic, ok := inv.Data.(*SlashInteractionContext)
	if !ok {
		return fmt.Errorf("command %s: unsupported invocation payload %T", a.Cmd.Name(), inv.Data)
	}
	return a.Cmd.Run(ctx, ic)
}

// RegisterCommand adds a Discord command to reg with middlewares applied
// (first one outermost).
func RegisterCommand(reg *cmd.Registry, c DiscordCommand, mws ...cmd.Middleware) error {
	return reg.Register(cmd.Apply(&DiscordAdapter{Cmd: c}, mws...))
}

// Invocation builds the core invocation for a slash interaction.
func Invocation(ic *SlashInteractionContext) *cmd.Invocation {
	return &cmd.Invocation{
		Operation: ic.Operation(),
		UserID:    ic.User().ID,
		GuildID:   ic.GuildID(),
		Data:      ic,
	}
}

// Slash returns the slash definition behind a possibly wrapped command.
func Slash(c cmd.Command) *discordgo.ApplicationCommand {
	if sp, ok := cmd.Root(c).(SlashProvider); ok {
		return sp.SlashDefinition()
	}
	return nil
}

// Category returns the help category behind a possibly wrapped command.
func Category(c cmd.Command) string {
	if m, ok := cmd.Root(c).(DiscordMeta); ok {
		return m.Category()
	}
	return ""
}
