package command

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Response is what a command sends back to the invoking user.
type Response struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

// Replier answers an interaction. The first Reply is the interaction response;
// later ones, or any reply after Defer, are followups.
type Replier interface {
	Defer(ephemeral bool) error
	Reply(r Response) error
}

// Usage is a pending quota charge handed to a command by the usage gate.
// The command commits it once the operation succeeded. A nil Usage is valid
// and commits nothing.
type Usage struct {
	once   sync.Once
	charge func(ctx context.Context) error
	err    error
}

func NewUsage(charge func(ctx context.Context) error) *Usage {
	return &Usage{charge: charge}
}

// Commit charges the quota at most once.
func (u *Usage) Commit(ctx context.Context) error {
	if u == nil || u.charge == nil {
		return nil
	}
	u.once.Do(func() { u.err = u.charge(ctx) })
	return u.err
}

// SlashInteractionContext is what the runtime passes to slash commands.
type SlashInteractionContext struct {
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate
	Reply   Replier
	Usage   *Usage
}

func (c *SlashInteractionContext) GuildID() string   { return c.Event.GuildID }
func (c *SlashInteractionContext) ChannelID() string { return c.Event.ChannelID }

// User returns the invoking user for guild and DM interactions alike.
func (c *SlashInteractionContext) User() *discordgo.User {
	e := c.Event
	if e.Member != nil && e.Member.User != nil {
		return e.Member.User
	}
	if e.User != nil {
		return e.User
	}
	return &discordgo.User{ID: "unknown", Username: "Unknown"}
}

func (c *SlashInteractionContext) Data() discordgo.ApplicationCommandInteractionData {
	return c.Event.ApplicationCommandData()
}

// Subcommand returns the invoked subcommand and its options. Commands without
// subcommands yield an empty name and the top-level options.
func (c *SlashInteractionContext) Subcommand() (string, Options) {
	opts := c.Data().Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Name, Options(opts[0].Options)
	}
	return "", Options(opts)
}

// Operation is the name the usage gate classifies: the subcommand, or the
// command itself when it has none.
func (c *SlashInteractionContext) Operation() string {
	if sub, _ := c.Subcommand(); sub != "" {
		return sub
	}
	return c.Data().Name
}

// Reply helpers.

func (c *SlashInteractionContext) Embed(e *discordgo.MessageEmbed) error {
	return c.Reply.Reply(Response{Embeds: []*discordgo.MessageEmbed{e}})
}

func (c *SlashInteractionContext) EmbedEphemeral(e *discordgo.MessageEmbed) error {
	return c.Reply.Reply(Response{Embeds: []*discordgo.MessageEmbed{e}, Ephemeral: true})
}

// Options is a flat option list with typed accessors. Missing or mistyped
// options yield zero values.
type Options []*discordgo.ApplicationCommandInteractionDataOption

func (o Options) find(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range o {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

func (o Options) Has(name string) bool { return o.find(name) != nil }

func (o Options) String(name string) string {
	if opt := o.find(name); opt != nil {
		if s, ok := opt.Value.(string); ok {
			return s
		}
	}
	return ""
}

func (o Options) Int(name string) (int, bool) {
	opt := o.find(name)
	if opt == nil {
		return 0, false
	}
	switch v := opt.Value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func (o Options) Bool(name string) (bool, bool) {
	if opt := o.find(name); opt != nil {
		b, ok := opt.Value.(bool)
		return b, ok
	}
	return false, false
}

// UserID returns a user option's snowflake.
func (o Options) UserID(name string) string { return o.String(name) }
