// Package commandtest builds slash interactions and records replies for tests.
package commandtest

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lyrabot/internal/command"
)

// Replier records every reply.
type Replier struct {
	mu       sync.Mutex
	Deferred bool
	Replies  []command.Response
}

func (r *Replier) Defer(bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deferred = true
	return nil
}

func (r *Replier) Reply(resp command.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Replies = append(r.Replies, resp)
	return nil
}

// Last returns the first embed of the most recent reply, or nil.
func (r *Replier) Last() *discordgo.MessageEmbed {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Replies) == 0 || len(r.Replies[len(r.Replies)-1].Embeds) == 0 {
		return nil
	}
	return r.Replies[len(r.Replies)-1].Embeds[0]
}

func (r *Replier) LastResponse() command.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Replies) == 0 {
		return command.Response{}
	}
	return r.Replies[len(r.Replies)-1]
}

// Opt builds a leaf option.
func Opt(name string, value any) *discordgo.ApplicationCommandInteractionDataOption {
	t := discordgo.ApplicationCommandOptionString
	switch value.(type) {
	case float64, int:
		t = discordgo.ApplicationCommandOptionInteger
		if i, ok := value.(int); ok {
			value = float64(i)
		}
	case bool:
		t = discordgo.ApplicationCommandOptionBoolean
	}
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: t, Value: value}
}

// Interaction describes a slash invocation.
type Interaction struct {
	Command    string
	Subcommand string
	Options    []*discordgo.ApplicationCommandInteractionDataOption
	GuildID    string
	ChannelID  string
	UserID     string
	Username   string
}

// Context builds a SlashInteractionContext with a recording replier.
func (in Interaction) Context() (*command.SlashInteractionContext, *Replier) {
	opts := in.Options
	if in.Subcommand != "" {
		opts = []*discordgo.ApplicationCommandInteractionDataOption{{
			Name:    in.Subcommand,
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Options: in.Options,
		}}
	}
	if in.Username == "" {
		in.Username = "user-" + in.UserID
	}
	if in.ChannelID == "" {
		in.ChannelID = "text-1"
	}

	ev := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   in.GuildID,
		ChannelID: in.ChannelID,
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    in.Command,
			Options: opts,
		},
	}}
	user := &discordgo.User{ID: in.UserID, Username: in.Username}
	if in.GuildID != "" {
		ev.Member = &discordgo.Member{User: user}
	} else {
		ev.User = user
	}

	r := &Replier{}
	return &command.SlashInteractionContext{Event: ev, Reply: r}, r
}
