package command

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionReplier answers through the Discord interaction API.
type InteractionReplier struct {
	Session     *discordgo.Session
	Interaction *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

func NewInteractionReplier(s *discordgo.Session, i *discordgo.Interaction) *InteractionReplier {
	return &InteractionReplier{Session: s, Interaction: i}
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Defer acknowledges the interaction so slow work can follow up later.
func (r *InteractionReplier) Defer(ephemeral bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded {
		return nil
	}
	err := r.Session.InteractionRespond(r.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
	if err == nil {
		r.responded = true
	}
	return err
}

func (r *InteractionReplier) Reply(resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.responded {
		_, err := r.Session.FollowupMessageCreate(r.Interaction, true, &discordgo.WebhookParams{
			Content:    resp.Content,
			Embeds:     resp.Embeds,
			Components: resp.Components,
			Flags:      flags(resp.Ephemeral),
		})
		return err
	}

	err := r.Session.InteractionRespond(r.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    resp.Content,
			Embeds:     resp.Embeds,
			Components: resp.Components,
			Flags:      flags(resp.Ephemeral),
		},
	})
	if err == nil {
		r.responded = true
	}
	return err
}
