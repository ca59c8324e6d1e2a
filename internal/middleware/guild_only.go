// Package middleware holds cmd.Middleware wrappers for Discord commands.
package middleware

import (
	"context"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/ui"
	"github.com/keshon/lyrabot/pkg/cmd"
)

func slash(inv *cmd.Invocation) (*command.SlashInteractionContext, bool) {
	ic, ok := inv.Data.(*command.SlashInteractionContext)
	return ic, ok
}

// WithGuildOnly refuses commands invoked outside a guild.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if inv.GuildID != "" {
				return c.Run(ctx, inv)
			}
			if ic, ok := slash(inv); ok {
				return ic.EmbedEphemeral(ui.Error("Server Only", "This command can only be used in a server."))
			}
			return nil
		})
	}
}
