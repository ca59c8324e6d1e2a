package middleware

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/storage"
	"github.com/keshon/lyrabot/internal/ui"
	"github.com/keshon/lyrabot/pkg/cmd"
)

// Gate decides whether a user may run an operation and records charged uses.
type Gate interface {
	CanUse(ctx context.Context, userID, guildID, op string) access.Decision
	IncrementUsage(ctx context.Context, userID string) error
}

// Settings reads string settings such as the contact link.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// WithUsageGate checks the usage limiter before running the command. Denials
// are answered here; allowed metered calls get a Usage the command commits
// on success.
func WithUsageGate(gate Gate, settings Settings, fallbackContact string, log *zap.SugaredLogger) cmd.Middleware {
	log = logging.OrNop(log)
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			ic, ok := slash(inv)
			if !ok {
				return c.Run(ctx, inv)
			}

			d := gate.CanUse(ctx, inv.UserID, inv.GuildID, inv.Operation)
			if !d.Allowed {
				log.Infow("Command denied by usage gate", "user", inv.UserID, "guild", inv.GuildID, "op", inv.Operation, "reason", d.Reason)
				return ic.Reply.Reply(denial(ctx, d, settings, fallbackContact, log))
			}

			if d.Chargeable() {
				user := inv.UserID
				ic.Usage = command.NewUsage(func(ctx context.Context) error {
					err := gate.IncrementUsage(ctx, user)
					if err != nil {
						log.Warnw("Usage not recorded", "user", user, "error", err)
					}
					return err
				})
			}
			return c.Run(ctx, inv)
		})
	}
}

func denial(ctx context.Context, d access.Decision, settings Settings, fallback string, log *zap.SugaredLogger) command.Response {
	var embed *discordgo.MessageEmbed
	if d.Reason == access.ReasonDailyLimitReached {
		embed = ui.LimitReached(d.ResetAt)
	} else {
		embed = ui.Error("Unavailable", d.Message())
	}

	link := fallback
	if settings != nil {
		v, err := settings.GetSetting(ctx, storage.SettingContactLink)
		switch {
		case err == nil && v != "":
			link = v
		case err != nil && !errors.Is(err, access.ErrNotFound):
			log.Warnw("Contact link unavailable", "error", err)
		}
	}
	return command.Response{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: ui.ContactButton(link),
		Ephemeral:  true,
	}
}
