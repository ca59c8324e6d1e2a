package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/storage"
	"github.com/keshon/lyrabot/pkg/cmd"
)

// History persists command invocations.
type History interface {
	AppendCommandHistory(ctx context.Context, rec storage.CommandHistoryRecord) error
}

// WithCommandLogger logs every invocation and appends it to the guild's
// command history. History failures are only logged.
func WithCommandLogger(history History, log *zap.SugaredLogger) cmd.Middleware {
	log = logging.OrNop(log)
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)

			fields := []any{"command", c.Name(), "op", inv.Operation, "user", inv.UserID, "guild", inv.GuildID, "elapsed", time.Since(start)}
			if err != nil {
				log.Errorw("Command failed", append(fields, "error", err)...)
			} else {
				log.Infow("Command handled", fields...)
			}

			ic, ok := slash(inv)
			if !ok || history == nil || inv.GuildID == "" {
				return err
			}
			_, opts := ic.Subcommand()
			rec := storage.CommandHistoryRecord{
				GuildID:   inv.GuildID,
				ChannelID: ic.ChannelID(),
				UserID:    inv.UserID,
				Username:  ic.User().Username,
				Command:   commandLine(c.Name(), inv.Operation),
				Param:     params(opts),
			}
			if herr := history.AppendCommandHistory(ctx, rec); herr != nil {
				log.Warnw("Failed to log command", "command", rec.Command, "error", herr)
			}
			return err
		})
	}
}

func commandLine(name, op string) string {
	if op == "" || op == name {
		return name
	}
	return name + " " + op
}

func params(opts command.Options) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		parts = append(parts, fmt.Sprintf("%s=%v", o.Name, o.Value))
	}
	return strings.Join(parts, " ")
}
