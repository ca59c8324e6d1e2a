package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/ui"
	"github.com/keshon/lyrabot/pkg/cmd"
)

// RoleRequirer is implemented by commands with staff-only operations.
// An empty role means the operation is open to everyone.
type RoleRequirer interface {
	RequiredRole(op string) access.Role
}

// RoleResolver resolves the effective role of a user.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID string) access.Role
}

// WithRoleRequirement refuses operations whose declared minimum role the
// caller does not reach.
func WithRoleRequirement(resolver RoleResolver, log *zap.SugaredLogger) cmd.Middleware {
	log = logging.OrNop(log)
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			root := cmd.Root(c)
			if a, ok := root.(*command.DiscordAdapter); ok {
				root = a.Cmd
			}
			rr, ok := root.(RoleRequirer)
			if !ok {
				return c.Run(ctx, inv)
			}
			need := rr.RequiredRole(inv.Operation)
			if need == "" {
				return c.Run(ctx, inv)
			}

			have := resolver.ResolveRole(ctx, inv.UserID)
			if have.Rank() >= need.Rank() {
				return c.Run(ctx, inv)
			}

			log.Infow("Command denied by role", "user", inv.UserID, "op", inv.Operation, "role", have, "required", need)
			if ic, ok := slash(inv); ok {
				return ic.EmbedEphemeral(ui.Error("Permission Denied",
					fmt.Sprintf("This command requires the %s role or higher.", need.Display())))
			}
			return nil
		})
	}
}
