// Package admin implements the /admin slash command: role and premium
// management, limit resets and bot settings.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/notify"
	"github.com/keshon/lyrabot/internal/storage"
	"github.com/keshon/lyrabot/internal/ui"
)

// Store is the part of the entitlement store admin operations write to.
type Store interface {
	GetUser(ctx context.Context, userID string) (*access.UserEntitlement, error)
	UpdateUserRole(ctx context.Context, userID string, role access.Role, expiresAt *time.Time) error
	ListUsersByRole(ctx context.Context, role access.Role) ([]access.UserEntitlement, error)
	GetGuild(ctx context.Context, guildID string) (*access.GuildEntitlement, error)
	SetGuildPremium(ctx context.Context, guildID, name string, premium bool, expiresAt *time.Time) error
	SetSetting(ctx context.Context, key, value string) error
}

type Roles interface {
	ResolveRole(ctx context.Context, userID string) access.Role
}

type Limits interface {
	ResetUsage(ctx context.Context, userID string) error
}

// Messenger delivers direct messages. Failures never fail the command.
type Messenger interface {
	DirectEmbed(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

// Guilds looks up guild names and owners from the gateway cache.
type Guilds interface {
	GuildName(guildID string) string
	GuildOwner(guildID string) (string, bool)
}

const maxListed = 25

type AdminCommand struct {
	Store  Store
	Roles  Roles
	Limits Limits
	DM     Messenger
	Guilds Guilds
	Now    func() time.Time
	Log    *zap.SugaredLogger
}

var requiredRoles = map[string]access.Role{
	"addrole":             access.RoleModerator,
	"removerole":          access.RoleModerator,
	"addpremiumuser":      access.RoleModerator,
	"removepremiumuser":   access.RoleModerator,
	"addpremiumserver":    access.RoleModerator,
	"removepremiumserver": access.RoleModerator,
	"resetlimits":         access.RoleModerator,
	"viewroles":           access.RoleAdmin,
	"setcontactlink":      access.RoleSuperAdmin,
}

func (c *AdminCommand) Name() string        { return "admin" }
func (c *AdminCommand) Description() string { return "Manage roles, premium access and limits" }
func (c *AdminCommand) Category() string    { return config.CategoryAdmin }

// RequiredRole is the minimum caller role per subcommand.
func (c *AdminCommand) RequiredRole(op string) access.Role { return requiredRoles[op] }

func (c *AdminCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minDays := 1.0
	user := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: desc, Required: true}
	}
	days := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: "days", Description: "Duration in days", Required: required, MinValue: &minDays}
	}
	server := &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "server_id", Description: "Server ID", Required: true}
	sub := func(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc, Options: opts}
	}

	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			sub("addrole", "Assign a role to a user",
				user("User to assign the role to"),
				&discordgo.ApplicationCommandOption{
					Type: discordgo.ApplicationCommandOptionString, Name: "role", Description: "Role to assign", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Admin", Value: string(access.RoleAdmin)},
						{Name: "Moderator", Value: string(access.RoleModerator)},
						{Name: "Premium", Value: string(access.RolePremium)},
					},
				},
				days(false),
			),
			sub("removerole", "Remove a user's role", user("User to remove the role from")),
			sub("addpremiumuser", "Grant premium to a user for a number of days", user("User to grant premium access"), days(true)),
			sub("removepremiumuser", "Remove premium from a user", user("User to remove premium from")),
			sub("addpremiumserver", "Grant premium to a server for a number of days", server, days(true)),
			sub("removepremiumserver", "Remove premium from a server", server),
			sub("resetlimits", "Reset a user's daily usage", user("User to reset limits for")),
			sub("viewroles", "List users with a role",
				&discordgo.ApplicationCommandOption{
					Type: discordgo.ApplicationCommandOptionString, Name: "role", Description: "Role to view", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Super Admin", Value: string(access.RoleSuperAdmin)},
						{Name: "Admin", Value: string(access.RoleAdmin)},
						{Name: "Moderator", Value: string(access.RoleModerator)},
						{Name: "Premium", Value: string(access.RolePremium)},
					},
				},
			),
			sub("setcontactlink", "Set the contact admin button URL",
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "Contact URL", Required: true},
			),
		},
	}
}

func (c *AdminCommand) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *AdminCommand) log() *zap.SugaredLogger { return logging.OrNop(c.Log) }

func (c *AdminCommand) Run(ctx context.Context, ic *command.SlashInteractionContext) error {
	sub, opts := ic.Subcommand()
	caller := ic.User().ID

	switch sub {
	case "addrole":
		days, _ := opts.Int("days")
		return c.addRole(ctx, ic, caller, opts.UserID("user"), access.ParseRole(opts.String("role")), days)
	case "removerole":
		return c.removeRole(ctx, ic, caller, opts.UserID("user"))
	case "addpremiumuser":
		days, _ := opts.Int("days")
		return c.addPremiumUser(ctx, ic, caller, opts.UserID("user"), days)
	case "removepremiumuser":
		return c.removePremiumUser(ctx, ic, opts.UserID("user"))
	case "addpremiumserver":
		days, _ := opts.Int("days")
		return c.addPremiumServer(ctx, ic, strings.TrimSpace(opts.String("server_id")), days)
	case "removepremiumserver":
		return c.removePremiumServer(ctx, ic, strings.TrimSpace(opts.String("server_id")))
	case "resetlimits":
		return c.resetLimits(ctx, ic, opts.UserID("user"))
	case "viewroles":
		return c.viewRoles(ctx, ic, caller, access.Role(opts.String("role")))
	case "setcontactlink":
		return c.setContactLink(ctx, ic, opts.String("url"))
	default:
		return ic.EmbedEphemeral(ui.Error("Unknown Subcommand", fmt.Sprintf("Unknown subcommand: %s", sub)))
	}
}

func (c *AdminCommand) addRole(ctx context.Context, ic *command.SlashInteractionContext, caller, target string, role access.Role, days int) error {
	if target == caller {
		return ic.EmbedEphemeral(ui.Error("Invalid Target", "You cannot assign roles to yourself."))
	}
	mine := c.Roles.ResolveRole(ctx, caller)
	if !access.CanAssign(mine, role) {
		return ic.EmbedEphemeral(ui.Error("Invalid Role Assignment", "You do not have permission to assign this role."))
	}
	if current := c.Roles.ResolveRole(ctx, target); !access.CanManage(mine, current) {
		return ic.EmbedEphemeral(ui.Error("Cannot Change Role",
			fmt.Sprintf("You do not have permission to change the role of a %s.", current.Display())))
	}

	var expiresAt *time.Time
	if role == access.RolePremium && days > 0 {
		t := c.now().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &t
	}
	if err := c.Store.UpdateUserRole(ctx, target, role, expiresAt); err != nil {
		return c.storeFailed(ic, "assign role", err)
	}
	c.log().Infow("Role assigned", "target", target, "role", role, "by", caller, "expires", expiresAt)

	desc := fmt.Sprintf("Successfully assigned **%s** role to <@%s>.", role.Display(), target)
	if expiresAt != nil {
		desc += fmt.Sprintf("\n⏰ **Expires:** %s (%s)", ui.Full(*expiresAt), ui.Relative(*expiresAt))
	}
	if role == access.RolePremium {
		desc += c.dm(ctx, target, notify.PremiumGrantedEmbed(expiresAt))
	}
	return ic.EmbedEphemeral(ui.Success("Role Assigned", desc))
}

func (c *AdminCommand) removeRole(ctx context.Context, ic *command.SlashInteractionContext, caller, target string) error {
	if target == caller {
		return ic.EmbedEphemeral(ui.Error("Invalid Target", "You cannot remove your own role."))
	}
	current := c.Roles.ResolveRole(ctx, target)
	if current == access.RoleNormal {
		return ic.EmbedEphemeral(ui.Error("No Role", fmt.Sprintf("<@%s> has no special role.", target)))
	}
	if !access.CanManage(c.Roles.ResolveRole(ctx, caller), current) {
		return ic.EmbedEphemeral(ui.Error("Cannot Remove Role",
			fmt.Sprintf("You do not have permission to remove the %s role.", current.Display())))
	}
	if err := c.Store.UpdateUserRole(ctx, target, access.RoleNormal, nil); err != nil {
		return c.storeFailed(ic, "remove role", err)
	}
	c.log().Infow("Role removed", "target", target, "role", current, "by", caller)
	return ic.EmbedEphemeral(ui.Success("Role Removed",
		fmt.Sprintf("Successfully removed **%s** role from <@%s>.\nThey are now a %s.", current.Display(), target, access.RoleNormal.Display())))
}

func (c *AdminCommand) addPremiumUser(ctx context.Context, ic *command.SlashInteractionContext, caller, target string, days int) error {
	if days < 1 {
		return ic.EmbedEphemeral(ui.Error("Invalid Duration", "Days must be at least 1."))
	}
	if current := c.Roles.ResolveRole(ctx, target); current.Staff() {
		return ic.EmbedEphemeral(ui.Error("Already Unlimited",
			fmt.Sprintf("<@%s> is a %s and already has unlimited access.", target, current.Display())))
	}
	expiresAt := c.now().Add(time.Duration(days) * 24 * time.Hour)
	if err := c.Store.UpdateUserRole(ctx, target, access.RolePremium, &expiresAt); err != nil {
		return c.storeFailed(ic, "grant premium", err)
	}
	c.log().Infow("Premium granted", "target", target, "days", days, "by", caller)

	desc := fmt.Sprintf("Successfully granted **%s** access to <@%s>.\n\n⏰ **Duration:** %s\n📅 **Expires:** %s",
		access.RolePremium.Display(), target, plural(days, "day"), ui.Full(expiresAt))
	desc += c.dm(ctx, target, notify.PremiumGrantedEmbed(&expiresAt))
	return ic.EmbedEphemeral(ui.Success("Premium Granted", desc))
}

func (c *AdminCommand) removePremiumUser(ctx context.Context, ic *command.SlashInteractionContext, target string) error {
	u, err := c.Store.GetUser(ctx, target)
	if err != nil && !errors.Is(err, access.ErrNotFound) {
		return c.storeFailed(ic, "read user", err)
	}
	if u == nil || u.Role != access.RolePremium {
		return ic.EmbedEphemeral(ui.Error("Not Premium", fmt.Sprintf("<@%s> does not have premium access.", target)))
	}
	if err := c.Store.UpdateUserRole(ctx, target, access.RoleNormal, nil); err != nil {
		return c.storeFailed(ic, "remove premium", err)
	}
	desc := fmt.Sprintf("Successfully removed premium access from <@%s>.\n\n🔄 **New Role:** %s", target, access.RoleNormal.Display())
	desc += c.dm(ctx, target, notify.PremiumRemovedEmbed())
	return ic.EmbedEphemeral(ui.Success("Premium Removed", desc))
}

func (c *AdminCommand) guildName(guildID string) string {
	if c.Guilds != nil {
		if n := c.Guilds.GuildName(guildID); n != "" {
			return n
		}
	}
	return guildID
}

func (c *AdminCommand) dmOwner(ctx context.Context, guildID string, embed *discordgo.MessageEmbed) string {
	if c.Guilds == nil {
		return ""
	}
	owner, ok := c.Guilds.GuildOwner(guildID)
	if !ok {
		return ""
	}
	return c.dm(ctx, owner, embed)
}

func (c *AdminCommand) addPremiumServer(ctx context.Context, ic *command.SlashInteractionContext, guildID string, days int) error {
	if guildID == "" {
		return ic.EmbedEphemeral(ui.Error("Invalid Server", "A server ID is required."))
	}
	if days < 1 {
		return ic.EmbedEphemeral(ui.Error("Invalid Duration", "Days must be at least 1."))
	}
	name := c.guildName(guildID)
	expiresAt := c.now().Add(time.Duration(days) * 24 * time.Hour)
	if err := c.Store.SetGuildPremium(ctx, guildID, name, true, &expiresAt); err != nil {
		return c.storeFailed(ic, "grant server premium", err)
	}
	c.log().Infow("Server premium granted", "guild", guildID, "name", name, "days", days, "by", ic.User().ID)

	desc := fmt.Sprintf("Successfully granted premium access to **%s**\n\n📅 **Duration:** %s\n⏰ **Expires:** %s",
		name, plural(days, "day"), ui.Full(expiresAt))
	desc += c.dmOwner(ctx, guildID, notify.ServerPremiumGrantedEmbed(name, expiresAt))
	return ic.EmbedEphemeral(ui.Success("Server Premium Granted", desc))
}

func (c *AdminCommand) removePremiumServer(ctx context.Context, ic *command.SlashInteractionContext, guildID string) error {
	g, err := c.Store.GetGuild(ctx, guildID)
	if err != nil && !errors.Is(err, access.ErrNotFound) {
		return c.storeFailed(ic, "read guild", err)
	}
	if g == nil || !g.IsPremium {
		return ic.EmbedEphemeral(ui.Error("Not Premium", "That server does not have premium access."))
	}
	name := g.Name
	if name == "" {
		name = c.guildName(guildID)
	}
	if err := c.Store.SetGuildPremium(ctx, guildID, name, false, nil); err != nil {
		return c.storeFailed(ic, "remove server premium", err)
	}
	c.log().Infow("Server premium removed", "guild", guildID, "by", ic.User().ID)

	desc := fmt.Sprintf("Successfully removed premium access from **%s**", name)
	desc += c.dmOwner(ctx, guildID, notify.ServerPremiumRemovedEmbed(name))
	return ic.EmbedEphemeral(ui.Success("Server Premium Removed", desc))
}

func (c *AdminCommand) resetLimits(ctx context.Context, ic *command.SlashInteractionContext, target string) error {
	if err := c.Limits.ResetUsage(ctx, target); err != nil {
		return c.storeFailed(ic, "reset limits", err)
	}
	c.log().Infow("Limits reset", "target", target, "by", ic.User().ID)
	desc := fmt.Sprintf("Successfully reset daily limits for <@%s>.", target)
	desc += c.dm(ctx, target, notify.LimitsResetEmbed())
	return ic.EmbedEphemeral(ui.Success("Limits Reset", desc))
}

func (c *AdminCommand) viewRoles(ctx context.Context, ic *command.SlashInteractionContext, caller string, role access.Role) error {
	if role == access.RoleSuperAdmin && c.Roles.ResolveRole(ctx, caller) != access.RoleSuperAdmin {
		return ic.EmbedEphemeral(ui.Error("Permission Denied", "Only the super admin can view super admins."))
	}
	users, err := c.Store.ListUsersByRole(ctx, role)
	if err != nil {
		return c.storeFailed(ic, "list users", err)
	}
	if len(users) == 0 {
		return ic.EmbedEphemeral(ui.Info(role.Display(), "No users found with this role."))
	}

	var b strings.Builder
	for i, u := range users {
		if i == maxListed {
			fmt.Fprintf(&b, "… and %d more", len(users)-maxListed)
			break
		}
		fmt.Fprintf(&b, "• <@%s>", u.ID)
		if u.PremiumExpiresAt != nil {
			fmt.Fprintf(&b, " expires %s", ui.Relative(*u.PremiumExpiresAt))
		}
		b.WriteString("\n")
	}
	e := ui.Primary(fmt.Sprintf("%s (%d)", role.Display(), len(users)), b.String())
	return ic.EmbedEphemeral(e)
}

func (c *AdminCommand) setContactLink(ctx context.Context, ic *command.SlashInteractionContext, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ic.EmbedEphemeral(ui.Error("Invalid URL", "Please provide a valid http(s) URL."))
	}
	if err := c.Store.SetSetting(ctx, storage.SettingContactLink, u.String()); err != nil {
		return c.storeFailed(ic, "save contact link", err)
	}
	return ic.EmbedEphemeral(ui.Success("Contact Link Updated",
		fmt.Sprintf("Successfully updated the contact admin button URL.\n\n🔗 **New URL:** %s", u.String())))
}

// dm sends a best-effort direct message and returns a status line for the reply.
func (c *AdminCommand) dm(ctx context.Context, userID string, embed *discordgo.MessageEmbed) string {
	if c.DM == nil {
		return ""
	}
	if err := c.DM.DirectEmbed(ctx, userID, embed); err != nil {
		c.log().Warnw("Could not notify user", "user", userID, "error", err)
		return "\n\n⚠️ Could not send a DM."
	}
	return "\n\n📨 Notified by DM."
}

func (c *AdminCommand) storeFailed(ic *command.SlashInteractionContext, op string, err error) error {
	c.log().Errorw("Admin store operation failed", "op", op, "error", err)
	if rerr := ic.EmbedEphemeral(ui.Error("Database Error", "The change could not be saved. Please try again later.")); rerr != nil {
		return rerr
	}
	return fmt.Errorf("%s: %w", op, err)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
