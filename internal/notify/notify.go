// Package notify delivers direct messages and channel notices. Delivery is
// best effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/ui"
	"github.com/keshon/lyrabot/pkg/retrylimit"
)

// ErrUnreachable means the recipient cannot be messaged (DMs closed, no access).
var ErrUnreachable = errors.New("recipient unreachable")

// Sender is the slice of the Discord REST API notices need.
type Sender interface {
	DMChannel(userID string) (string, error)
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

// SessionSender adapts a discordgo session.
type SessionSender struct {
	Session *discordgo.Session
}

func (s SessionSender) DMChannel(userID string) (string, error) {
	ch, err := s.Session.UserChannelCreate(userID)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (s SessionSender) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := s.Session.ChannelMessageSendEmbed(channelID, embed)
	return err
}

type Notifier struct {
	sender Sender
	retry  retrylimit.Config
	lim    *retrylimit.AdaptiveLimiter
	log    *zap.SugaredLogger
}

func New(sender Sender, retry retrylimit.Config, log *zap.SugaredLogger) *Notifier {
	if retry.MaxAttempts == 0 {
		retry = retrylimit.DefaultConfig()
		retry.MaxAttempts = 3
	}
	return &Notifier{
		sender: sender,
		retry:  retry,
		lim:    retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5),
		log:    logging.OrNop(log),
	}
}

// classify maps Discord REST failures onto retry decisions.
func classify(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return retrylimit.Fatal(fmt.Errorf("%w: %v", ErrUnreachable, err))
	}
	if rest.Response == nil {
		return err
	}
	code := rest.Response.StatusCode
	if code == http.StatusForbidden || code == http.StatusNotFound {
		return retrylimit.Fatal(fmt.Errorf("%w: %v", ErrUnreachable, err))
	}
	return &retrylimit.StatusError{Code: code, Err: err}
}

func (n *Notifier) send(ctx context.Context, fn func() error) error {
	return retrylimit.Do(ctx, n.retry, n.lim, func(context.Context) error {
		return classify(fn())
	})
}

// DirectEmbed opens (or reuses) a DM channel with userID and posts embed.
func (n *Notifier) DirectEmbed(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	var channelID string
	err := n.send(ctx, func() error {
		var err error
		channelID, err = n.sender.DMChannel(userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	if err := n.send(ctx, func() error { return n.sender.SendEmbed(channelID, embed) }); err != nil {
		return fmt.Errorf("dm %s: %w", userID, err)
	}
	return nil
}

func (n *Notifier) ChannelEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	if err := n.send(ctx, func() error { return n.sender.SendEmbed(channelID, embed) }); err != nil {
		return fmt.Errorf("post to %s: %w", channelID, err)
	}
	return nil
}

// AutoLeave tells the channel the bot left an empty voice channel.
func (n *Notifier) AutoLeave(ctx context.Context, textChannelID string, idle time.Duration) error {
	return n.ChannelEmbed(ctx, textChannelID, AutoLeaveEmbed(idle))
}

func AutoLeaveEmbed(idle time.Duration) *discordgo.MessageEmbed {
	return ui.Info("Auto Leave",
		fmt.Sprintf("👋 Left the voice channel after %s without listeners.\n💡 Enable `/voice 247mode` to keep me connected.", idle))
}

func PremiumExpiredEmbed() *discordgo.MessageEmbed {
	return ui.Warning("Premium Access Expired",
		"⏰ Your premium access to LyraBot has expired.\n\n"+
			"🎵 You are now back to normal user status with daily limits.\n"+
			"💡 Contact an admin to renew your premium access!")
}

func PremiumExpiringEmbed(expiresAt time.Time) *discordgo.MessageEmbed {
	return ui.Warning("Premium Access Expiring Soon",
		"⏰ Your premium access to LyraBot will expire in less than 24 hours!\n\n"+
			fmt.Sprintf("📅 **Expires:** %s\n⏳ **Time left:** %s\n\n", ui.Full(expiresAt), ui.Relative(expiresAt))+
			"💡 Contact an admin to renew your premium access before it expires.")
}

func ServerPremiumExpiredEmbed(guildName string) *discordgo.MessageEmbed {
	return ui.Warning("Server Premium Access Expired",
		fmt.Sprintf("⏰ Premium access for **%s** has expired.\n\n", guildName)+
			"👥 Members will have daily command limits again.\n"+
			"💡 Contact an admin to renew premium access!")
}

func LimitsResetEmbed() *discordgo.MessageEmbed {
	return ui.Success("Limits Reset", "🔄 Your daily command limits were reset by a moderator. Enjoy! 🎶")
}

func PremiumGrantedEmbed(expiresAt *time.Time) *discordgo.MessageEmbed {
	desc := "💎 You now have premium access to LyraBot: no daily limits."
	if expiresAt != nil {
		desc += "\n📅 **Expires:** " + ui.Full(*expiresAt)
	}
	return ui.Success("Premium Granted", desc)
}

func PremiumRemovedEmbed() *discordgo.MessageEmbed {
	return ui.Warning("Premium Access Removed",
		"🔄 Your premium access to LyraBot was removed by an admin.\n"+
			"🎵 Daily command limits apply again.")
}

func ServerPremiumGrantedEmbed(guildName string, expiresAt time.Time) *discordgo.MessageEmbed {
	return ui.Success("Server Premium Activated",
		fmt.Sprintf("💎 **%s** now has premium access: members use LyraBot without daily limits.\n", guildName)+
			"📅 **Expires:** "+ui.Full(expiresAt))
}

func ServerPremiumRemovedEmbed(guildName string) *discordgo.MessageEmbed {
	return ui.Warning("Server Premium Removed",
		fmt.Sprintf("🔄 Premium access for **%s** was removed by an admin.\n", guildName)+
			"👥 Members will have daily command limits again.")
}
