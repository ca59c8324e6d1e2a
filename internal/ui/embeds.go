// Package ui builds the embeds shared by commands, middleware and notices.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lyrabot/internal/music/player"
)

const (
	ColorPrimary = 0xD8BFD8
	ColorSuccess = 0x90EE90
	ColorError   = 0xFF6B6B
	ColorWarning = 0xFFD93D
	ColorInfo    = 0x87CEEB
)

const Footer = "LyraBot 🎶"

func base(color int, title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       color,
		Title:       title,
		Description: description,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: Footer},
	}
}

func Success(title, description string) *discordgo.MessageEmbed {
	return base(ColorSuccess, "✅ "+title, description)
}

func Error(title, description string) *discordgo.MessageEmbed {
	return base(ColorError, "❌ "+title, description)
}

func Info(title, description string) *discordgo.MessageEmbed {
	return base(ColorInfo, "ℹ️ "+title, description)
}

func Warning(title, description string) *discordgo.MessageEmbed {
	return base(ColorWarning, "⚠️ "+title, description)
}

func Primary(title, description string) *discordgo.MessageEmbed {
	return base(ColorPrimary, title, description)
}

// Relative renders t as a Discord relative timestamp.
func Relative(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

// Full renders t as a Discord long date-time.
func Full(t time.Time) string {
	return fmt.Sprintf("<t:%d:F>", t.Unix())
}

// LimitReached is shown when a user's daily quota is spent.
func LimitReached(resetAt time.Time) *discordgo.MessageEmbed {
	e := Warning("Daily Limit Reached", "You have reached your daily limit for advanced commands.")
	e.Fields = []*discordgo.MessageEmbedField{
		{Name: "🔄 Next Reset", Value: Relative(resetAt), Inline: true},
		{Name: "💡 Tip", Value: "Upgrade to Premium for unlimited access!", Inline: true},
	}
	return e
}

// ContactButton links to wherever premium is handed out.
func ContactButton(link string) []discordgo.MessageComponent {
	if link == "" {
		return nil
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "📞 Contact Admin", Style: discordgo.LinkButton, URL: link},
		}},
	}
}

func PlatformEmoji(platform string) string {
	switch strings.ToLower(platform) {
	case "youtube":
		return "📺"
	case "spotify":
		return "🟢"
	case "soundcloud":
		return "🟠"
	case "radio", "http":
		return "📻"
	default:
		return "🎵"
	}
}

// NowPlaying describes the current track.
func NowPlaying(t player.Track, volume int) *discordgo.MessageEmbed {
	e := Primary("🎵 Now Playing", "")
	if t.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.Thumbnail}
	}
	title := t.Title
	if t.URL != "" && strings.HasPrefix(t.URL, "http") {
		title = fmt.Sprintf("[%s](%s)", t.Title, t.URL)
	}
	platform := t.Platform
	if platform == "" {
		platform = "unknown"
	}
	e.Fields = []*discordgo.MessageEmbedField{
		{Name: "🎵 Song", Value: title, Inline: false},
		{Name: "⏱️ Duration", Value: t.DurationString(), Inline: true},
		{Name: "🔊 Volume", Value: fmt.Sprintf("%d%%", volume), Inline: true},
		{Name: "📱 Source", Value: PlatformEmoji(platform) + " " + platform, Inline: true},
	}
	if t.Requester != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "🙋 Requested by", Value: "<@" + t.Requester + ">", Inline: true})
	}
	return e
}

const QueuePageSize = 10

// Queue renders one page of the queue; page is 1-based and clamped.
func Queue(current *player.Track, queue []player.Track, page int) *discordgo.MessageEmbed {
	var b strings.Builder
	if current != nil {
		fmt.Fprintf(&b, "🎵 **Now Playing:**\n%s\n\n", current.Title)
	}
	if len(queue) == 0 {
		b.WriteString("🔇 Queue is empty")
		return Primary("📜 Music Queue", b.String())
	}

	pages := (len(queue) + QueuePageSize - 1) / QueuePageSize
	page = min(max(page, 1), pages)
	start := (page - 1) * QueuePageSize
	end := min(start+QueuePageSize, len(queue))

	fmt.Fprintf(&b, "📋 **Upcoming Songs (%d total):**\n", len(queue))
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "**%d.** %s `[%s]`\n", i+1, queue[i].Title, queue[i].DurationString())
	}
	if pages > 1 {
		fmt.Fprintf(&b, "\n📄 Page %d/%d", page, pages)
	}
	return Primary("📜 Music Queue", b.String())
}
