package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/music/player"
	"github.com/keshon/lyrabot/internal/storage"
	"github.com/keshon/lyrabot/internal/ui"
)

// SongHistory records started tracks.
type SongHistory interface {
	AddSongToHistory(ctx context.Context, rec storage.SongRecord) error
}

// ChannelPoster posts an embed to a text channel.
type ChannelPoster interface {
	ChannelEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
}

// Usernames resolves a member's display name; "" when unknown.
type Usernames interface {
	Username(guildID, userID string) string
}

// Announcer consumes player events: every started track goes to the play
// history, and tracks the player advanced to on its own are announced in the
// guild's text channel. Command replies already cover the rest.
type Announcer struct {
	Players *player.Manager
	History SongHistory
	Poster  ChannelPoster
	Names   Usernames
	Now     func() time.Time
	Log     *zap.SugaredLogger
}

// Run blocks until ctx ends.
func (a *Announcer) Run(ctx context.Context) {
	events := a.Players.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			a.Handle(ctx, ev)
		}
	}
}

func (a *Announcer) Handle(ctx context.Context, ev player.Event) {
	log := logging.OrNop(a.Log).With("guild", ev.GuildID, "status", ev.Status)

	switch ev.Status {
	case player.StatusPlaying:
		if ev.Track == nil {
			return
		}
		a.record(ctx, ev.GuildID, *ev.Track, log)
		if ev.Auto {
			volume := a.Players.Get(ev.GuildID).Snapshot().Volume
			a.post(ctx, ev.TextChannelID, ui.NowPlaying(*ev.Track, volume), log)
		}
	case player.StatusError:
		title := "a track"
		if ev.Track != nil {
			title = fmt.Sprintf("**%s**", ev.Track.Title)
		}
		a.post(ctx, ev.TextChannelID, ui.Error("Playback Error", fmt.Sprintf("Could not play %s, skipping.", title)), log)
	case player.StatusFinished:
		if ev.Track != nil {
			a.post(ctx, ev.TextChannelID, ui.Info("Queue Finished", "📭 No more songs in queue."), log)
		}
	}
}

func (a *Announcer) record(ctx context.Context, guildID string, t player.Track, log *zap.SugaredLogger) {
	if a.History == nil || t.Requester == "" {
		return
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	rec := storage.SongRecord{
		GuildID:  guildID,
		UserID:   t.Requester,
		Title:    t.Title,
		URL:      t.URL,
		Platform: t.Platform,
		PlayedAt: now(),
	}
	if a.Names != nil {
		rec.Username = a.Names.Username(guildID, t.Requester)
	}
	if err := a.History.AddSongToHistory(ctx, rec); err != nil {
		log.Warnw("Record song history failed", "track", t.Title, "error", err)
	}
}

func (a *Announcer) post(ctx context.Context, channelID string, e *discordgo.MessageEmbed, log *zap.SugaredLogger) {
	if a.Poster == nil || channelID == "" {
		return
	}
	if err := a.Poster.ChannelEmbed(ctx, channelID, e); err != nil {
		log.Warnw("Post player notice failed", "channel", channelID, "error", err)
	}
}
