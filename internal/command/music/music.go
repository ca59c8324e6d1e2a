// Package music implements the /music slash command.
package music

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/internal/lavalink"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/music/player"
	"github.com/keshon/lyrabot/internal/radio"
	"github.com/keshon/lyrabot/internal/ui"
)

var (
	errNotYouTube = errors.New("not a YouTube URL")
	errNotLive    = errors.New("not a livestream")
)

// Tracks resolves user input into playable tracks.
type Tracks interface {
	Search(ctx context.Context, query, platform, requester string) (lavalink.LoadResult, error)
	Load(ctx context.Context, identifier, requester string) (lavalink.LoadResult, error)
}

// VoiceLocator finds the voice channel a member currently sits in.
type VoiceLocator interface {
	UserVoiceChannel(guildID, userID string) string
}

type MusicCommand struct {
	Players *player.Manager
	Tracks  Tracks
	Voice   VoiceLocator
	Radio   *radio.Catalog
	Log     *zap.SugaredLogger
}

func (c *MusicCommand) Name() string        { return "music" }
func (c *MusicCommand) Description() string { return "Control music playback" }
func (c *MusicCommand) Category() string    { return config.CategoryMusic }

func (c *MusicCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minVolume := 1.0
	minPage := 1.0
	genres := make([]*discordgo.ApplicationCommandOptionChoice, 0)
	if c.Radio != nil {
		for _, g := range c.Radio.Genres() {
			genres = append(genres, &discordgo.ApplicationCommandOptionChoice{Name: g, Value: g})
		}
	}

	sub := func(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        name,
			Description: desc,
			Options:     opts,
		}
	}

	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			sub("play", "Play a song from YouTube, Spotify, or SoundCloud",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Song name, artist, or URL",
					Required:    true,
				},
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "platform",
					Description: "Platform to search on",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Auto", Value: "auto"},
						{Name: "YouTube", Value: "youtube"},
						{Name: "Spotify", Value: "spotify"},
						{Name: "SoundCloud", Value: "soundcloud"},
					},
				},
			),
			sub("playytlive", "Play a YouTube livestream",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "YouTube livestream URL",
					Required:    true,
				},
			),
			sub("playytpodcast", "Play a podcast from YouTube",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Podcast name or YouTube URL",
					Required:    true,
				},
			),
			sub("pause", "Pause the current song"),
			sub("resume", "Resume playback"),
			sub("skip", "Skip the currently playing song"),
			sub("stop", "Stop playback and clear the queue"),
			sub("queue", "Show the music queue",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "page",
					Description: "Page number",
					MinValue:    &minPage,
				},
			),
			sub("nowplaying", "Show the current song"),
			sub("volume", "Set the playback volume",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "level",
					Description: "Volume from 1 to 100",
					Required:    true,
					MinValue:    &minVolume,
					MaxValue:    100,
				},
			),
			sub("loop", "Show or set the loop mode",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Loop mode",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Off", Value: "none"},
						{Name: "Current Song", Value: "song"},
						{Name: "Queue", Value: "queue"},
					},
				},
			),
			sub("shuffle", "Shuffle the queue"),
			sub("clear", "Remove every queued song"),
			sub("radio", "Start continuous radio streaming",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "genre",
					Description: "Radio genre",
					Choices:     genres,
				},
			),
		},
	}
}

func (c *MusicCommand) Run(ctx context.Context, ic *command.SlashInteractionContext) error {
	sub, opts := ic.Subcommand()
	p := c.Players.Get(ic.GuildID())

	var err error
	switch sub {
	case "play":
		err = c.runPlay(ctx, ic, p, opts.String("query"), opts.String("platform"))
	case "playytlive":
		err = c.runLive(ctx, ic, p, opts.String("url"))
	case "playytpodcast":
		err = c.runPodcast(ctx, ic, p, opts.String("query"))
	case "pause":
		err = c.simple(ctx, ic, p.Pause, ui.Success("Paused", "⏸️ Playback has been paused."))
	case "resume":
		err = c.simple(ctx, ic, p.Resume, ui.Success("Resumed", "▶️ Playback has been resumed."))
	case "skip":
		err = c.runSkip(ctx, ic, p)
	case "stop":
		err = c.simple(ctx, ic, p.Stop, ui.Success("Stopped", "⏹️ Playback stopped and the queue was cleared."))
	case "queue":
		page, ok := opts.Int("page")
		if !ok {
			page = 1
		}
		s := p.Snapshot()
		err = c.commitAnd(ctx, ic, ui.Queue(s.Current, s.Queue, page))
	case "nowplaying":
		s := p.Snapshot()
		if s.Current == nil {
			return ic.EmbedEphemeral(ui.Error("Nothing Playing", "There is no song currently playing."))
		}
		err = c.commitAnd(ctx, ic, ui.NowPlaying(*s.Current, s.Volume))
	case "volume":
		err = c.runVolume(ctx, ic, p, opts)
	case "loop":
		err = c.runLoop(ctx, ic, p, opts.String("mode"))
	case "shuffle":
		err = c.simple(ctx, ic, func(context.Context) error { return p.Shuffle() },
			ui.Success("Queue Shuffled", "🔀 The queue has been shuffled."))
	case "clear":
		n := p.ClearQueue()
		err = c.commitAnd(ctx, ic, ui.Success("Queue Cleared", fmt.Sprintf("🗑️ Removed %d song(s) from the queue.", n)))
	case "radio":
		err = c.runRadio(ctx, ic, p, opts.String("genre"))
	default:
		return ic.EmbedEphemeral(ui.Error("Unknown Subcommand", fmt.Sprintf("Unknown subcommand: %s", sub)))
	}
	return err
}

// commitAnd spends the usage ticket and sends the embed.
func (c *MusicCommand) commitAnd(ctx context.Context, ic *command.SlashInteractionContext, e *discordgo.MessageEmbed) error {
	_ = ic.Usage.Commit(ctx)
	return ic.Embed(e)
}

func (c *MusicCommand) simple(ctx context.Context, ic *command.SlashInteractionContext, op func(context.Context) error, ok *discordgo.MessageEmbed) error {
	if err := op(ctx); err != nil {
		return c.fail(ic, err)
	}
	return c.commitAnd(ctx, ic, ok)
}

func (c *MusicCommand) runPlay(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, query, platform string) error {
	channel := c.Voice.UserVoiceChannel(ic.GuildID(), ic.User().ID)
	if channel == "" {
		return c.fail(ic, player.ErrNotInVoice)
	}
	if err := ic.Reply.Defer(false); err != nil {
		return fmt.Errorf("defer play: %w", err)
	}

	res, err := c.Tracks.Search(ctx, query, platform, ic.User().ID)
	if err == nil && len(res.Tracks) == 0 {
		err = lavalink.ErrNoMatches
	}
	if err != nil {
		return c.fail(ic, err)
	}
	return c.enqueue(ctx, ic, p, channel, res)
}

func (c *MusicCommand) runLive(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, rawURL string) error {
	channel := c.Voice.UserVoiceChannel(ic.GuildID(), ic.User().ID)
	if channel == "" {
		return c.fail(ic, player.ErrNotInVoice)
	}
	if !isYouTubeURL(rawURL) {
		return c.fail(ic, errNotYouTube)
	}
	if err := ic.Reply.Defer(false); err != nil {
		return fmt.Errorf("defer live: %w", err)
	}

	res, err := c.Tracks.Load(ctx, strings.TrimSpace(rawURL), ic.User().ID)
	if err == nil && len(res.Tracks) == 0 {
		err = lavalink.ErrNoMatches
	}
	if err != nil {
		return c.fail(ic, err)
	}
	t := res.Tracks[0]
	if !t.IsStream {
		return c.fail(ic, errNotLive)
	}
	t.Platform = "youtube"
	return c.enqueue(ctx, ic, p, channel, lavalink.LoadResult{Tracks: []player.Track{t}})
}

func (c *MusicCommand) runPodcast(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, query string) error {
	channel := c.Voice.UserVoiceChannel(ic.GuildID(), ic.User().ID)
	if channel == "" {
		return c.fail(ic, player.ErrNotInVoice)
	}
	if err := ic.Reply.Defer(false); err != nil {
		return fmt.Errorf("defer podcast: %w", err)
	}

	res, err := c.Tracks.Search(ctx, podcastQuery(query), "youtube", ic.User().ID)
	if err == nil && len(res.Tracks) == 0 {
		err = lavalink.ErrNoMatches
	}
	if err != nil {
		return c.fail(ic, err)
	}
	return c.enqueue(ctx, ic, p, channel, res)
}

// enqueue joins the caller's channel, hands the tracks to the player and
// charges the ticket once playback accepted them.
func (c *MusicCommand) enqueue(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, channel string, res lavalink.LoadResult) error {
	if _, err := p.Join(ctx, channel, ic.ChannelID()); err != nil {
		return c.fail(ic, err)
	}
	out, err := p.Play(ctx, res.Tracks...)
	if err != nil {
		return c.fail(ic, err)
	}
	_ = ic.Usage.Commit(ctx)

	switch {
	case out.Started != nil && res.Playlist == "":
		return ic.Embed(ui.NowPlaying(*out.Started, p.Snapshot().Volume))
	case res.Playlist != "":
		return ic.Embed(ui.Success("Playlist Added",
			fmt.Sprintf("🎶 Added **%d** songs from **%s**.", len(res.Tracks), res.Playlist)))
	default:
		t := res.Tracks[0]
		return ic.Embed(ui.Success("Added to Queue",
			fmt.Sprintf("🎶 **%s** `[%s]`\n📍 Position in queue: **%d**", t.Title, t.DurationString(), out.Position)))
	}
}

func (c *MusicCommand) runSkip(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer) error {
	skipped, next, err := p.Skip(ctx)
	if err != nil {
		return c.fail(ic, err)
	}
	desc := fmt.Sprintf("⏭️ **%s** has been skipped.", skipped.Title)
	if next != nil {
		desc += fmt.Sprintf("\n\n🎵 **Next:** %s", next.Title)
	} else {
		desc += "\n\n📭 No more songs in queue."
	}
	return c.commitAnd(ctx, ic, ui.Success("Song Skipped", desc))
}

func (c *MusicCommand) runVolume(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, opts command.Options) error {
	level, ok := opts.Int("level")
	if !ok {
		return c.fail(ic, player.ErrInvalidVolume)
	}
	if err := p.SetVolume(ctx, level); err != nil {
		return c.fail(ic, err)
	}
	emoji := "🔉"
	switch {
	case level > 70:
		emoji = "🔊"
	case level < 30:
		emoji = "🔈"
	}
	return c.commitAnd(ctx, ic, ui.Success("Volume Updated", fmt.Sprintf("%s Volume set to **%d%%**.", emoji, level)))
}

var loopText = map[player.LoopMode]string{
	player.LoopNone:  "🔄 Loop is **off**.",
	player.LoopSong:  "🔂 Looping the **current song**.",
	player.LoopQueue: "🔁 Looping the **entire queue**.",
}

func (c *MusicCommand) runLoop(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, mode string) error {
	if mode == "" {
		return c.commitAnd(ctx, ic, ui.Info("Loop Status", loopText[p.Snapshot().Loop]))
	}
	m, err := player.ParseLoopMode(mode)
	if err != nil {
		return ic.EmbedEphemeral(ui.Error("Loop Failed", err.Error()))
	}
	p.SetLoop(m)
	return c.commitAnd(ctx, ic, ui.Success("Loop Mode Updated", loopText[m]))
}

func (c *MusicCommand) runRadio(ctx context.Context, ic *command.SlashInteractionContext, p *player.GuildPlayer, genre string) error {
	if genre == "" {
		genre = "pop"
	}
	station, err := c.Radio.Lookup(genre)
	if err != nil {
		return c.fail(ic, err)
	}
	channel := c.Voice.UserVoiceChannel(ic.GuildID(), ic.User().ID)
	if channel == "" {
		return c.fail(ic, player.ErrNotInVoice)
	}
	if err := ic.Reply.Defer(false); err != nil {
		return fmt.Errorf("defer radio: %w", err)
	}

	res, err := c.Tracks.Load(ctx, station.URL, ic.User().ID)
	if err != nil {
		return c.fail(ic, err)
	}
	if len(res.Tracks) == 0 {
		return c.fail(ic, lavalink.ErrNoMatches)
	}
	t := res.Tracks[0]
	t.Title = station.Name
	t.Platform = "radio"
	t.IsStream = true

	if _, err := p.Join(ctx, channel, ic.ChannelID()); err != nil {
		return c.fail(ic, err)
	}
	if err := p.PlayRadio(ctx, t); err != nil {
		return c.fail(ic, err)
	}
	return c.commitAnd(ctx, ic, ui.Success("Radio Started",
		fmt.Sprintf("📻 Now streaming **%s** (%s).\nUse `/music stop` to end the stream.", station.Name, genre)))
}

func isYouTubeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// podcastQuery biases plain searches towards podcasts. URLs are left alone.
func podcastQuery(q string) string {
	q = strings.TrimSpace(q)
	if strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") {
		return q
	}
	if !strings.Contains(strings.ToLower(q), "podcast") {
		q += " podcast"
	}
	return q
}

// fail answers the user with an ephemeral description of err. Errors the user
// can act on are not returned to the caller.
func (c *MusicCommand) fail(ic *command.SlashInteractionContext, err error) error {
	title, msg, expected := describe(err)
	if !expected {
		logging.OrNop(c.Log).Errorw("Music command failed", "guild", ic.GuildID(), "error", err)
	}
	if rerr := ic.EmbedEphemeral(ui.Error(title, msg)); rerr != nil {
		return rerr
	}
	if expected {
		return nil
	}
	return err
}

func describe(err error) (title, msg string, expected bool) {
	var voiceErr *player.VoiceError
	var loadErr *lavalink.LoadError
	switch {
	case errors.Is(err, player.ErrNotInVoice):
		return "Voice Channel Required", "You need to be in a voice channel to use this command.", true
	case errors.Is(err, player.ErrConnectedElsewhere):
		return "Already Connected", "I'm already playing in another voice channel.", true
	case errors.Is(err, player.ErrNotConnected):
		return "Not Connected", "I'm not connected to a voice channel.", true
	case errors.Is(err, player.ErrNothingPlaying):
		return "Nothing Playing", "There is no song currently playing.", true
	case errors.Is(err, player.ErrAlreadyPaused):
		return "Already Paused", "Playback is already paused.", true
	case errors.Is(err, player.ErrAlreadyPlaying):
		return "Not Paused", "Playback is not paused.", true
	case errors.Is(err, player.ErrInvalidVolume):
		return "Invalid Volume", "Volume must be between 1 and 100.", true
	case errors.Is(err, player.ErrQueueTooShort):
		return "Cannot Shuffle", "Need at least 2 songs in the queue to shuffle.", true
	case errors.Is(err, player.ErrNoVoicePermission):
		return "Missing Permissions", "I need permission to connect and speak in your voice channel.", true
	case errors.Is(err, errNotYouTube):
		return "Invalid URL", "Please provide a valid YouTube URL.", true
	case errors.Is(err, errNotLive):
		return "Not a Livestream", "This URL does not appear to be a YouTube livestream.", true
	case errors.Is(err, lavalink.ErrNoMatches):
		return "No Results", "No results found for that song. Please try a different query or URL.", true
	case errors.Is(err, radio.ErrUnknownGenre):
		return "Unknown Genre", "That radio genre is not available.", true
	case errors.As(err, &loadErr):
		return "Load Failed", loadErr.Message, true
	case errors.As(err, &voiceErr):
		return "Voice Error", "Failed to connect to the voice channel.", false
	default:
		return "Command Error", "Something went wrong. Please try again later.", false
	}
}
