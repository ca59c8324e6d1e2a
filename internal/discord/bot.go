// Package discord is the gateway glue: it routes interactions to the command
// registry, voice events to the voice controller and the audio node, and keeps
// guild slash commands in sync.
package discord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/ui"
	"github.com/keshon/lyrabot/internal/voice"
	"github.com/keshon/lyrabot/pkg/cmd"
	"github.com/keshon/lyrabot/pkg/util"
)

// AudioNode is the part of the audio node client that follows gateway events.
type AudioNode interface {
	Run(ctx context.Context, userID string) error
	VoiceStateUpdate(ctx context.Context, guildID, channelID, sessionID string)
	VoiceServerUpdate(ctx context.Context, guildID, token, endpoint string)
}

// VoiceHandler reacts to voice-state changes of any member.
type VoiceHandler interface {
	Handle(ctx context.Context, ev voice.StateChange)
}

type Options struct {
	Token          string
	GuildBlacklist []string
	SyncCommands   bool
	// CommandCacheDir holds the per-guild command hash files.
	CommandCacheDir string
}

type Bot struct {
	dg       *discordgo.Session
	opts     Options
	registry *cmd.Registry
	syncer   *commandSyncer
	log      *zap.SugaredLogger

	node  AudioNode
	voice VoiceHandler

	ctx       context.Context
	nodeOnce  sync.Once
	readyOnce sync.Once
	ready     chan struct{}
	known     sync.Map
}

func New(opts Options, registry *cmd.Registry, log *zap.SugaredLogger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers
	if opts.CommandCacheDir == "" {
		opts.CommandCacheDir = "data/commands"
	}
	log = logging.OrNop(log).Named("discord")
	return &Bot{
		dg:       dg,
		opts:     opts,
		registry: registry,
		syncer:   newCommandSyncer(dg, registry, opts.CommandCacheDir, log),
		log:      log,
		ctx:      context.Background(),
		ready:    make(chan struct{}),
	}, nil
}

// Session is the underlying gateway session. It is usable for REST calls
// before Run, but the state cache only fills once connected.
func (b *Bot) Session() *discordgo.Session { return b.dg }

func (b *Bot) Directory() Directory { return Directory{State: b.dg.State} }

// Ready is closed once the gateway session is ready for the first time.
func (b *Bot) Ready() <-chan struct{} { return b.ready }

// Attach sets the audio node and voice handler. Call before Run.
func (b *Bot) Attach(node AudioNode, vh VoiceHandler) {
	b.node = node
	b.voice = vh
}

// UserID is the bot's own user ID; empty until the gateway is ready.
func (b *Bot) UserID() string {
	if b.dg.State == nil || b.dg.State.User == nil {
		return ""
	}
	return b.dg.State.User.ID
}

// SetListening sets the bot's "Listening to" status.
func (b *Bot) SetListening(status string) error {
	return b.dg.UpdateListeningStatus(status)
}

// Run connects to the gateway and blocks until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onVoiceStateUpdate)
	b.dg.AddHandler(b.onVoiceServerUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	<-ctx.Done()
	b.log.Info("Shutdown signal received, closing gateway")
	return b.dg.Close()
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.opts.GuildBlacklist, guildID)
}

func (b *Bot) leaveGuild(guildID, name string) {
	b.log.Infow("Leaving blacklisted guild", "guild", guildID, "name", name)
	if err := b.syncer.Purge(b.UserID(), guildID); err != nil {
		b.log.Warnw("Remove commands from blacklisted guild failed", "guild", guildID, "error", err)
	}
	if err := b.dg.GuildLeave(guildID); err != nil {
		b.log.Errorw("Leave guild failed", "guild", guildID, "error", err)
	}
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	ctx := b.ctx
	b.log.Infow("Connected to gateway", "user", r.User.Username, "guilds", len(r.Guilds))

	if b.node != nil {
		b.nodeOnce.Do(func() {
			go func() {
				if err := b.node.Run(ctx, r.User.ID); err != nil && !errors.Is(err, context.Canceled) {
					b.log.Errorw("Audio node connection stopped", "error", err)
				}
			}()
		})
	}

	var active []string
	for _, g := range r.Guilds {
		b.known.Store(g.ID, struct{}{})
		if b.isGuildBlacklisted(g.ID) {
			b.leaveGuild(g.ID, g.Name)
			continue
		}
		active = append(active, g.ID)
	}

	b.readyOnce.Do(func() { close(b.ready) })

	if !b.opts.SyncCommands {
		b.log.Info("Slash command sync skipped")
		return
	}
	err := util.ForEach(ctx, active, 4, func(ctx context.Context, guildID string) error {
		_, err := b.syncer.Sync(ctx, r.User.ID, guildID)
		return err
	})
	if err != nil {
		b.log.Errorw("Slash command sync finished with errors", "error", err)
	}
}

// onGuildCreate handles guilds joined after startup; the ones listed in Ready
// were handled there.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if _, seen := b.known.LoadOrStore(g.ID, struct{}{}); seen {
		return
	}
	b.log.Infow("Added to guild", "guild", g.ID, "name", g.Name)
	if b.isGuildBlacklisted(g.ID) {
		b.leaveGuild(g.ID, g.Name)
		return
	}
	if !b.opts.SyncCommands {
		return
	}
	if _, err := b.syncer.Sync(b.ctx, b.UserID(), g.ID); err != nil {
		b.log.Errorw("Register commands for new guild failed", "guild", g.ID, "error", err)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	ic := &command.SlashInteractionContext{
		Session: s,
		Event:   i,
		Reply:   command.NewInteractionReplier(s, i.Interaction),
	}

	c, ok := b.registry.Get(data.Name)
	if !ok {
		b.log.Warnw("Unknown command", "command", data.Name)
		_ = ic.EmbedEphemeral(ui.Error("Unknown Command", fmt.Sprintf("`/%s` is not available.", data.Name)))
		return
	}
	if err := c.Run(b.ctx, command.Invocation(ic)); err != nil {
		b.log.Debugw("Command returned error", "command", data.Name, "error", err)
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	ctx := b.ctx
	if v.UserID == b.UserID() && b.node != nil {
		b.node.VoiceStateUpdate(ctx, v.GuildID, v.ChannelID, v.SessionID)
	}
	if b.voice == nil {
		return
	}
	ev := voice.StateChange{
		GuildID:        v.GuildID,
		UserID:         v.UserID,
		AfterChannelID: v.ChannelID,
	}
	if v.BeforeUpdate != nil {
		ev.BeforeChannelID = v.BeforeUpdate.ChannelID
	}
	b.voice.Handle(ctx, ev)
}

func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	if b.node != nil {
		b.node.VoiceServerUpdate(b.ctx, v.GuildID, v.Token, v.Endpoint)
	}
}
