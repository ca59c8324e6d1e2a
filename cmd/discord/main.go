// cmd/discord/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/command/admin"
	"github.com/keshon/lyrabot/internal/command/core"
	"github.com/keshon/lyrabot/internal/command/music"
	voicecmd "github.com/keshon/lyrabot/internal/command/voice"
	"github.com/keshon/lyrabot/internal/config"
	"github.com/keshon/lyrabot/internal/discord"
	"github.com/keshon/lyrabot/internal/httpapi"
	"github.com/keshon/lyrabot/internal/lavalink"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/middleware"
	"github.com/keshon/lyrabot/internal/music/player"
	"github.com/keshon/lyrabot/internal/notify"
	"github.com/keshon/lyrabot/internal/radio"
	"github.com/keshon/lyrabot/internal/scheduler"
	"github.com/keshon/lyrabot/internal/storage"
	"github.com/keshon/lyrabot/internal/voice"
	"github.com/keshon/lyrabot/pkg/cmd"
	"github.com/keshon/lyrabot/pkg/retrylimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("LyraBot stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("LyraBot exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	log.Info("Starting LyraBot")

	store, err := storage.New(ctx, cfg.StoragePath, storage.Options{ContactLink: cfg.ContactLink})
	if err != nil {
		return err
	}
	defer store.Close()

	stations := radio.Default()
	if cfg.RadioCatalog != "" {
		if stations, err = radio.Load(cfg.RadioCatalog); err != nil {
			return err
		}
	}

	resolver := access.NewResolver(store, cfg.SuperAdminID, time.Now, log.Named("access"))
	limiter := access.NewLimiter(resolver, store, access.LimiterOptions{
		Quota:  cfg.DailyQuota,
		Window: cfg.ResetWindow,
	}, log.Named("access"))

	node, err := lavalink.New(lavalink.Options{
		BaseURL:    cfg.LavalinkURL,
		Password:   cfg.LavalinkPassword,
		ClientName: "LyraBot",
	}, log.Named("lavalink"))
	if err != nil {
		return err
	}

	registry := cmd.NewRegistry()
	bot, err := discord.New(discord.Options{
		Token:          cfg.DiscordToken,
		GuildBlacklist: cfg.GuildBlacklist,
		SyncCommands:   cfg.InitSlashCommands,
	}, registry, log)
	if err != nil {
		return err
	}
	dir := bot.Directory()

	players := player.NewManager(node, discord.VoiceGateway{Session: bot.Session()}, player.Options{
		DefaultVolume: cfg.DefaultVolume,
		Mode247Grace:  cfg.Mode247Grace,
	}, log.Named("player"))
	node.OnTrackEnd(players.HandleTrackEnd)

	notifier := notify.New(notify.SessionSender{Session: bot.Session()}, retrylimit.Config{}, log.Named("notify"))
	controller := voice.NewController(players, dir, notifier, bot.UserID, voice.Options{IdleTimeout: cfg.IdleTimeout}, log.Named("voice"))
	bot.Attach(node, controller)

	if err := registerCommands(registry, cfg, store, resolver, limiter, players, node, stations, dir, notifier, log); err != nil {
		return err
	}

	sched := scheduler.New(store, notifier, dir, bot, players, scheduler.Options{}, log.Named("scheduler"))
	announcer := &discord.Announcer{Players: players, History: store, Poster: notifier, Names: dir, Log: log.Named("announce")}
	status := httpapi.New(httpapi.Options{Addr: cfg.HTTPAddr, Debug: cfg.LogLevel == "debug", Jobs: sched}, players, store, node, log)

	go announcer.Run(ctx)
	go func() {
		if err := status.Run(ctx); err != nil {
			log.Errorw("Status server failed", "error", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-bot.Ready():
		}
		if err := sched.Start(ctx); err != nil {
			log.Errorw("Scheduler start failed", "error", err)
		}
	}()
	defer sched.Stop()

	err = bot.Run(ctx)

	// leave voice everywhere before the gateway connection is gone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	players.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func registerCommands(
	reg *cmd.Registry,
	cfg *config.Config,
	store *storage.Storage,
	resolver *access.Resolver,
	limiter *access.Limiter,
	players *player.Manager,
	node *lavalink.Client,
	stations *radio.Catalog,
	dir discord.Directory,
	notifier *notify.Notifier,
	log *zap.SugaredLogger,
) error {
	cmdLog := log.Named("command")
	guildOnly := middleware.WithGuildOnly()
	roles := middleware.WithRoleRequirement(resolver, cmdLog)
	gate := middleware.WithUsageGate(limiter, store, cfg.ContactLink, cmdLog)
	history := middleware.WithCommandLogger(store, cmdLog)

	metered := []cmd.Middleware{guildOnly, roles, gate, history}

	commands := []struct {
		c   command.DiscordCommand
		mws []cmd.Middleware
	}{
		{&core.HelpCommand{Registry: reg}, []cmd.Middleware{history}},
		{&core.LimitsCommand{Limiter: limiter}, []cmd.Middleware{history}},
		{&core.StatsCommand{History: store, Log: cmdLog}, metered},
		{&music.MusicCommand{Players: players, Tracks: node, Voice: dir, Radio: stations, Log: cmdLog}, metered},
		{&voicecmd.VoiceCommand{Players: players, Voice: dir, Log: cmdLog}, metered},
		// admin operations are staff-only and never spend quota
		{&admin.AdminCommand{
			Store:  store,
			Roles:  resolver,
			Limits: limiter,
			DM:     notifier,
			Guilds: dir,
			Now:    time.Now,
			Log:    cmdLog,
		}, []cmd.Middleware{guildOnly, roles, history}},
	}
	for _, e := range commands {
		if err := command.RegisterCommand(reg, e.c, e.mws...); err != nil {
			return err
		}
	}
	return nil
}
