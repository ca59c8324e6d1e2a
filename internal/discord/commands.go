package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/pkg/cmd"
)

// commandAPI is the slice of the Discord REST API command sync needs.
type commandAPI interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID, guildID string, c *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// commandSyncer keeps a guild's slash commands in line with the registry:
// obsolete ones are deleted, changed or missing ones are (re)created.
type commandSyncer struct {
	api      commandAPI
	registry *cmd.Registry
	cache    hashCache
	pace     *rate.Limiter
	log      *zap.SugaredLogger
}

func newCommandSyncer(api commandAPI, registry *cmd.Registry, cacheDir string, log *zap.SugaredLogger) *commandSyncer {
	return &commandSyncer{
		api:      api,
		registry: registry,
		cache:    hashCache{dir: cacheDir},
		// stay well under Discord's command create rate limit
		pace: rate.NewLimiter(rate.Limit(40), 1),
		log:  logging.OrNop(log),
	}
}

// definitions returns ApplicationCommand definitions for all registered commands.
func (s *commandSyncer) definitions() []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range s.registry.All() {
		if def := command.Slash(c); def != nil {
			if def.Type == 0 {
				def.Type = discordgo.ChatApplicationCommand
			}
			defs = append(defs, def)
		}
	}
	return defs
}

// Sync reconciles guildID's commands and returns how many were created.
func (s *commandSyncer) Sync(ctx context.Context, appID, guildID string) (int, error) {
	remote, err := s.api.ApplicationCommands(appID, guildID)
	if err != nil {
		return 0, fmt.Errorf("list commands for %s: %w", guildID, err)
	}
	remoteByName := make(map[string]*discordgo.ApplicationCommand, len(remote))
	for _, c := range remote {
		remoteByName[c.Name] = c
	}

	local := s.definitions()
	localNames := make(map[string]struct{}, len(local))
	for _, d := range local {
		localNames[d.Name] = struct{}{}
	}

	hashes := s.cache.load(guildID)
	var errs []error

	for name, rc := range remoteByName {
		if _, keep := localNames[name]; keep {
			continue
		}
		s.log.Infow("Deleting obsolete command", "guild", guildID, "command", name)
		if err := s.api.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		delete(hashes, name)
	}

	created := 0
	for _, d := range local {
		h := hashCommand(d)
		if _, registered := remoteByName[d.Name]; registered && hashes[d.Name] == h {
			continue
		}
		if err := s.pace.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.api.ApplicationCommandCreate(appID, guildID, d); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", d.Name, err))
			continue
		}
		hashes[d.Name] = h
		created++
	}
	if created > 0 {
		s.log.Infow("Registered changed commands", "guild", guildID, "count", created)
	}

	if err := s.cache.save(guildID, hashes); err != nil {
		errs = append(errs, err)
	}
	return created, errors.Join(errs...)
}

// Purge deletes every command the bot has registered in guildID.
func (s *commandSyncer) Purge(appID, guildID string) error {
	existing, err := s.api.ApplicationCommands(appID, guildID)
	if err != nil {
		return fmt.Errorf("list commands for %s: %w", guildID, err)
	}
	var errs []error
	for _, c := range existing {
		if err := s.api.ApplicationCommandDelete(appID, guildID, c.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", c.Name, err))
		}
	}
	if err := s.cache.save(guildID, map[string]string{}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
