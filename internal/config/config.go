// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken      string   `env:"DISCORD_TOKEN,required,notEmpty"`
	SuperAdminID      string   `env:"SUPER_ADMIN_ID"`
	GuildBlacklist    []string `env:"GUILD_BLACKLIST" envSeparator:","`
	InitSlashCommands bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"data/lyrabot.db"`
	ContactLink string `env:"CONTACT_LINK" envDefault:"https://discord.gg/kwgshUHVUn"`

	DailyQuota  int           `env:"DAILY_QUOTA" envDefault:"5"`
	ResetWindow time.Duration `env:"RESET_WINDOW" envDefault:"12h"`

	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"5m"`
	Mode247Grace  time.Duration `env:"MODE247_GRACE" envDefault:"60s"`
	DefaultVolume int           `env:"DEFAULT_VOLUME" envDefault:"50"`

	LavalinkURL      string `env:"LAVALINK_URL" envDefault:"http://localhost:2333"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD" envDefault:"youshallnotpass"`

	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8787"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile      string `env:"LOG_FILE"`
	RadioCatalog string `env:"RADIO_CATALOG"`
}

// Load reads .env (if present) and parses the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.DailyQuota <= 0:
		return fmt.Errorf("DAILY_QUOTA must be positive, got %d", c.DailyQuota)
	case c.ResetWindow <= 0:
		return fmt.Errorf("RESET_WINDOW must be positive, got %s", c.ResetWindow)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("IDLE_TIMEOUT must be positive, got %s", c.IdleTimeout)
	case c.Mode247Grace <= 0:
		return fmt.Errorf("MODE247_GRACE must be positive, got %s", c.Mode247Grace)
	case c.DefaultVolume < 1 || c.DefaultVolume > 100:
		return fmt.Errorf("DEFAULT_VOLUME must be within 1..100, got %d", c.DefaultVolume)
	}
	return nil
}
