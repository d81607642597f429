package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrConfiguration is returned when a required secret or parameter is
// missing at startup. It is raised before any network activity.
var ErrConfiguration = errors.New("configuration error")

// Config holds all process configuration. Values are read from the
// environment (optionally seeded from a .env file); there is no runtime
// hot-reload.
type Config struct {
	// DiscordSecret is the Discord bot token.
	DiscordSecret string `env:"DLBRIDGE_DISCORD_SECRET"`
	// DirectLineSecret is the Direct Line channel secret used as the
	// bearer token on all REST calls.
	DirectLineSecret string `env:"DLBRIDGE_DIRECTLINE_SECRET"`
	// BotID is the stable identity of the protocol-side bot, used to
	// filter echoed activities on every inbound path.
	BotID string `env:"DLBRIDGE_BOT_ID"`
	// BotName is a display-name fallback for echo filtering when an
	// activity carries no from.id.
	BotName string `env:"DLBRIDGE_BOT_NAME"`

	// DirectLineBase overrides the Direct Line endpoint base, mainly
	// for tests.
	DirectLineBase string `env:"DLBRIDGE_DIRECTLINE_BASE" envDefault:"https://directline.botframework.com/v3/directline"`

	// StoragePath is the bbolt database file. Empty selects the
	// in-memory store.
	StoragePath string `env:"DLBRIDGE_STORAGE_PATH"`

	LogLevel string `env:"DLBRIDGE_LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"DLBRIDGE_LOG_JSON"  envDefault:"false"`

	// TypingExpiry bounds how long a typing indicator stays on without
	// a follow-up signal.
	TypingExpiry time.Duration `env:"DLBRIDGE_TYPING_EXPIRY" envDefault:"2s"`
	// ConnectTimeout bounds each streaming-transport dial attempt.
	ConnectTimeout time.Duration `env:"DLBRIDGE_CONNECT_TIMEOUT" envDefault:"15s"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// Missing .env is not an error; env vars may be set directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every required secret is present and fills
// defaults for zero durations.
func (c *Config) Validate() error {
	if c.DiscordSecret == "" {
		return fmt.Errorf("%w: discord bot secret not set", ErrConfiguration)
	}
	if c.DirectLineSecret == "" {
		return fmt.Errorf("%w: direct line secret not set", ErrConfiguration)
	}
	if c.BotID == "" && c.BotName == "" {
		return fmt.Errorf("%w: bot id or bot name required for echo filtering", ErrConfiguration)
	}
	if c.TypingExpiry <= 0 {
		c.TypingExpiry = 2 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	return nil
}
