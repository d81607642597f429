package relaycmd

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/dlbridge/pkg/chat"
	"github.com/tinyland-inc/dlbridge/pkg/config"
	"github.com/tinyland-inc/dlbridge/pkg/directline"
	"github.com/tinyland-inc/dlbridge/pkg/logger"
	"github.com/tinyland-inc/dlbridge/pkg/registry"
	"github.com/tinyland-inc/dlbridge/pkg/relay"
	"github.com/tinyland-inc/dlbridge/pkg/storage"
	"github.com/tinyland-inc/dlbridge/pkg/transport"
)

func relayCmd(debug bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg.LogLevel, cfg.LogJSON)

	var store storage.Store
	if cfg.StoragePath != "" {
		store, err = storage.OpenBolt(cfg.StoragePath)
		if err != nil {
			return fmt.Errorf("error opening storage: %w", err)
		}
		log.Info().Str("path", cfg.StoragePath).Msg("using bolt storage")
	} else {
		store = storage.NewMemoryStore()
		log.Warn().Msg("no storage path configured, conversation mappings will not survive restarts")
	}
	defer store.Close()

	discord, err := chat.NewDiscord(cfg.DiscordSecret, cfg.TypingExpiry, log)
	if err != nil {
		return fmt.Errorf("error creating discord client: %w", err)
	}

	dl := directline.NewClient(cfg.DirectLineSecret, directline.WithBase(cfg.DirectLineBase))

	manager := transport.NewManager(transport.Options{
		BotID:       cfg.BotID,
		BotName:     cfg.BotName,
		DialTimeout: cfg.ConnectTimeout,
		Logger:      log,
	})

	bridge := relay.New(relay.Options{
		Chat:       discord,
		DirectLine: dl,
		Registry:   registry.New(store),
		Transport:  manager,
		Logger:     log,
	})

	return bridge.Run(context.Background())
}
