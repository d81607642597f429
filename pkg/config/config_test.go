package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DiscordSecret:    "discord-secret",
		DirectLineSecret: "dl-secret",
		BotID:            "bot-1",
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TypingExpiry != 2*time.Second {
		t.Errorf("expected default typing expiry, got %v", cfg.TypingExpiry)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("expected default connect timeout, got %v", cfg.ConnectTimeout)
	}
}

func TestValidate_MissingDiscordSecret(t *testing.T) {
	cfg := validConfig()
	cfg.DiscordSecret = ""
	err := cfg.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidate_MissingDirectLineSecret(t *testing.T) {
	cfg := validConfig()
	cfg.DirectLineSecret = ""
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidate_BotNameAloneSuffices(t *testing.T) {
	cfg := validConfig()
	cfg.BotID = ""
	cfg.BotName = "relay-bot"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoBotIdentity(t *testing.T) {
	cfg := validConfig()
	cfg.BotID = ""
	cfg.BotName = ""
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
