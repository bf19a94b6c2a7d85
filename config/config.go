// Package config loads tracker configuration from .env, config.yaml, and
// the environment. Configuration is read once at startup and immutable for
// the process lifetime.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"platinmods-tracker/pkg/tracker"
)

// TargetEntry is one configured page to track.
type TargetEntry struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// TelegramConfig holds Telegram provider settings.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// DiscordConfig holds Discord provider settings.
type DiscordConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

// GmailConfig holds Gmail provider settings.
type GmailConfig struct {
	To      string `mapstructure:"to"`
	Subject string `mapstructure:"subject"`
}

// NotifyConfig selects and configures the notification provider.
type NotifyConfig struct {
	Provider string         `mapstructure:"provider"` // telegram, discord, gmail, mock
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
}

// Config is the full startup configuration.
type Config struct {
	Interval       time.Duration `mapstructure:"interval"`
	Port           string        `mapstructure:"port"`
	StatePath      string        `mapstructure:"state_path"`
	Bucket         string        `mapstructure:"bucket"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	CheckAtStartup bool          `mapstructure:"check_at_startup"`
	Users          []TargetEntry `mapstructure:"users"`
	Forums         []TargetEntry `mapstructure:"forums"`
	Notify         NotifyConfig  `mapstructure:"notify"`
}

// Load reads .env (if present) and config.yaml from the given directory,
// with environment variables overriding file settings.
func Load(dir string, logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, skipping", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("interval", "5m")
	v.SetDefault("port", "8080")
	v.SetDefault("state_path", "./data/state.json")
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("check_at_startup", true)
	v.SetDefault("notify.provider", "mock")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config.yaml found, using environment and defaults")
		} else {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}

	switch c.Notify.Provider {
	case "telegram":
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return errors.New("telegram provider requires notify.telegram.bot_token and notify.telegram.chat_id")
		}
	case "discord":
		if c.Notify.Discord.BotToken == "" || c.Notify.Discord.ChannelID == "" {
			return errors.New("discord provider requires notify.discord.bot_token and notify.discord.channel_id")
		}
	case "gmail":
		if c.Notify.Gmail.To == "" {
			return errors.New("gmail provider requires notify.gmail.to")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown notify provider %q", c.Notify.Provider)
	}

	for _, entry := range append(append([]TargetEntry{}, c.Users...), c.Forums...) {
		if entry.Name == "" || entry.URL == "" {
			return errors.New("every target needs a name and a url")
		}
	}

	return nil
}

// Targets returns the configured targets in stable order: users first, then
// forums, each in configuration order.
func (c *Config) Targets() []tracker.Target {
	targets := make([]tracker.Target, 0, len(c.Users)+len(c.Forums))
	for _, entry := range c.Users {
		targets = append(targets, tracker.Target{Kind: tracker.KindUser, Name: entry.Name, URL: entry.URL})
	}
	for _, entry := range c.Forums {
		targets = append(targets, tracker.Target{Kind: tracker.KindForum, Name: entry.Name, URL: entry.URL})
	}
	return targets
}
