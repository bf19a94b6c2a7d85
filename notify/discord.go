package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/codeGROOVE-dev/retry"
)

// DiscordProvider sends messages to a Discord channel via the REST API.
type DiscordProvider struct {
	session   *discordgo.Session
	channelID string
	logger    *slog.Logger
}

// NewDiscordProvider creates a new Discord provider. The session is used
// for REST calls only; no gateway connection is opened.
func NewDiscordProvider(botToken, channelID string, logger *slog.Logger) (*DiscordProvider, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	return &DiscordProvider{
		session:   session,
		channelID: channelID,
		logger:    logger,
	}, nil
}

// Send sends a message to the configured channel.
func (d *DiscordProvider) Send(ctx context.Context, text string) error {
	return retry.Do(
		func() error {
			d.logger.Info("Discord API request starting",
				"endpoint", "channel.message.send",
				"channel_id", d.channelID)

			startTime := time.Now()
			_, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx))
			duration := time.Since(startTime)

			if err != nil {
				d.logger.Warn("Discord send failed, will retry",
					"channel_id", d.channelID,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}

			d.logger.Info("Discord API request completed",
				"endpoint", "channel.message.send",
				"channel_id", d.channelID,
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Info("Retrying Discord send after error", "attempt", n, "error", err)
		}),
	)
}
