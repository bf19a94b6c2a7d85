package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"platinmods-tracker/pkg/tracker"
)

// Checker triggers a monitoring cycle on demand.
type Checker interface {
	RunCycle(ctx context.Context) (*tracker.Summary, error)
}

// CommandListener long-polls the Telegram Bot API for commands. It answers
// /start with the chat identifier (needed to configure the notification
// destination) and /check with a manual cycle plus a summary report.
type CommandListener struct {
	provider *TelegramProvider
	checker  Checker
	logger   *slog.Logger
	offset   int64
}

// NewCommandListener creates a command listener bound to a Telegram
// provider.
func NewCommandListener(provider *TelegramProvider, checker Checker, logger *slog.Logger) *CommandListener {
	return &CommandListener{
		provider: provider,
		checker:  checker,
		logger:   logger,
	}
}

// telegramUpdate is the subset of the getUpdates payload the listener
// consumes.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"chat"`
	} `json:"message"`
}

// Run polls for commands until the context is cancelled.
func (l *CommandListener) Run(ctx context.Context) {
	l.logger.Info("Telegram command listener started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Telegram command listener stopped", "error", ctx.Err())
			return
		default:
		}

		updates, err := l.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.logger.Warn("getUpdates failed, backing off", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for i := range updates {
			l.handleUpdate(ctx, &updates[i])
		}
	}
}

func (l *CommandListener) fetchUpdates(ctx context.Context) ([]telegramUpdate, error) {
	// Long-poll timeout must stay under the HTTP client timeout
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=25&offset=%d", l.provider.apiBase, l.provider.token, l.offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.provider.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll updates: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			l.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var apiResp telegramResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("telegram API error (HTTP %d): %s", resp.StatusCode, apiResp.Description)
	}

	var updates []telegramUpdate
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}

	for i := range updates {
		if updates[i].UpdateID >= l.offset {
			l.offset = updates[i].UpdateID + 1
		}
	}

	return updates, nil
}

func (l *CommandListener) handleUpdate(ctx context.Context, update *telegramUpdate) {
	if update.Message == nil {
		return
	}

	command, _, _ := strings.Cut(strings.TrimSpace(update.Message.Text), " ")
	// Commands in groups arrive as /command@botname
	command, _, _ = strings.Cut(command, "@")
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)

	switch command {
	case "/start":
		l.logger.Info("Handling /start command", "chat_id", chatID, "chat_type", update.Message.Chat.Type)
		l.reply(ctx, chatID, startReply(chatID, update.Message.Chat.Type))
	case "/check":
		l.logger.Info("Handling /check command", "chat_id", chatID)
		l.handleCheck(ctx, chatID)
	default:
	}
}

func (l *CommandListener) handleCheck(ctx context.Context, chatID string) {
	// Reply immediately so the chat never appears to hang
	l.reply(ctx, chatID, "🔄 **Force check initiated...** Please wait for the summary report.")

	summary, err := l.checker.RunCycle(ctx)
	switch {
	case errors.Is(err, tracker.ErrCycleBusy):
		l.reply(ctx, chatID, "⏳ A check is already running. Try again shortly.")
	case err != nil:
		l.logger.Error("Manual check failed", "chat_id", chatID, "error", err)
		l.reply(ctx, chatID, "❌ **Check failed.** An internal error occurred.")
	default:
		l.reply(ctx, chatID, RenderSummary(summary))
	}
}

func (l *CommandListener) reply(ctx context.Context, chatID, text string) {
	if err := l.provider.SendTo(ctx, chatID, text); err != nil {
		l.logger.Warn("Failed to send command reply", "chat_id", chatID, "error", err)
	}
}

func startReply(chatID, chatType string) string {
	if chatType == "private" {
		return fmt.Sprintf(
			"👋 **Bot is Online!**\n\nYour **PRIVATE** Chat ID is: `%s`\n\n"+
				"**Action Required:** Set this ID as your notification chat in the tracker configuration to receive private alerts.",
			chatID)
	}
	return fmt.Sprintf(
		"👋 **Bot is Online!**\n\nThe Chat ID for this **%s** is: `%s`\n\n"+
			"**NOTE:** For private notifications, use /start in a direct message to the bot and use that ID instead.",
		strings.ToUpper(chatType), chatID)
}
