package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramProvider sends messages via the Telegram Bot API.
type TelegramProvider struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

// NewTelegramProvider creates a new Telegram provider. chatID is the
// destination chat for notifications; send /start to the bot to learn it.
func NewTelegramProvider(token, chatID string, logger *slog.Logger) *TelegramProvider {
	return &TelegramProvider{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// telegramSendRequest represents the sendMessage API request.
type telegramSendRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// telegramResponse is the generic Bot API response envelope.
type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Send sends a message to the configured chat.
func (t *TelegramProvider) Send(ctx context.Context, text string) error {
	return t.SendTo(ctx, t.chatID, text)
}

// SendTo sends a message to an explicit chat, used by the command listener
// for replies.
func (t *TelegramProvider) SendTo(ctx context.Context, chatID, text string) error {
	reqBody := telegramSendRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			t.logger.Info("Telegram API request starting",
				"method", "POST",
				"endpoint", "sendMessage",
				"chat_id", chatID)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token), bytes.NewReader(jsonData))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := t.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				t.logger.Warn("Telegram API request failed, will retry",
					"chat_id", chatID,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					t.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			var apiResp telegramResponse
			if err := json.Unmarshal(body, &apiResp); err != nil {
				return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
			}

			if !apiResp.OK {
				// 4xx responses (bad chat id, bad markup) won't improve on retry
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(fmt.Errorf("telegram API error (HTTP %d): %s", resp.StatusCode, apiResp.Description))
				}
				return fmt.Errorf("telegram API error (HTTP %d): %s", resp.StatusCode, apiResp.Description)
			}

			t.logger.Info("Telegram API request completed",
				"endpoint", "sendMessage",
				"chat_id", chatID,
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
			t.logger.Info("Retrying Telegram send after error", "attempt", n, "error", err)
		}),
	)
}
