// Package main implements a service that monitors platinmods.com member
// profiles and forum listings, detects state changes between polling
// cycles, and delivers notifications to a configured messaging destination.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/robfig/cron/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"platinmods-tracker/config"
	"platinmods-tracker/notify"
	"platinmods-tracker/pkg/tracker"
	"platinmods-tracker/poll"
	"platinmods-tracker/scraper"
	"platinmods-tracker/server"
	"platinmods-tracker/store"
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(".", logger)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	targets := cfg.Targets()
	if len(targets) == 0 {
		logger.Warn("No targets configured, nothing will be tracked")
	}
	logger.Info("Configuration loaded",
		"targets", len(targets),
		"interval", cfg.Interval.String(),
		"provider", cfg.Notify.Provider)

	// Snapshot store: local file by default, Cloud Storage when a bucket is
	// configured.
	var storageClient *gcs.Client
	localPath := cfg.StatePath
	if cfg.Bucket != "" {
		localPath = ""
		storageClient, err = gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
		logger.Info("Using Cloud Storage state", "bucket", cfg.Bucket)
	} else {
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			logger.Error("Failed to create state directory", "error", err)
			os.Exit(1)
		}
		logger.Info("Using local state file", "path", localPath)
	}

	st := store.New(storageClient, cfg.Bucket, localPath, logger)
	if err := st.Load(ctx); err != nil {
		logger.Error("Failed to load state", "error", err)
		os.Exit(1)
	}

	scr := scraper.New(&http.Client{Timeout: 30 * time.Second}, logger)

	provider, tgProvider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize notification provider", "error", err)
		os.Exit(1)
	}
	sender := notify.New(provider, cfg.Notify.Provider, logger)

	monitor := poll.New(scr, st, sender, targets, cfg.MaxConcurrent, logger)

	// Scheduled cycles; an in-flight cycle makes the tick a no-op.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.Interval), func() {
		runScheduledCycle(ctx, monitor, logger)
	}); err != nil {
		logger.Error("Failed to schedule cycle job", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info("Scheduler started", "interval", cfg.Interval.String())

	if cfg.CheckAtStartup {
		go runScheduledCycle(ctx, monitor, logger)
	}

	// Telegram chats can ask for the chat id (/start) and manual checks
	// (/check).
	if tgProvider != nil {
		listener := notify.NewCommandListener(tgProvider, monitor, logger)
		go listener.Run(ctx)
	}

	srv := server.New(monitor, logger)
	if err := srv.ListenAndServe(cfg.Port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// buildProvider constructs the configured notification provider. The
// Telegram provider is returned separately so the command listener can be
// attached to it.
func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Provider, *notify.TelegramProvider, error) {
	switch cfg.Notify.Provider {
	case "telegram":
		tg := notify.NewTelegramProvider(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID, logger)
		return tg, tg, nil
	case "discord":
		discord, err := notify.NewDiscordProvider(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID, logger)
		if err != nil {
			return nil, nil, err
		}
		return discord, nil, nil
	case "gmail":
		service, err := initGmailService(ctx)
		if err != nil {
			return nil, nil, err
		}
		return notify.NewGmailProvider(service, cfg.Notify.Gmail.To, cfg.Notify.Gmail.Subject, logger), nil, nil
	case "mock":
		logger.Info("Mock notification mode enabled")
		return notify.NewMockProvider(logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify provider %q", cfg.Notify.Provider)
	}
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Explicit credentials first (local development)
	credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// In a GCP environment, Application Default Credentials pick up the
	// service account automatically.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// isCloudRun checks if we're running in a GCP environment by querying the
// metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func runScheduledCycle(ctx context.Context, monitor *poll.Monitor, logger *slog.Logger) {
	summary, err := monitor.RunCycle(ctx)
	switch {
	case errors.Is(err, tracker.ErrCycleBusy):
		logger.Info("Skipping scheduled cycle, previous cycle still running")
	case err != nil:
		logger.Error("Scheduled cycle failed", "error", err)
	default:
		logger.Info("Scheduled cycle finished",
			"changes", summary.ChangeCount(),
			"failures", summary.FailureCount())
	}
}
