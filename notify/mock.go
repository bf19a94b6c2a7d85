package notify

import (
	"context"
	"log/slog"
)

// MockProvider logs messages instead of delivering them, for local
// development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the message instead of sending it.
func (m *MockProvider) Send(_ context.Context, text string) error {
	m.logger.Info("MOCK NOTIFICATION",
		"text", text,
		"text_length", len(text))
	return nil
}
