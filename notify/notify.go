// Package notify renders change events into human-readable messages and
// delivers them through a pluggable provider (Telegram, Discord, Gmail, or
// a mock for local development).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"platinmods-tracker/pkg/tracker"
)

// Provider defines the interface for message delivery implementations.
type Provider interface {
	// Send delivers a single rendered message to the configured destination.
	Send(ctx context.Context, text string) error
}

// DeliveryError indicates the notification channel failed. Delivery
// failures never affect snapshot correctness.
type DeliveryError struct {
	Provider string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError checks if an error is a DeliveryError.
func IsDeliveryError(err error) bool {
	var delivery *DeliveryError
	return errors.As(err, &delivery)
}

// Sender delivers notifications using a pluggable provider.
type Sender struct {
	provider Provider
	name     string
	logger   *slog.Logger
}

// New creates a notification sender. The name labels the provider in
// delivery errors and logs.
func New(provider Provider, name string, logger *slog.Logger) *Sender {
	return &Sender{
		provider: provider,
		name:     name,
		logger:   logger,
	}
}

// Deliver renders and sends one message per change. Each change is
// delivered independently; the first failure is reported but remaining
// changes are still attempted.
func (s *Sender) Deliver(ctx context.Context, changes []tracker.Change) error {
	if len(changes) == 0 {
		return nil
	}

	s.logger.Info("Delivering change notifications",
		"provider", s.name,
		"change_count", len(changes))

	var errs []error
	for i := range changes {
		text := RenderChange(&changes[i])
		if err := s.provider.Send(ctx, text); err != nil {
			s.logger.Warn("Notification delivery failed",
				"provider", s.name,
				"change", string(changes[i].Kind),
				"target", changes[i].Target.ID(),
				"error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &DeliveryError{Provider: s.name, Err: errors.Join(errs...)}
	}
	return nil
}

// DeliverSummary sends the rendered cycle summary, used for manual-check
// reports.
func (s *Sender) DeliverSummary(ctx context.Context, summary *tracker.Summary) error {
	if err := s.provider.Send(ctx, RenderSummary(summary)); err != nil {
		return &DeliveryError{Provider: s.name, Err: err}
	}
	return nil
}
