// Package poll drives monitoring cycles over the configured targets: fetch,
// extract, reconcile, commit, notify, and summary aggregation.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"platinmods-tracker/pkg/tracker"
	"platinmods-tracker/reconcile"
	"platinmods-tracker/scraper"
	"platinmods-tracker/store"
)

// defaultConcurrency bounds how many target pipelines run at once.
const defaultConcurrency = 4

// Scraper fetches and extracts the current state of a target.
type Scraper interface {
	Observe(ctx context.Context, target tracker.Target) (tracker.Observation, error)
}

// Store is the snapshot store consumed by the driver.
type Store interface {
	Get(targetID string) (tracker.Snapshot, bool)
	Commit(ctx context.Context, targetID string, snap tracker.Snapshot) error
}

// Notifier delivers change notifications.
type Notifier interface {
	Deliver(ctx context.Context, changes []tracker.Change) error
}

// Monitor runs monitoring cycles. Cycles never overlap: a trigger arriving
// while a cycle is in flight is rejected with tracker.ErrCycleBusy.
type Monitor struct {
	scraper  Scraper
	store    Store
	notifier Notifier
	logger   *slog.Logger
	targets  []tracker.Target
	limit    int

	mu sync.Mutex // held for the duration of a cycle
}

// New creates a cycle driver over a fixed set of targets. concurrency <= 0
// selects the default limit.
func New(scr Scraper, st Store, notifier Notifier, targets []tracker.Target, concurrency int, logger *slog.Logger) *Monitor {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Monitor{
		scraper:  scr,
		store:    st,
		notifier: notifier,
		logger:   logger,
		targets:  targets,
		limit:    concurrency,
	}
}

// RunCycle runs one full pass over all configured targets and returns the
// aggregated summary. Per-target failures are recorded in the summary and
// never abort the cycle. Returns tracker.ErrCycleBusy when a cycle is
// already in flight.
func (m *Monitor) RunCycle(ctx context.Context) (*tracker.Summary, error) {
	if !m.mu.TryLock() {
		m.logger.Info("Cycle trigger rejected, another cycle is in flight")
		return nil, tracker.ErrCycleBusy
	}
	defer m.mu.Unlock()

	summary := &tracker.Summary{StartedAt: time.Now()}
	results := make([]tracker.TargetResult, len(m.targets))

	m.logger.Info("Cycle starting", "target_count", len(m.targets), "concurrency", m.limit)

	g := new(errgroup.Group)
	g.SetLimit(m.limit)

	for i, target := range m.targets {
		// Cancellation takes effect between target iterations only, so a
		// started pipeline always runs through its snapshot commit.
		if err := ctx.Err(); err != nil {
			results[i] = tracker.TargetResult{Target: target, Stage: "cancelled", Err: err}
			continue
		}

		g.Go(func() error {
			results[i] = m.checkTarget(ctx, target)
			return nil
		})
	}

	// Goroutines record failures in their result slot and never return an
	// error, so Wait only synchronizes.
	_ = g.Wait()

	summary.Results = results
	summary.FinishedAt = time.Now()

	m.logger.Info("Cycle completed",
		"target_count", len(m.targets),
		"changes", summary.ChangeCount(),
		"failures", summary.FailureCount(),
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds())

	return summary, nil
}

// checkTarget runs one target's pipeline: observe, reconcile, commit,
// notify.
func (m *Monitor) checkTarget(ctx context.Context, target tracker.Target) tracker.TargetResult {
	res := tracker.TargetResult{Target: target}

	m.logger.Info("Checking target", "target", target.ID(), "url", target.URL)

	obs, err := m.scraper.Observe(ctx, target)
	if err != nil {
		res.Stage, res.Err = observeStage(err), err
		m.logger.Warn("Target observation failed",
			"target", target.ID(),
			"stage", res.Stage,
			"error", err)
		return res
	}

	var prior *tracker.Snapshot
	if snap, ok := m.store.Get(target.ID()); ok {
		prior = &snap
	}

	snap, changes, err := reconcile.Reconcile(target, prior, obs)
	if err != nil {
		// A bad extractor result must never corrupt or advance state
		res.Stage, res.Err = "reconcile", err
		m.logger.Warn("Reconciliation rejected observation", "target", target.ID(), "error", err)
		return res
	}
	res.Snapshot = &snap
	res.Changes = changes

	// The commit must not be torn by cancellation mid-write.
	if err := m.store.Commit(context.WithoutCancel(ctx), target.ID(), snap); err != nil {
		res.Stage, res.Err = "commit", err
		m.logger.Error("Snapshot commit failed", "target", target.ID(), "error", err)
		// Changes were still detected; fall through to delivery.
	}

	if len(changes) > 0 {
		m.logger.Info("Changes detected", "target", target.ID(), "count", len(changes))
		if err := m.notifier.Deliver(ctx, changes); err != nil {
			// Delivery failure is logged into the summary, never propagated:
			// state correctness is independent of delivery success.
			res.DeliveryErr = err
			m.logger.Warn("Notification delivery failed", "target", target.ID(), "error", err)
		}
	}

	return res
}

func observeStage(err error) string {
	switch {
	case scraper.IsExtractError(err):
		return "extract"
	case scraper.IsFetchError(err):
		return "fetch"
	default:
		return "fetch"
	}
}

// ensure the concrete store satisfies the driver interface.
var _ Store = (*store.Store)(nil)
