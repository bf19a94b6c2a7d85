// Package store persists the last-observed snapshot for every tracked
// target in a single durable document (local file or Cloud Storage object).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	"platinmods-tracker/pkg/tracker"
)

// StateObject is the object name used for the state document in Cloud Storage.
const StateObject = "state.json"

// CommitError indicates the durable write for a commit did not land. The
// in-memory state still reflects the attempted update; persistence is
// best-effort per cycle but a failed write is never silently swallowed.
type CommitError struct {
	TargetID string
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.TargetID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsCommitError checks if an error is a CommitError.
func IsCommitError(err error) bool {
	var commit *CommitError
	return errors.As(err, &commit)
}

// Store is the snapshot store. It exclusively owns all snapshots; callers
// read via Get and propose replacements via Commit. All writers serialize
// through the store mutex since every commit rewrites the whole document.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	bucket    string
	localPath string // path to the state file for local storage

	mu        sync.Mutex
	snapshots map[string]tracker.Snapshot
}

// New creates a snapshot store. When localPath is non-empty snapshots are
// persisted to that file, otherwise to the StateObject in the given bucket.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		bucket:    bucket,
		localPath: localPath,
		snapshots: make(map[string]tracker.Snapshot),
	}
}

// Load reads the durable state document at startup. A missing or unreadable
// document yields an empty mapping: cold start is not an error.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.read(ctx)
	if err != nil {
		return err
	}
	if data == nil {
		s.logger.Info("No prior state found, starting cold")
		return nil
	}

	snapshots := make(map[string]tracker.Snapshot)
	if err := json.Unmarshal(data, &snapshots); err != nil {
		s.logger.Warn("State document is unreadable, starting cold", "error", err)
		return nil
	}

	s.mu.Lock()
	s.snapshots = snapshots
	s.mu.Unlock()

	s.logger.Info("State loaded", "snapshot_count", len(snapshots))
	return nil
}

// read returns the raw state document, or nil when it does not exist.
func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(s.localPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			s.logger.Warn("State file is unreadable, starting cold", "path", s.localPath, "error", err)
			return nil, nil
		}
		return data, nil
	}

	r, err := s.client.Bucket(s.bucket).Object(StateObject).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open state reader: %w", err)
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			s.logger.Warn("Failed to close state reader", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read state object: %w", err)
	}
	return data, nil
}

// Get returns the snapshot for a target identity, if one exists.
func (s *Store) Get(targetID string) (tracker.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[targetID]
	return snap, ok
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Commit atomically replaces the snapshot for one target and persists the
// entire mapping before returning. Commits are serialized: last committed
// wins, no lost updates. On a durable-write failure the in-memory snapshot
// keeps the attempted value and a CommitError is returned.
func (s *Store) Commit(ctx context.Context, targetID string, snap tracker.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[targetID] = snap

	data, err := json.MarshalIndent(s.snapshots, "", "  ")
	if err != nil {
		return &CommitError{TargetID: targetID, Err: fmt.Errorf("marshal state: %w", err)}
	}

	if err := s.persist(ctx, data); err != nil {
		s.logger.Error("State write failed, in-memory state retains the update",
			"target", targetID,
			"error", err)
		return &CommitError{TargetID: targetID, Err: err}
	}

	s.logger.Debug("Snapshot committed", "target", targetID, "snapshot_count", len(s.snapshots))
	return nil
}

func (s *Store) persist(ctx context.Context, data []byte) error {
	if s.localPath != "" {
		return s.persistLocal(data)
	}
	return s.persistBucket(ctx, data)
}

// persistLocal writes a complete replacement document and renames it into
// place, so the state file is never observed half-written.
func (s *Store) persistLocal(data []byte) error {
	dir := filepath.Dir(s.localPath)
	tmp, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		if closeErr := tmp.Close(); closeErr != nil {
			s.logger.Warn("Failed to close temp state file after error", "error", closeErr)
		}
		if rmErr := os.Remove(tmpName); rmErr != nil {
			s.logger.Warn("Failed to remove temp state file", "path", tmpName, "error", rmErr)
		}
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.localPath); err != nil {
		if rmErr := os.Remove(tmpName); rmErr != nil {
			s.logger.Warn("Failed to remove temp state file", "path", tmpName, "error", rmErr)
		}
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// persistBucket rewrites the state object. Cloud Storage object writes are
// atomic: readers see either the old or the new document, never a mix.
func (s *Store) persistBucket(ctx context.Context, data []byte) error {
	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(StateObject).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write state object: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close state writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying state write after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("persist after retries: %w", err)
	}
	return nil
}
