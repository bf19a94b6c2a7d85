// Package tracker contains the core domain types for the platinmods tracking service.
package tracker

import (
	"errors"
	"time"
)

// ErrCycleBusy indicates a monitoring cycle is already in flight. Scheduled
// and manual triggers never run concurrently; the later one is rejected.
var ErrCycleBusy = errors.New("monitoring cycle already in flight")

// Kind identifies what sort of page a target points at.
type Kind string

const (
	// KindUser is a member profile page tracked for online/offline status.
	KindUser Kind = "user"
	// KindForum is a forum listing page tracked for its set of threads.
	KindForum Kind = "forum"
)

// Target is a monitored page. Identity is (Kind, Name) and is immutable
// for the lifetime of the process.
type Target struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ID returns the stable identity key used by the snapshot store.
func (t Target) ID() string {
	return string(t.Kind) + ":" + t.Name
}

// ThreadRef identifies a single thread on a forum listing page.
type ThreadRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Observation is the freshly extracted state of a target for the current
// cycle. Online/ObservedAt are set for user targets, Threads for forum
// targets.
type Observation struct {
	Kind       Kind
	Online     bool
	ObservedAt time.Time
	Threads    []ThreadRef
}

// Snapshot is the last recorded observation for a target, as persisted by
// the snapshot store.
type Snapshot struct {
	Kind       Kind        `json:"kind"`
	Online     bool        `json:"online,omitempty"`
	ObservedAt time.Time   `json:"observed_at"`
	Threads    []ThreadRef `json:"threads,omitempty"`
}

// ChangeKind enumerates the detectable state transitions.
type ChangeKind string

const (
	UserWentOnline  ChangeKind = "user_online"
	UserWentOffline ChangeKind = "user_offline"
	ThreadAdded     ChangeKind = "thread_added"
	ThreadRemoved   ChangeKind = "thread_removed"
)

// Change describes one detected difference between consecutive snapshots.
// Changes are ephemeral: produced and consumed within a single cycle.
type Change struct {
	Kind   ChangeKind
	Target Target
	Thread *ThreadRef // set for thread_added/thread_removed
}

// TargetResult is the outcome of one target's pipeline within a cycle.
type TargetResult struct {
	Target      Target
	Snapshot    *Snapshot // committed snapshot, nil when the pipeline failed before reconciliation
	Changes     []Change
	Stage       string // step that failed: fetch, extract, reconcile, commit, cancelled
	Err         error  // per-target failure, nil on success
	DeliveryErr error  // notification failure, never affects snapshot state
}

// Failed reports whether the target's pipeline failed before or during
// the snapshot commit. Delivery failures do not count.
func (r *TargetResult) Failed() bool {
	return r.Err != nil
}

// Summary aggregates the results of one full cycle over all configured
// targets. Built fresh each cycle, discarded after reporting.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []TargetResult
}

// ChangeCount returns the total number of changes detected in the cycle.
func (s *Summary) ChangeCount() int {
	var n int
	for i := range s.Results {
		n += len(s.Results[i].Changes)
	}
	return n
}

// FailureCount returns the number of targets whose pipeline failed.
func (s *Summary) FailureCount() int {
	var n int
	for i := range s.Results {
		if s.Results[i].Failed() {
			n++
		}
	}
	return n
}
