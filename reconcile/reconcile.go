// Package reconcile turns consecutive observations of a target into change
// events. Reconciliation is a pure function: it performs no I/O and never
// mutates the prior snapshot.
package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"platinmods-tracker/pkg/tracker"
)

// InvalidObservationError indicates an observation that violates the input
// contract (wrong kind, missing fields). The target's snapshot must not be
// advanced for that cycle.
type InvalidObservationError struct {
	TargetID string
	Reason   string
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("invalid observation for %s: %s", e.TargetID, e.Reason)
}

// IsInvalidObservation checks if an error is an InvalidObservationError.
func IsInvalidObservation(err error) bool {
	var invalid *InvalidObservationError
	return errors.As(err, &invalid)
}

// Reconcile compares the new observation against the prior snapshot and
// returns the replacement snapshot plus the changes detected between them.
// A nil prior means the target has never been observed: the observation
// becomes the baseline and no changes are emitted. The returned snapshot
// always equals the observation; the engine always advances to the latest
// truth.
func Reconcile(target tracker.Target, prior *tracker.Snapshot, obs tracker.Observation) (tracker.Snapshot, []tracker.Change, error) {
	if err := validate(target, obs); err != nil {
		return tracker.Snapshot{}, nil, err
	}

	snap := snapshotOf(obs)

	// First-ever observation establishes the baseline. Flagging every
	// pre-existing thread as added would be noise, not signal.
	if prior == nil {
		return snap, nil, nil
	}

	var changes []tracker.Change
	switch target.Kind {
	case tracker.KindUser:
		// Only the boolean matters; timestamps never trigger a change
		// by themselves.
		if obs.Online != prior.Online {
			kind := tracker.UserWentOffline
			if obs.Online {
				kind = tracker.UserWentOnline
			}
			changes = append(changes, tracker.Change{Kind: kind, Target: target})
		}
	case tracker.KindForum:
		changes = diffThreads(target, prior.Threads, snap.Threads)
	}

	return snap, changes, nil
}

func validate(target tracker.Target, obs tracker.Observation) error {
	if obs.Kind != target.Kind {
		return &InvalidObservationError{
			TargetID: target.ID(),
			Reason:   fmt.Sprintf("observation kind %q does not match target kind %q", obs.Kind, target.Kind),
		}
	}

	switch target.Kind {
	case tracker.KindUser:
		if obs.ObservedAt.IsZero() {
			return &InvalidObservationError{TargetID: target.ID(), Reason: "missing observation timestamp"}
		}
	case tracker.KindForum:
		seen := make(map[string]struct{}, len(obs.Threads))
		for i := range obs.Threads {
			id := obs.Threads[i].ID
			if id == "" {
				return &InvalidObservationError{TargetID: target.ID(), Reason: "thread with empty id"}
			}
			if _, dup := seen[id]; dup {
				return &InvalidObservationError{TargetID: target.ID(), Reason: "duplicate thread id " + id}
			}
			seen[id] = struct{}{}
		}
	default:
		return &InvalidObservationError{TargetID: target.ID(), Reason: fmt.Sprintf("unknown target kind %q", target.Kind)}
	}

	return nil
}

// snapshotOf records the observation as a snapshot. Threads are copied so
// the snapshot never aliases caller-owned slices.
func snapshotOf(obs tracker.Observation) tracker.Snapshot {
	snap := tracker.Snapshot{
		Kind:       obs.Kind,
		Online:     obs.Online,
		ObservedAt: obs.ObservedAt,
	}
	if obs.Threads != nil {
		snap.Threads = make([]tracker.ThreadRef, len(obs.Threads))
		copy(snap.Threads, obs.Threads)
	}
	return snap
}

// diffThreads computes the set difference by thread id in both directions.
// Removed threads are emitted before added ones, each group sorted by id,
// so repeated runs with identical input produce identical ordering.
func diffThreads(target tracker.Target, prior, current []tracker.ThreadRef) []tracker.Change {
	priorByID := make(map[string]*tracker.ThreadRef, len(prior))
	for i := range prior {
		priorByID[prior[i].ID] = &prior[i]
	}
	currentByID := make(map[string]*tracker.ThreadRef, len(current))
	for i := range current {
		currentByID[current[i].ID] = &current[i]
	}

	var removed, added []*tracker.ThreadRef
	for id, ref := range priorByID {
		if _, ok := currentByID[id]; !ok {
			removed = append(removed, ref)
		}
	}
	for id, ref := range currentByID {
		if _, ok := priorByID[id]; !ok {
			added = append(added, ref)
		}
	}

	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })

	changes := make([]tracker.Change, 0, len(removed)+len(added))
	for _, ref := range removed {
		r := *ref
		changes = append(changes, tracker.Change{Kind: tracker.ThreadRemoved, Target: target, Thread: &r})
	}
	for _, ref := range added {
		r := *ref
		changes = append(changes, tracker.Change{Kind: tracker.ThreadAdded, Target: target, Thread: &r})
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}
