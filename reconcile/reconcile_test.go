package reconcile

import (
	"reflect"
	"testing"
	"time"

	"platinmods-tracker/pkg/tracker"
)

var (
	userTarget  = tracker.Target{Kind: tracker.KindUser, Name: "Neon", URL: "https://platinmods.com/members/neon.1/"}
	forumTarget = tracker.Target{Kind: tracker.KindForum, Name: "Android Apps", URL: "https://platinmods.com/forums/android-apps.155/"}
)

func userObs(online bool) tracker.Observation {
	return tracker.Observation{
		Kind:       tracker.KindUser,
		Online:     online,
		ObservedAt: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

func forumObs(ids ...string) tracker.Observation {
	obs := tracker.Observation{Kind: tracker.KindForum, Threads: []tracker.ThreadRef{}}
	for _, id := range ids {
		obs.Threads = append(obs.Threads, tracker.ThreadRef{
			ID:    id,
			Title: "Thread " + id,
			URL:   "https://platinmods.com/threads/thread." + id + "/",
		})
	}
	return obs
}

// TestFirstObservationIsBaseline verifies the first-ever observation of any
// target kind produces zero changes.
func TestFirstObservationIsBaseline(t *testing.T) {
	tests := []struct {
		name   string
		target tracker.Target
		obs    tracker.Observation
	}{
		{"user online", userTarget, userObs(true)},
		{"user offline", userTarget, userObs(false)},
		{"forum with threads", forumTarget, forumObs("100", "200")},
		{"forum empty", forumTarget, forumObs()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, changes, err := Reconcile(tt.target, nil, tt.obs)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if len(changes) != 0 {
				t.Errorf("baseline produced %d changes, want 0", len(changes))
			}
			if snap.Kind != tt.obs.Kind {
				t.Errorf("snapshot kind = %q, want %q", snap.Kind, tt.obs.Kind)
			}
			if snap.Online != tt.obs.Online {
				t.Errorf("snapshot online = %v, want %v", snap.Online, tt.obs.Online)
			}
			if len(snap.Threads) != len(tt.obs.Threads) {
				t.Errorf("snapshot has %d threads, want %d", len(snap.Threads), len(tt.obs.Threads))
			}
		})
	}
}

// TestUserStatusFlip covers scenario 2: offline snapshot + online
// observation yields exactly one UserWentOnline change.
func TestUserStatusFlip(t *testing.T) {
	tests := []struct {
		name        string
		priorOnline bool
		obsOnline   bool
		wantChanges []tracker.ChangeKind
	}{
		{"went online", false, true, []tracker.ChangeKind{tracker.UserWentOnline}},
		{"went offline", true, false, []tracker.ChangeKind{tracker.UserWentOffline}},
		{"still online", true, true, nil},
		{"still offline", false, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prior := &tracker.Snapshot{
				Kind:       tracker.KindUser,
				Online:     tt.priorOnline,
				ObservedAt: time.Date(2026, 8, 26, 11, 0, 0, 0, time.UTC),
			}
			snap, changes, err := Reconcile(userTarget, prior, userObs(tt.obsOnline))
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}

			var kinds []tracker.ChangeKind
			for _, c := range changes {
				kinds = append(kinds, c.Kind)
			}
			if !reflect.DeepEqual(kinds, tt.wantChanges) {
				t.Errorf("changes = %v, want %v", kinds, tt.wantChanges)
			}
			if snap.Online != tt.obsOnline {
				t.Errorf("snapshot online = %v, want %v", snap.Online, tt.obsOnline)
			}
		})
	}
}

// TestTimestampNeverTriggersChange verifies that a newer timestamp alone
// emits nothing.
func TestTimestampNeverTriggersChange(t *testing.T) {
	prior := &tracker.Snapshot{
		Kind:       tracker.KindUser,
		Online:     true,
		ObservedAt: time.Date(2026, 8, 26, 11, 0, 0, 0, time.UTC),
	}
	obs := userObs(true)
	obs.ObservedAt = obs.ObservedAt.Add(48 * time.Hour)

	snap, changes, err := Reconcile(userTarget, prior, obs)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("timestamp-only difference produced %d changes, want 0", len(changes))
	}
	if !snap.ObservedAt.Equal(obs.ObservedAt) {
		t.Error("snapshot should still advance to the latest observation time")
	}
}

// TestForumDiff covers scenario 3: prior {T1,T2}, observed {T2,T3} yields
// removed T1 then added T3.
func TestForumDiff(t *testing.T) {
	priorObs := forumObs("1", "2")
	prior := &tracker.Snapshot{Kind: tracker.KindForum, Threads: priorObs.Threads}

	snap, changes, err := Reconcile(forumTarget, prior, forumObs("2", "3"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %v", len(changes), changes)
	}
	if changes[0].Kind != tracker.ThreadRemoved || changes[0].Thread.ID != "1" {
		t.Errorf("changes[0] = %s(%s), want removed(1)", changes[0].Kind, changes[0].Thread.ID)
	}
	if changes[1].Kind != tracker.ThreadAdded || changes[1].Thread.ID != "3" {
		t.Errorf("changes[1] = %s(%s), want added(3)", changes[1].Kind, changes[1].Thread.ID)
	}
	if len(snap.Threads) != 2 {
		t.Errorf("snapshot has %d threads, want 2", len(snap.Threads))
	}
}

// TestForumDiffOrderingDeterministic verifies repeated runs produce
// identical output ordering: removed before added, each group sorted by id.
func TestForumDiffOrderingDeterministic(t *testing.T) {
	prior := &tracker.Snapshot{Kind: tracker.KindForum, Threads: forumObs("9", "5", "7").Threads}
	obs := forumObs("5", "2", "8", "1")

	first, _, err := Reconcile(forumTarget, prior, obs)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	var want []string
	for range 50 {
		snap, changes, err := Reconcile(forumTarget, prior, obs)
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if !reflect.DeepEqual(snap, first) {
			t.Fatal("snapshot differs between runs with identical input")
		}

		var got []string
		for _, c := range changes {
			got = append(got, string(c.Kind)+":"+c.Thread.ID)
		}
		if want == nil {
			want = got
		} else if !reflect.DeepEqual(got, want) {
			t.Fatalf("ordering differs between runs: %v vs %v", got, want)
		}
	}

	expected := []string{
		"thread_removed:7", "thread_removed:9",
		"thread_added:1", "thread_added:2", "thread_added:8",
	}
	if !reflect.DeepEqual(want, expected) {
		t.Errorf("changes = %v, want %v", want, expected)
	}
}

// TestAddedRemovedDisjoint verifies a thread id can never be added and
// removed in the same cycle.
func TestAddedRemovedDisjoint(t *testing.T) {
	prior := &tracker.Snapshot{Kind: tracker.KindForum, Threads: forumObs("1", "2", "3", "4").Threads}

	_, changes, err := Reconcile(forumTarget, prior, forumObs("3", "4", "5", "6"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	added := make(map[string]bool)
	removed := make(map[string]bool)
	for _, c := range changes {
		switch c.Kind {
		case tracker.ThreadAdded:
			added[c.Thread.ID] = true
		case tracker.ThreadRemoved:
			removed[c.Thread.ID] = true
		}
	}
	for id := range added {
		if removed[id] {
			t.Errorf("thread %s both added and removed in one cycle", id)
		}
	}
}

// TestIdempotence verifies reconciling the same observation against the
// snapshot it produced yields zero changes.
func TestIdempotence(t *testing.T) {
	tests := []struct {
		name   string
		target tracker.Target
		obs    tracker.Observation
	}{
		{"user", userTarget, userObs(true)},
		{"forum", forumTarget, forumObs("10", "20", "30")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, _, err := Reconcile(tt.target, nil, tt.obs)
			if err != nil {
				t.Fatalf("first Reconcile() error = %v", err)
			}

			again, changes, err := Reconcile(tt.target, &snap, tt.obs)
			if err != nil {
				t.Fatalf("second Reconcile() error = %v", err)
			}
			if len(changes) != 0 {
				t.Errorf("second reconcile produced %d changes, want 0", len(changes))
			}
			if !reflect.DeepEqual(again, snap) {
				t.Error("second reconcile changed the snapshot")
			}
		})
	}
}

// TestInvalidObservation verifies contract violations are rejected without
// producing a snapshot.
func TestInvalidObservation(t *testing.T) {
	tests := []struct {
		name   string
		target tracker.Target
		obs    tracker.Observation
	}{
		{"kind mismatch", userTarget, forumObs("1")},
		{"missing timestamp", userTarget, tracker.Observation{Kind: tracker.KindUser, Online: true}},
		{
			"empty thread id", forumTarget,
			tracker.Observation{Kind: tracker.KindForum, Threads: []tracker.ThreadRef{{ID: "", Title: "x"}}},
		},
		{
			"duplicate thread id", forumTarget,
			tracker.Observation{Kind: tracker.KindForum, Threads: []tracker.ThreadRef{{ID: "7"}, {ID: "7"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, changes, err := Reconcile(tt.target, nil, tt.obs)
			if err == nil {
				t.Fatal("Reconcile() succeeded, want InvalidObservationError")
			}
			if !IsInvalidObservation(err) {
				t.Errorf("error = %v, want InvalidObservationError", err)
			}
			if changes != nil {
				t.Errorf("invalid observation produced changes: %v", changes)
			}
		})
	}
}

// TestReconcileDoesNotMutatePrior verifies purity: the prior snapshot is
// never modified.
func TestReconcileDoesNotMutatePrior(t *testing.T) {
	prior := &tracker.Snapshot{Kind: tracker.KindForum, Threads: forumObs("1", "2").Threads}
	before := tracker.Snapshot{Kind: prior.Kind, Threads: append([]tracker.ThreadRef(nil), prior.Threads...)}

	if _, _, err := Reconcile(forumTarget, prior, forumObs("3")); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if !reflect.DeepEqual(*prior, before) {
		t.Error("Reconcile mutated the prior snapshot")
	}
}
