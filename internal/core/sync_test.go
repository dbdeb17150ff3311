package core

import (
	"context"
	"testing"

	"certcore/pkg/domain"
)

func TestSyncOnEmptyTableCreatesActivePlusLookahead(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.SyncPeriods(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	groups := svc.ListGroups()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}

	first := groups[0]
	if !domain.PeriodKey(first.PeriodStart).Equal(testMonday) {
		t.Fatalf("first period = %s, want %s", first.PeriodStart, testMonday)
	}
	if first.Status != StatusActive {
		t.Fatalf("first group status = %s, want active", first.Status)
	}
	if first.GroupNumber == nil || *first.GroupNumber != 1 {
		t.Fatalf("first group number = %v, want 1", first.GroupNumber)
	}
	if first.ActivatedAt == nil {
		t.Fatalf("first group missing activation timestamp")
	}

	for i, g := range groups[1:] {
		want := domain.NextPeriod(groups[i].PeriodStart)
		if !domain.PeriodKey(g.PeriodStart).Equal(want) {
			t.Fatalf("group %d period = %s, want %s", i+1, g.PeriodStart, want)
		}
		if g.Status != StatusPlanned {
			t.Fatalf("lookahead group status = %s, want planned", g.Status)
		}
		if g.GroupNumber != nil {
			t.Fatalf("planned group carries number %d", *g.GroupNumber)
		}
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SyncPeriods(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if _, err := svc.SyncPeriods(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if groups := svc.ListGroups(); len(groups) != 3 {
		t.Fatalf("idempotency broken: %d groups", len(groups))
	}
}

func TestSyncCreatesGroupForParticipantPeriod(t *testing.T) {
	svc, _ := newTestService(t)

	future := testMonday.AddDate(0, 0, 28)
	mustAddParticipant(t, svc, "Ada", future)

	g := groupByPeriod(t, svc, future)
	if g.Status != StatusPlanned {
		t.Fatalf("future group status = %s, want planned", g.Status)
	}
	// Base window still present: active week + two lookahead + the future one.
	if groups := svc.ListGroups(); len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %d", len(groups))
	}
}

func TestSyncPrunesEmptyPlannedGroupsOutsideWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	future := testMonday.AddDate(0, 0, 28)
	p := mustAddParticipant(t, svc, "Ada", future)

	if _, err := svc.DeleteParticipant(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, g := range svc.ListGroups() {
		if domain.PeriodKey(g.PeriodStart).Equal(domain.PeriodKey(future)) {
			t.Fatalf("empty out-of-window group survived prune")
		}
	}
	if groups := svc.ListGroups(); len(groups) != 3 {
		t.Fatalf("expected window groups only, got %d", len(groups))
	}
}

func TestSyncNeverDeletesActiveOrCompletedGroups(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SyncPeriods(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, _, err := svc.CloseActiveGroup(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The closed group has no participants and is outside nothing in
	// particular, yet it must survive every further sync.
	if _, err := svc.SyncPeriods(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	var completed int
	for _, g := range store.ListGroups() {
		if g.Status == StatusCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Fatalf("completed group count = %d, want 1", completed)
	}
}

func TestSyncRepairsNumberlessActiveGroup(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateGroup(domain.Group{
			PeriodStart: testMonday,
			PeriodEnd:   domain.PeriodEnd(testMonday),
			Status:      domain.StatusActive,
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.SyncPeriods(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	g := activeGroup(t, svc)
	if g.GroupNumber == nil || *g.GroupNumber != 1 {
		t.Fatalf("repair failed, number = %v", g.GroupNumber)
	}
}
