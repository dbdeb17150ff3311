package core

import (
	"context"
	"errors"
	"testing"

	"certcore/pkg/domain"
)

func TestActivateConflictRequiresConfirmation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustAddParticipant(t, svc, "Ada", testMonday)
	current := activeGroup(t, svc)
	next := groupByPeriod(t, svc, domain.NextPeriod(testMonday))

	outcome, _, err := svc.ActivateGroup(ctx, next.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !outcome.NeedsConfirmation() {
		t.Fatalf("expected confirmation request")
	}
	if outcome.Conflict.ID != current.ID {
		t.Fatalf("conflict = %s, want %s", outcome.Conflict.ID, current.ID)
	}

	// Nothing moved: the target stays planned, the current group stays active.
	if g, _ := svc.GetGroup(next.ID); g.Status != StatusPlanned {
		t.Fatalf("target mutated to %s", g.Status)
	}
	if g, _ := svc.GetGroup(current.ID); g.Status != StatusActive {
		t.Fatalf("active group mutated to %s", g.Status)
	}
}

func TestActivateCurrentActiveIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustAddParticipant(t, svc, "Ada", testMonday)
	current := activeGroup(t, svc)

	outcome, _, err := svc.ActivateGroup(ctx, current.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if outcome.NeedsConfirmation() {
		t.Fatalf("unexpected confirmation for current active group")
	}
	if outcome.Group.ID != current.ID {
		t.Fatalf("unexpected group %s", outcome.Group.ID)
	}
}

func TestConfirmSwapDemotesAndActivates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ada := mustAddParticipant(t, svc, "Ada", testMonday)
	nextPeriod := domain.NextPeriod(testMonday)
	ben := mustAddParticipant(t, svc, "Ben", nextPeriod)

	oldActive := activeGroup(t, svc)
	target := groupByPeriod(t, svc, nextPeriod)

	activated, _, err := svc.ConfirmSwapAndActivate(ctx, target.ID)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if activated.Status != StatusActive {
		t.Fatalf("target status = %s", activated.Status)
	}
	if activated.GroupNumber == nil {
		t.Fatalf("activated group has no number")
	}

	demoted, _ := svc.GetGroup(oldActive.ID)
	if demoted.Status != StatusPlanned {
		t.Fatalf("old active status = %s, want planned", demoted.Status)
	}
	if demoted.GroupNumber != nil {
		t.Fatalf("demoted group kept number %d", *demoted.GroupNumber)
	}

	// The demoted period's certificate numbers are withdrawn; the new active
	// period is numbered from the retracted counters.
	if p, _ := svc.GetParticipant(ada.ID); p.UniqueNumber != "" {
		t.Fatalf("demoted participant kept number %q", p.UniqueNumber)
	}
	if p, _ := svc.GetParticipant(ben.ID); p.UniqueNumber != "0001-1" {
		t.Fatalf("new active participant = %q, want 0001-1", p.UniqueNumber)
	}
}

func TestCloseActiveGroupLocksIt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustAddParticipant(t, svc, "Ada", testMonday)

	closed, _, err := svc.CloseActiveGroup(ctx)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != StatusCompleted || !closed.Locked {
		t.Fatalf("closed group = %+v", closed)
	}
	if closed.ClosedAt == nil {
		t.Fatalf("closed group missing timestamp")
	}

	if _, _, err := svc.CloseActiveGroup(ctx); err == nil {
		t.Fatalf("second close should fail without an active group")
	}
}

func TestDemoteActiveClearsNumbers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ada := mustAddParticipant(t, svc, "Ada", testMonday)

	demoted, _, err := svc.DemoteActiveToPlanned(ctx)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if demoted.Status != StatusPlanned || demoted.GroupNumber != nil || demoted.ActivatedAt != nil {
		t.Fatalf("demoted group = %+v", demoted)
	}
	if p, _ := svc.GetParticipant(ada.ID); p.UniqueNumber != "" {
		t.Fatalf("participant kept number %q", p.UniqueNumber)
	}
	if c := svc.Counters(); c.LastPrefix != 0 || c.LastSeq != 0 {
		t.Fatalf("counters not retracted: %+v", c)
	}
}

func TestReopenCompletedGroup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ada := mustAddParticipant(t, svc, "Ada", testMonday)
	closed, _, err := svc.CloseActiveGroup(ctx)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	outcome, _, err := svc.ReopenGroup(ctx, closed.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if outcome.NeedsConfirmation() {
		t.Fatalf("unexpected conflict with no active group")
	}
	if outcome.Group.Status != StatusActive || outcome.Group.Locked {
		t.Fatalf("reopened group = %+v", outcome.Group)
	}
	if outcome.Group.ClosedAt != nil {
		t.Fatalf("reopened group kept close timestamp")
	}
	if p, _ := svc.GetParticipant(ada.ID); p.UniqueNumber == "" {
		t.Fatalf("participant lost number across close/reopen")
	}
}

func TestReopenRejectsPlannedGroup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustAddParticipant(t, svc, "Ada", testMonday)
	planned := groupByPeriod(t, svc, domain.NextPeriod(testMonday))

	_, _, err := svc.ReopenGroup(ctx, planned.ID)
	var invalid domain.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLockUnlockOnlyCompletedGroups(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustAddParticipant(t, svc, "Ada", testMonday)
	active := activeGroup(t, svc)

	if _, err := svc.LockGroup(ctx, active.ID); err == nil {
		t.Fatalf("locking an active group should fail")
	}

	closed, _, err := svc.CloseActiveGroup(ctx)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.UnlockGroup(ctx, closed.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if g, _ := svc.GetGroup(closed.ID); g.Locked {
		t.Fatalf("group still locked")
	}
	if _, err := svc.LockGroup(ctx, closed.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if g, _ := svc.GetGroup(closed.ID); !g.Locked {
		t.Fatalf("group not locked")
	}
}

func TestSingleActiveInvariantBlocksDirectWrites(t *testing.T) {
	_, store := newTestService(t)
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, start := range []int{0, 7} {
			period := testMonday.AddDate(0, 0, start)
			if _, err := tx.CreateGroup(domain.Group{
				PeriodStart: period,
				PeriodEnd:   domain.PeriodEnd(period),
				Status:      domain.StatusActive,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if groups := store.ListGroups(); len(groups) != 0 {
		t.Fatalf("blocked transaction leaked %d groups", len(groups))
	}
}
