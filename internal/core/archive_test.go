package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"certcore/internal/blob"
	"certcore/pkg/domain"
)

// seedCompletedYear loads two completed 2024 groups with numbered participants
// directly into the store, bypassing the synchronizer. The first group is
// locked, the second was explicitly unlocked before the end of the year.
func seedCompletedYear(t *testing.T, store domain.PersistentStore) (groups []Group, participants []Participant) {
	t.Helper()
	ctx := context.Background()
	mondays := []time.Time{
		time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC),
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for i, monday := range mondays {
			number := i + 1
			g, err := tx.CreateGroup(domain.Group{
				GroupNumber: &number,
				PeriodStart: monday,
				PeriodEnd:   domain.PeriodEnd(monday),
				Status:      domain.StatusCompleted,
				Locked:      i == 0,
			})
			if err != nil {
				return err
			}
			groups = append(groups, g)
			p, err := tx.CreateParticipant(domain.Participant{
				PersonName:      "Trainee",
				MedicalExamDate: monday,
				PeriodStart:     monday,
				PeriodEnd:       domain.PeriodEnd(monday),
				UniqueNumber:    domain.CertificateNumber{Prefix: 3531 + i, Seq: 1 + i}.String(),
			})
			if err != nil {
				return err
			}
			participants = append(participants, p)
		}
		return tx.SetCounters(domain.SequenceCounters{LastPrefix: 3532, LastSeq: 2, Version: tx.Counters().Version + 1})
	}); err != nil {
		t.Fatalf("seed completed year: %v", err)
	}
	return groups, participants
}

func TestArchiveYearRefusesWhileGroupsRemainOpen(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustAddParticipant(t, svc, "Ada", testMonday)

	_, _, err := svc.ArchiveYear(ctx, 2025)
	var notReady domain.ArchiveNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected ArchiveNotReadyError, got %v", err)
	}
	if len(svc.ListArchives()) != 0 {
		t.Fatalf("refused archive still wrote records")
	}
}

func TestArchiveYearMovesGroupsAndResetsSequence(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCompletedYear(t, store)

	summary, _, err := svc.ArchiveYear(ctx, 2024)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if summary.Groups != 2 || summary.Participants != 2 {
		t.Fatalf("summary = %+v", summary)
	}

	if len(svc.ListGroups()) != 0 || len(svc.ListParticipants()) != 0 {
		t.Fatalf("live tables not emptied")
	}
	archive, ok := svc.GetArchive(2024)
	if !ok {
		t.Fatalf("archive record missing")
	}
	if len(archive.Groups) != 2 || len(archive.Participants) != 2 {
		t.Fatalf("archive contents = %d groups, %d participants", len(archive.Groups), len(archive.Participants))
	}

	counters := svc.Counters()
	if counters.LastPrefix != 3533 || counters.LastSeq != 0 {
		t.Fatalf("counters after reset = %+v, want 3533/0", counters)
	}
	if counters.LastResetYear == nil || *counters.LastResetYear != 2024 {
		t.Fatalf("reset year marker = %v", counters.LastResetYear)
	}

	// The next allocation skips one prefix: 3533+1 with sequence restarting.
	p := mustAddParticipant(t, svc, "NewSeason", testMonday)
	if p, _ = svc.GetParticipant(p.ID); p.UniqueNumber != "3534-1" {
		t.Fatalf("first post-reset number = %q, want 3534-1", p.UniqueNumber)
	}
}

func TestArchiveYearWithNoMatchingGroups(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCompletedYear(t, store)

	_, _, err := svc.ArchiveYear(ctx, 2019)
	var missing domain.NotFoundError
	if !errors.As(err, &missing) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestArchiveYearSelectsByStartYear(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// The last week of 2025 runs into January 2026; it belongs to 2025.
	straddle := time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)
	january := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for i, monday := range []time.Time{straddle, january} {
			number := i + 1
			if _, err := tx.CreateGroup(domain.Group{
				GroupNumber: &number,
				PeriodStart: monday,
				PeriodEnd:   domain.PeriodEnd(monday),
				Status:      domain.StatusCompleted,
				Locked:      true,
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed groups: %v", err)
	}

	summary, _, err := svc.ArchiveYear(ctx, 2026)
	if err != nil {
		t.Fatalf("archive 2026: %v", err)
	}
	if summary.Groups != 1 {
		t.Fatalf("2026 archive swept %d groups, want 1", summary.Groups)
	}
	if len(svc.ListGroups()) != 1 {
		t.Fatalf("straddling week left the live table")
	}

	if _, _, err := svc.ArchiveYear(ctx, 2025); err != nil {
		t.Fatalf("archive 2025: %v", err)
	}
	restored, _, err := svc.RestoreGroup(ctx, 2025, 1)
	if err != nil {
		t.Fatalf("restore straddling week from its start year: %v", err)
	}
	if !restored.PeriodStart.Equal(straddle) {
		t.Fatalf("restored period = %s, want %s", restored.PeriodStart, straddle)
	}
}

func TestArchiveExhaustionAbortsWholePass(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCompletedYear(t, store)
	seedCounters(t, store, domain.MaxPrefix, 70)

	_, _, err := svc.ArchiveYear(ctx, 2024)
	var exhausted domain.SequenceExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected SequenceExhaustedError, got %v", err)
	}
	if len(svc.ListGroups()) != 2 {
		t.Fatalf("aborted archive still removed groups")
	}
	if len(svc.ListArchives()) != 0 {
		t.Fatalf("aborted archive left a record")
	}
}

func TestRestoreGroupRoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seededGroups, seededParticipants := seedCompletedYear(t, store)

	if _, _, err := svc.ArchiveYear(ctx, 2024); err != nil {
		t.Fatalf("archive: %v", err)
	}

	restored, _, err := svc.RestoreGroup(ctx, 2024, *seededGroups[0].GroupNumber)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Status != StatusCompleted || !restored.Locked {
		t.Fatalf("restored group = %+v", restored)
	}
	if restored.ID != seededGroups[0].ID {
		t.Fatalf("restore changed identity: %s != %s", restored.ID, seededGroups[0].ID)
	}
	if !restored.CreatedAt.Equal(seededGroups[0].CreatedAt) {
		t.Fatalf("restore changed CreatedAt")
	}

	p, ok := svc.GetParticipant(seededParticipants[0].ID)
	if !ok {
		t.Fatalf("participant not restored")
	}
	if p.UniqueNumber != seededParticipants[0].UniqueNumber {
		t.Fatalf("restored number = %q, want %q", p.UniqueNumber, seededParticipants[0].UniqueNumber)
	}
	if !p.CreatedAt.Equal(seededParticipants[0].CreatedAt) {
		t.Fatalf("restore changed participant CreatedAt")
	}

	// The archive shrank to the remaining group.
	archive, ok := svc.GetArchive(2024)
	if !ok {
		t.Fatalf("archive disappeared with one group remaining")
	}
	if len(archive.Groups) != 1 || len(archive.Participants) != 1 {
		t.Fatalf("archive leftover = %d groups, %d participants", len(archive.Groups), len(archive.Participants))
	}

	// Restoring the last group dissolves the archive record. That group was
	// unlocked before archiving and must come back unlocked.
	second, _, err := svc.RestoreGroup(ctx, 2024, *seededGroups[1].GroupNumber)
	if err != nil {
		t.Fatalf("second restore: %v", err)
	}
	if second.Status != StatusCompleted || second.Locked {
		t.Fatalf("restored unlocked group = status %q locked %v, want completed/unlocked", second.Status, second.Locked)
	}
	if _, ok := svc.GetArchive(2024); ok {
		t.Fatalf("empty archive record not removed")
	}
}

func TestRestoreGroupCollisionWithLiveNumber(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seededGroups, _ := seedCompletedYear(t, store)

	if _, _, err := svc.ArchiveYear(ctx, 2024); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// A live group now holds the same cohort number.
	number := *seededGroups[0].GroupNumber
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateGroup(domain.Group{
			GroupNumber: &number,
			PeriodStart: testMonday,
			PeriodEnd:   domain.PeriodEnd(testMonday),
			Status:      domain.StatusCompleted,
			Locked:      true,
		})
		return err
	}); err != nil {
		t.Fatalf("seed collision: %v", err)
	}

	_, _, err := svc.RestoreGroup(ctx, 2024, number)
	var collision domain.NumberCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("expected NumberCollisionError, got %v", err)
	}
}

func TestRestoreGroupMissingEntries(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCompletedYear(t, store)

	if _, _, err := svc.RestoreGroup(ctx, 2023, 1); err == nil {
		t.Fatalf("expected missing archive error")
	}
	if _, _, err := svc.ArchiveYear(ctx, 2024); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, _, err := svc.RestoreGroup(ctx, 2024, 99); err == nil {
		t.Fatalf("expected missing group error")
	}
}

func TestArchiveSnapshotExportedToBlobStore(t *testing.T) {
	blobs := blob.NewMemory()
	store := newTestStore(t)
	svc := NewService(store, WithBlobStore(blobs))
	seedCompletedYear(t, store)

	if _, _, err := svc.ArchiveYear(context.Background(), 2024); err != nil {
		t.Fatalf("archive: %v", err)
	}

	info, rc, err := blobs.Get(context.Background(), "archives/2024/snapshot.json")
	if err != nil {
		t.Fatalf("snapshot blob missing: %v", err)
	}
	defer func() { _ = rc.Close() }()
	if info.ContentType != "application/json" {
		t.Fatalf("content type = %q", info.ContentType)
	}
	body, _ := io.ReadAll(rc)
	var decoded domain.YearlyArchive
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if decoded.Year != 2024 || len(decoded.Groups) != 2 {
		t.Fatalf("snapshot contents = %+v", decoded)
	}
}
