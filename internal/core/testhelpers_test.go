package core

import (
	"context"
	"testing"
	"time"

	"certcore/internal/infra/persistence/memory"
	"certcore/pkg/domain"
)

// testMonday is a fixed Monday used as the synchronizer's current week.
var testMonday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	// Each transaction gets a strictly later timestamp within the same week.
	var tick time.Duration
	store.SetNowFunc(func() time.Time {
		tick += time.Second
		return testMonday.Add(12*time.Hour + tick)
	})
	return store
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	store := newTestStore(t)
	return NewService(store, opts...), store
}

func seedCounters(t *testing.T, store *memory.Store, prefix, seq int) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		current := tx.Counters()
		return tx.SetCounters(domain.SequenceCounters{
			LastPrefix:    prefix,
			LastSeq:       seq,
			LastResetYear: current.LastResetYear,
			Version:       current.Version + 1,
		})
	}); err != nil {
		t.Fatalf("seed counters: %v", err)
	}
}

func mustAddParticipant(t *testing.T, svc *Service, name string, period time.Time) Participant {
	t.Helper()
	p, _, err := svc.AddParticipant(context.Background(), ParticipantInput{
		PersonName:      name,
		CompanyName:     "Acme",
		MedicalExamDate: period,
		PeriodStart:     period,
	})
	if err != nil {
		t.Fatalf("add participant %s: %v", name, err)
	}
	return p
}

func groupByPeriod(t *testing.T, svc *Service, period time.Time) Group {
	t.Helper()
	key := domain.PeriodKey(period)
	for _, g := range svc.ListGroups() {
		if domain.PeriodKey(g.PeriodStart).Equal(key) {
			return g
		}
	}
	t.Fatalf("no group for period %s", key)
	return Group{}
}

func activeGroup(t *testing.T, svc *Service) Group {
	t.Helper()
	for _, g := range svc.ListGroups() {
		if g.Status == StatusActive {
			return g
		}
	}
	t.Fatalf("no active group")
	return Group{}
}
