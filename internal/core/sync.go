package core

import (
	"time"

	"certcore/pkg/domain"
)

// syncPeriods reconciles the group table against the participant set and the
// two-period lookahead window. It runs inside the caller's transaction after
// every participant mutation and is best-effort: repair failures are dropped
// and corrected opportunistically on the next run.
func syncPeriods(tx domain.Transaction) {
	now := tx.Now()
	groups := tx.ListGroups()
	tableWasEmpty := len(groups) == 0

	var active *domain.Group
	for i := range groups {
		if groups[i].Status == domain.StatusActive {
			active = &groups[i]
			break
		}
	}

	// Repair a numberless active group before anything else.
	if active != nil && active.GroupNumber == nil {
		number := maxGroupNumber(groups) + 1
		if updated, err := tx.UpdateGroup(active.ID, func(g *domain.Group) error {
			g.GroupNumber = &number
			return nil
		}); err == nil {
			active = &updated
		}
	}

	base := domain.WeekStart(now)
	if active != nil {
		base = domain.PeriodKey(active.PeriodStart)
	}

	required := make(map[time.Time]struct{})
	for _, p := range tx.ListParticipants() {
		required[domain.PeriodKey(p.PeriodStart)] = struct{}{}
	}
	required[base] = struct{}{}
	required[domain.NextPeriod(base)] = struct{}{}
	required[domain.NextPeriod(domain.NextPeriod(base))] = struct{}{}

	existing := make(map[time.Time]struct{}, len(groups))
	for _, g := range groups {
		existing[domain.PeriodKey(g.PeriodStart)] = struct{}{}
	}

	for period := range required {
		if _, ok := existing[period]; ok {
			continue
		}
		group := domain.Group{
			PeriodStart: period,
			PeriodEnd:   domain.PeriodEnd(period),
			Status:      domain.StatusPlanned,
		}
		// The very first group in an empty table starts active immediately.
		if tableWasEmpty && active == nil && period.Equal(base) {
			number := maxGroupNumber(groups) + 1
			group.Status = domain.StatusActive
			group.GroupNumber = &number
			activatedAt := now
			group.ActivatedAt = &activatedAt
		}
		_, _ = tx.CreateGroup(group)
	}

	// Prune planned groups nothing references: no participants and outside
	// the lookahead window.
	occupied := make(map[time.Time]int)
	for _, p := range tx.ListParticipants() {
		occupied[domain.PeriodKey(p.PeriodStart)]++
	}
	for _, g := range tx.ListGroups() {
		if g.Status != domain.StatusPlanned {
			continue
		}
		key := domain.PeriodKey(g.PeriodStart)
		if occupied[key] > 0 {
			continue
		}
		if _, ok := required[key]; ok {
			continue
		}
		_ = tx.DeleteGroup(g.ID)
	}

	// Unnumbered participants of the active period pick up their numbers here.
	if current, ok := findActive(tx); ok {
		_ = allocateBatch(tx, current.PeriodStart)
	}
}

func maxGroupNumber(groups []domain.Group) int {
	max := 0
	for _, g := range groups {
		if g.GroupNumber != nil && *g.GroupNumber > max {
			max = *g.GroupNumber
		}
	}
	return max
}
