package core

import (
	"context"

	"certcore/pkg/domain"
)

// Activation is the outcome of an activate or reopen request. Exactly one
// branch is populated: Group when the transition went through, Conflict when
// another group is active and the caller must explicitly confirm the swap.
type Activation struct {
	Group    domain.Group
	Conflict *domain.Group
}

// NeedsConfirmation reports whether the caller must confirm a swap before
// the target group can become active.
func (a Activation) NeedsConfirmation() bool { return a.Conflict != nil }

// ActivateGroup promotes a group to active. Activating the current active
// group is a no-op success; when a different group is active nothing is
// mutated and the result carries the conflicting group.
func (s *Service) ActivateGroup(ctx context.Context, id string) (Activation, Result, error) {
	var outcome Activation
	res, err := s.observed(ctx, "activate_group", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			group, ok := tx.FindGroup(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: id}
			}
			if group.Status == domain.StatusActive {
				outcome = Activation{Group: group}
				return nil
			}
			if current, ok := findActive(tx); ok && current.ID != id {
				outcome = Activation{Conflict: &current}
				return nil
			}
			activated, err := activateLocked(tx, id)
			if err != nil {
				return err
			}
			outcome = Activation{Group: activated}
			return nil
		})
	})
	return outcome, res, err
}

// ConfirmSwapAndActivate demotes the current active group, then activates the
// target unconditionally. It is the explicit second step of the two-phase
// activation protocol.
func (s *Service) ConfirmSwapAndActivate(ctx context.Context, id string) (Group, Result, error) {
	var activated Group
	res, err := s.observed(ctx, "confirm_swap_and_activate", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindGroup(id); !ok {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: id}
			}
			if current, ok := findActive(tx); ok && current.ID != id {
				if err := demoteLocked(tx, current.ID); err != nil {
					return err
				}
			}
			group, err := activateLocked(tx, id)
			if err != nil {
				return err
			}
			activated = group
			return nil
		})
	})
	return activated, res, err
}

// CloseActiveGroup completes the current active group, locking it against
// further edits. No planned group is auto-activated; that is always a
// separate operator action.
func (s *Service) CloseActiveGroup(ctx context.Context) (Group, Result, error) {
	var closed Group
	res, err := s.observed(ctx, "close_active_group", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := findActive(tx)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: "active"}
			}
			now := tx.Now()
			group, err := tx.UpdateGroup(current.ID, func(g *domain.Group) error {
				g.Status = domain.StatusCompleted
				g.Locked = true
				g.ClosedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			closed = group
			return nil
		})
	})
	return closed, res, err
}

// DemoteActiveToPlanned returns the active group to the planned state,
// releasing its group number and clearing every certificate number issued
// for its period.
func (s *Service) DemoteActiveToPlanned(ctx context.Context) (Group, Result, error) {
	var demoted Group
	res, err := s.observed(ctx, "demote_active_to_planned", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := findActive(tx)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: "active"}
			}
			if err := demoteLocked(tx, current.ID); err != nil {
				return err
			}
			group, _ := tx.FindGroup(current.ID)
			demoted = group
			return nil
		})
	})
	return demoted, res, err
}

// ReopenGroup transitions a completed group back to active, with the same
// conflict protocol as ActivateGroup.
func (s *Service) ReopenGroup(ctx context.Context, id string) (Activation, Result, error) {
	var outcome Activation
	res, err := s.observed(ctx, "reopen_group", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			group, ok := tx.FindGroup(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: id}
			}
			if group.Status != domain.StatusCompleted {
				return domain.ValidationError{Field: "status", Reason: "only completed groups can be reopened"}
			}
			if current, ok := findActive(tx); ok && current.ID != id {
				outcome = Activation{Conflict: &current}
				return nil
			}
			activated, err := activateLocked(tx, id)
			if err != nil {
				return err
			}
			outcome = Activation{Group: activated}
			return nil
		})
	})
	return outcome, res, err
}

// LockGroup raises the lock flag on a completed group.
func (s *Service) LockGroup(ctx context.Context, id string) (Result, error) {
	return s.setLock(ctx, "lock_group", id, true)
}

// UnlockGroup clears the lock flag on a completed group.
func (s *Service) UnlockGroup(ctx context.Context, id string) (Result, error) {
	return s.setLock(ctx, "unlock_group", id, false)
}

func (s *Service) setLock(ctx context.Context, operation, id string, locked bool) (Result, error) {
	return s.observed(ctx, operation, func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			group, ok := tx.FindGroup(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: id}
			}
			if group.Status != domain.StatusCompleted {
				return domain.ValidationError{Field: "status", Reason: "only completed groups can be locked or unlocked"}
			}
			_, err := tx.UpdateGroup(id, func(g *domain.Group) error {
				g.Locked = locked
				return nil
			})
			return err
		})
	})
}

// SyncPeriods runs the period synchronizer on its own, outside a participant
// mutation.
func (s *Service) SyncPeriods(ctx context.Context) (Result, error) {
	return s.observed(ctx, "sync_periods", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			syncPeriods(tx)
			return nil
		})
	})
}

func findActive(tx domain.Transaction) (domain.Group, bool) {
	for _, g := range tx.ListGroups() {
		if g.Status == domain.StatusActive {
			return g, true
		}
	}
	return domain.Group{}, false
}

// activateLocked performs the unconditional part of activation: number
// assignment for previously planned groups, status flip, timestamp, and the
// batch issue for the period. Callers have already resolved conflicts.
func activateLocked(tx domain.Transaction, id string) (domain.Group, error) {
	now := tx.Now()
	group, err := tx.UpdateGroup(id, func(g *domain.Group) error {
		if g.GroupNumber == nil {
			number := maxGroupNumber(tx.ListGroups()) + 1
			g.GroupNumber = &number
		}
		g.Status = domain.StatusActive
		g.Locked = false
		g.ActivatedAt = &now
		g.ClosedAt = nil
		return nil
	})
	if err != nil {
		return domain.Group{}, err
	}
	if err := allocateBatch(tx, group.PeriodStart); err != nil {
		return domain.Group{}, err
	}
	return group, nil
}

// demoteLocked returns a group to planned: the group number is released and
// the period's issued certificate numbers are cleared so the top of the run
// can retract.
func demoteLocked(tx domain.Transaction, id string) error {
	group, err := tx.UpdateGroup(id, func(g *domain.Group) error {
		g.Status = domain.StatusPlanned
		g.GroupNumber = nil
		g.ActivatedAt = nil
		return nil
	})
	if err != nil {
		return err
	}
	return clearPeriod(tx, group.PeriodStart)
}
