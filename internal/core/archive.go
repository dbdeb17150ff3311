package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certcore/internal/blob"
	"certcore/pkg/domain"
)

// ArchiveSummary reports what a yearly archive operation moved.
type ArchiveSummary struct {
	Year         int `json:"year"`
	Groups       int `json:"groups"`
	Participants int `json:"participants"`
}

// ArchiveYear moves every completed group whose period starts in the given year,
// together with its participants, into the yearly archive bucket, then bumps
// the sequence prefix so the next season starts a fresh run. The operation
// refuses to run while any group is still planned or active.
func (s *Service) ArchiveYear(ctx context.Context, year int) (ArchiveSummary, Result, error) {
	var summary ArchiveSummary
	res, err := s.observed(ctx, "archive_year", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			for _, g := range tx.ListGroups() {
				if g.Status != domain.StatusCompleted {
					return domain.ArchiveNotReadyError{GroupID: g.ID, Status: g.Status}
				}
			}
			var groups []domain.Group
			for _, g := range tx.ListGroups() {
				// A week straddling Dec 31 belongs to the year its period starts in,
				// so restore lookups by start year always find it.
				if g.PeriodStart.Year() == year {
					groups = append(groups, g)
				}
			}
			if len(groups) == 0 {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: fmt.Sprintf("year=%d", year)}
			}
			var participants []domain.Participant
			for _, g := range groups {
				for _, p := range tx.ListParticipants() {
					if domain.PeriodKey(p.PeriodStart).Equal(domain.PeriodKey(g.PeriodStart)) {
						participants = append(participants, p)
					}
				}
			}
			archive := domain.YearlyArchive{
				Year:         year,
				Groups:       groups,
				Participants: participants,
				ArchivedAt:   tx.Now(),
			}
			if existing, ok := tx.FindArchive(year); ok {
				archive.Groups = append(existing.Groups, archive.Groups...)
				archive.Participants = append(existing.Participants, archive.Participants...)
			}
			if err := tx.PutArchive(archive); err != nil {
				return err
			}
			for _, p := range participants {
				if err := tx.DeleteParticipant(p.ID); err != nil {
					return err
				}
			}
			for _, g := range groups {
				if err := tx.DeleteGroup(g.ID); err != nil {
					return err
				}
			}
			if err := resetYearly(tx, year); err != nil {
				return err
			}
			summary = ArchiveSummary{Year: year, Groups: len(groups), Participants: len(participants)}
			return nil
		})
	})
	if err == nil {
		s.exportArchiveSnapshot(ctx, year)
	}
	return summary, res, err
}

// RestoreGroup copies one archived group and its participants back into the
// live tables. Restored rows keep their archived status and lock state along
// with their original creation timestamps and certificate numbers.
func (s *Service) RestoreGroup(ctx context.Context, year, groupNumber int) (Group, Result, error) {
	var restored Group
	res, err := s.observed(ctx, "restore_group", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			archive, ok := tx.FindArchive(year)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityArchive, ID: fmt.Sprintf("%d", year)}
			}
			idx := -1
			for i, g := range archive.Groups {
				if g.GroupNumber != nil && *g.GroupNumber == groupNumber {
					idx = i
					break
				}
			}
			if idx < 0 {
				return domain.NotFoundError{Entity: domain.EntityGroup, ID: fmt.Sprintf("%d/%d", year, groupNumber)}
			}
			group := archive.Groups[idx]
			for _, g := range tx.ListGroups() {
				if g.GroupNumber != nil && *g.GroupNumber == groupNumber {
					return domain.NumberCollisionError{GroupNumber: groupNumber}
				}
				if domain.PeriodKey(g.PeriodStart).Equal(domain.PeriodKey(group.PeriodStart)) {
					return domain.NumberCollisionError{GroupNumber: groupNumber}
				}
			}
			var members []domain.Participant
			var remaining []domain.Participant
			for _, p := range archive.Participants {
				if domain.PeriodKey(p.PeriodStart).Equal(domain.PeriodKey(group.PeriodStart)) {
					members = append(members, p)
				} else {
					remaining = append(remaining, p)
				}
			}
			for _, p := range members {
				for _, live := range tx.ListParticipants() {
					if p.UniqueNumber != "" && live.UniqueNumber == p.UniqueNumber {
						return domain.DuplicateNumberError{Number: p.UniqueNumber}
					}
				}
			}
			result, err := tx.PutGroup(group)
			if err != nil {
				return err
			}
			for _, p := range members {
				if _, err := tx.PutParticipant(p); err != nil {
					return err
				}
			}
			rest := archive.Groups[:idx:idx]
			rest = append(rest, archive.Groups[idx+1:]...)
			if len(rest) == 0 && len(remaining) == 0 {
				if err := tx.DeleteArchive(year); err != nil {
					return err
				}
			} else {
				archive.Groups = rest
				archive.Participants = remaining
				if err := tx.PutArchive(archive); err != nil {
					return err
				}
			}
			restored = result
			return nil
		})
	})
	return restored, res, err
}

// exportArchiveSnapshot writes the committed archive to the configured blob
// store. Export failures never surface to the caller; the archive itself is
// already durable in the primary store.
func (s *Service) exportArchiveSnapshot(ctx context.Context, year int) {
	if s.blobs == nil {
		return
	}
	archive, ok := s.store.GetArchive(year)
	if !ok {
		return
	}
	payload, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return
	}
	key := fmt.Sprintf("archives/%d/snapshot.json", year)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	_, _ = s.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "application/json"})
}
