package core

import (
	"fmt"
	"sort"
	"time"

	"certcore/pkg/domain"
)

// The allocator issues strictly paired prefix/sequence certificate numbers.
// Prefix and sequence always advance together, so a contiguous run keeps a
// constant offset between the two; deletions close the gap by shifting every
// higher pair down (realignment) rather than leaving holes.

// globalMax returns the greatest (prefix, seq) pair over all participants
// holding a number, compared against the persisted counters unless
// ignoreCounters is set. The second return is false when nothing exists.
func globalMax(tx domain.Transaction, ignoreCounters bool) (domain.CertificateNumber, bool) {
	var max domain.CertificateNumber
	found := false
	for _, p := range tx.ListParticipants() {
		if p.UniqueNumber == "" {
			continue
		}
		number, err := domain.ParseCertificateNumber(p.UniqueNumber)
		if err != nil {
			// Malformed values are surfaced by validation elsewhere; they
			// cannot anchor the sequence.
			continue
		}
		if !found || max.Less(number) {
			max = number
			found = true
		}
	}
	if !ignoreCounters {
		counters := tx.Counters()
		fallback := domain.CertificateNumber{Prefix: counters.LastPrefix, Seq: counters.LastSeq}
		if countersPresent(counters) && (!found || max.Less(fallback)) {
			max = fallback
			found = true
		}
	}
	return max, found
}

func countersPresent(c domain.SequenceCounters) bool {
	return c.LastPrefix != 0 || c.LastSeq != 0 || c.LastResetYear != nil
}

// persistCounters writes the (prefix, seq) pair back as the new counters,
// preserving the reset-year marker and advancing the record version.
func persistCounters(tx domain.Transaction, n domain.CertificateNumber) error {
	current := tx.Counters()
	next := current
	next.LastPrefix = n.Prefix
	next.LastSeq = n.Seq
	next.Version = current.Version + 1
	return tx.SetCounters(next)
}

// allocateNext issues a single certificate number: the double-incremented
// successor of the global maximum, persisted as the new counters.
func allocateNext(tx domain.Transaction) (string, error) {
	max, _ := globalMax(tx, false)
	next, err := max.Next()
	if err != nil {
		return "", err
	}
	if err := persistCounters(tx, next); err != nil {
		return "", err
	}
	return next.String(), nil
}

// allocateBatch issues numbers to every unnumbered participant of the period
// in FIFO order (CreatedAt, then ID) and persists the final counters once.
func allocateBatch(tx domain.Transaction, periodStart time.Time) error {
	key := domain.PeriodKey(periodStart)
	var pending []domain.Participant
	for _, p := range tx.ListParticipants() {
		if p.UniqueNumber == "" && domain.PeriodKey(p.PeriodStart).Equal(key) {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	cursor, _ := globalMax(tx, false)
	for _, p := range pending {
		next, err := cursor.Next()
		if err != nil {
			return err
		}
		cursor = next
		number := next.String()
		if _, err := tx.UpdateParticipant(p.ID, func(target *domain.Participant) error {
			target.UniqueNumber = number
			return nil
		}); err != nil {
			return fmt.Errorf("assign %s: %w", number, err)
		}
	}
	return persistCounters(tx, cursor)
}

// releaseNumber realigns the run after the holder of number was deleted:
// every pair with a strictly greater prefix shifts down by one, then the
// counters retract to the participant-set maximum.
func releaseNumber(tx domain.Transaction, number string) error {
	released, err := domain.ParseCertificateNumber(number)
	if err != nil {
		return err
	}
	for _, p := range tx.ListParticipants() {
		if p.UniqueNumber == "" {
			continue
		}
		current, err := domain.ParseCertificateNumber(p.UniqueNumber)
		if err != nil {
			continue
		}
		if current.Prefix <= released.Prefix {
			continue
		}
		shifted := domain.CertificateNumber{Prefix: current.Prefix - 1, Seq: current.Seq - 1}
		if _, err := tx.UpdateParticipant(p.ID, func(target *domain.Participant) error {
			target.UniqueNumber = shifted.String()
			return nil
		}); err != nil {
			return fmt.Errorf("realign %s: %w", p.ID, err)
		}
	}
	max, _ := globalMax(tx, true)
	return persistCounters(tx, max)
}

// clearPeriod blanks every number issued to the period and retracts the
// counters to the remaining participant-set maximum, letting the top of the
// run recede when an active group is demoted.
func clearPeriod(tx domain.Transaction, periodStart time.Time) error {
	key := domain.PeriodKey(periodStart)
	for _, p := range tx.ListParticipants() {
		if p.UniqueNumber == "" || !domain.PeriodKey(p.PeriodStart).Equal(key) {
			continue
		}
		if _, err := tx.UpdateParticipant(p.ID, func(target *domain.Participant) error {
			target.UniqueNumber = ""
			return nil
		}); err != nil {
			return fmt.Errorf("clear %s: %w", p.ID, err)
		}
	}
	max, _ := globalMax(tx, true)
	return persistCounters(tx, max)
}

// resetYearly advances the prefix by one with the sequence rewound to zero,
// marking the year boundary: the next allocation lands at (oldPrefix+2, 1),
// an intentional one-prefix skip.
func resetYearly(tx domain.Transaction, year int) error {
	current := tx.Counters()
	next := current
	next.LastPrefix = current.LastPrefix + 1
	next.LastSeq = 0
	next.LastResetYear = &year
	next.Version = current.Version + 1
	if next.LastPrefix > domain.MaxPrefix {
		return domain.SequenceExhaustedError{Prefix: next.LastPrefix}
	}
	return tx.SetCounters(next)
}
