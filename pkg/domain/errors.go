package domain

import (
	"fmt"
	"time"
)

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MedicalExpiredError reports a medical exam date outside the validity
// window of the target period.
type MedicalExpiredError struct {
	ExamDate    time.Time
	PeriodStart time.Time
}

func (e MedicalExpiredError) Error() string {
	return fmt.Sprintf("medical exam %s is not valid for period starting %s",
		e.ExamDate.Format("2006-01-02"), e.PeriodStart.Format("2006-01-02"))
}

// LockedGroupError reports a mutation attempted against a completed, locked group.
type LockedGroupError struct {
	GroupID     string
	PeriodStart time.Time
}

func (e LockedGroupError) Error() string {
	return fmt.Sprintf("group %s (period %s) is locked", e.GroupID, e.PeriodStart.Format("2006-01-02"))
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// DuplicateNumberError reports a manually assigned certificate number that
// collides with an existing one, live or archived.
type DuplicateNumberError struct {
	Number string
}

func (e DuplicateNumberError) Error() string {
	return fmt.Sprintf("certificate number %s is already assigned", e.Number)
}

// NumberCollisionError reports a restore blocked by a live group already
// holding the archived group's number.
type NumberCollisionError struct {
	GroupNumber int
}

func (e NumberCollisionError) Error() string {
	return fmt.Sprintf("a live group already holds number %d", e.GroupNumber)
}

// ArchiveNotReadyError reports an archive attempt while active or planned
// groups remain.
type ArchiveNotReadyError struct {
	GroupID string
	Status  GroupStatus
}

func (e ArchiveNotReadyError) Error() string {
	return fmt.Sprintf("cannot archive: group %s is still %s", e.GroupID, e.Status)
}

// SequenceExhaustedError is the fatal allocator failure raised when the
// prefix would exceed the 4-digit formatting capacity.
type SequenceExhaustedError struct {
	Prefix int
}

func (e SequenceExhaustedError) Error() string {
	return fmt.Sprintf("certificate sequence exhausted: prefix %d exceeds %04d", e.Prefix, MaxPrefix)
}

// StaleCountersError reports a counters persist whose version does not
// follow the committed one.
type StaleCountersError struct {
	Expected uint64
	Got      uint64
}

func (e StaleCountersError) Error() string {
	return fmt.Sprintf("stale sequence counters: expected version %d, got %d", e.Expected, e.Got)
}
