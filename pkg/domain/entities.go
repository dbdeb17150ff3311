// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by certcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityGroup identifies a weekly training group record.
	EntityGroup EntityType = "group"
	// EntityParticipant identifies a trainee enrollment record.
	EntityParticipant EntityType = "participant"
	// EntityCounters identifies the sequence counters singleton.
	EntityCounters EntityType = "sequence_counters"
	// EntityArchive identifies a yearly archive record.
	EntityArchive EntityType = "yearly_archive"
)

// GroupStatus represents the canonical group lifecycle states.
type GroupStatus string

// Canonical group statuses driving activation and archiving decisions.
const (
	// StatusPlanned indicates a future period that has not started.
	StatusPlanned GroupStatus = "planned"
	// StatusActive indicates the single currently running cohort.
	StatusActive GroupStatus = "active"
	// StatusCompleted indicates a finished period, normally locked.
	StatusCompleted GroupStatus = "completed"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Group represents one weekly training period that has ever had, or will
// soon have, participants. At most one group is active at a time; the
// GroupNumber is present only while or after the group is active.
type Group struct {
	Base
	GroupNumber *int        `json:"group_number"`
	PeriodStart time.Time   `json:"period_start"`
	PeriodEnd   time.Time   `json:"period_end"`
	Status      GroupStatus `json:"status"`
	Locked      bool        `json:"locked"`
	ActivatedAt *time.Time  `json:"activated_at"`
	ClosedAt    *time.Time  `json:"closed_at"`
}

// Participant represents one trainee enrollment. Period bounds are copied
// from the owning group at assignment time; the synchronizer keeps the two
// consistent.
type Participant struct {
	Base
	PersonName      string     `json:"person_name"`
	CompanyName     string     `json:"company_name"`
	NationalID      string     `json:"national_id"`
	BirthPlace      string     `json:"birth_place"`
	Citizenship     string     `json:"citizenship"`
	MedicalExamDate time.Time  `json:"medical_exam_date"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       time.Time  `json:"period_end"`
	UniqueNumber    string     `json:"unique_number"`
	Submitted       bool       `json:"submitted"`
	Documents       bool       `json:"documents"`
	HandedOver      bool       `json:"handed_over"`
	Paid            bool       `json:"paid"`
	// CompletedOverride takes precedence over the derived progress flags when set.
	CompletedOverride *bool      `json:"completed_override,omitempty"`
	CompletedAt       *time.Time `json:"completed_at"`
}

// Completed reports whether the participant has finished the course: the
// manual override when present, otherwise the conjunction of the four
// progress flags.
func (p Participant) Completed() bool {
	if p.CompletedOverride != nil {
		return *p.CompletedOverride
	}
	return p.Submitted && p.Documents && p.HandedOver && p.Paid
}

// SequenceCounters is the persisted ground-truth fallback for number
// allocation. It is passed explicitly through allocator operations; Version
// increments on every persist so stale writers can be detected.
type SequenceCounters struct {
	LastPrefix    int    `json:"last_prefix"`
	LastSeq       int    `json:"last_seq"`
	LastResetYear *int   `json:"last_reset_year,omitempty"`
	Version       uint64 `json:"version"`
}

// YearlyArchive holds verbatim copies of the groups and participants removed
// during one year's archiving pass. Immutable once written except for removal
// of individual restored entries.
type YearlyArchive struct {
	Year         int           `json:"year"`
	Groups       []Group       `json:"groups"`
	Participants []Participant `json:"participants"`
	ArchivedAt   time.Time     `json:"archived_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
