package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Now() time.Time
	Snapshot() TransactionView
	CreateGroup(Group) (Group, error)
	UpdateGroup(id string, mutator func(*Group) error) (Group, error)
	DeleteGroup(id string) error
	// PutGroup inserts a group preserving its recorded timestamps apart from
	// UpdatedAt. Used by the restore path.
	PutGroup(Group) (Group, error)
	FindGroup(id string) (Group, bool)
	ListGroups() []Group
	CreateParticipant(Participant) (Participant, error)
	UpdateParticipant(id string, mutator func(*Participant) error) (Participant, error)
	DeleteParticipant(id string) error
	PutParticipant(Participant) (Participant, error)
	FindParticipant(id string) (Participant, bool)
	ListParticipants() []Participant
	Counters() SequenceCounters
	SetCounters(SequenceCounters) error
	FindArchive(year int) (YearlyArchive, bool)
	ListArchives() []YearlyArchive
	PutArchive(YearlyArchive) error
	DeleteArchive(year int) error
}

// TransactionView provides read-only access to snapshot data for rules and
// concurrent readers.
type TransactionView interface {
	ListGroups() []Group
	ListParticipants() []Participant
	ListArchives() []YearlyArchive
	FindGroup(id string) (Group, bool)
	FindParticipant(id string) (Participant, bool)
	FindArchive(year int) (YearlyArchive, bool)
	Counters() SequenceCounters
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetGroup(id string) (Group, bool)
	ListGroups() []Group
	GetParticipant(id string) (Participant, bool)
	ListParticipants() []Participant
	Counters() SequenceCounters
	GetArchive(year int) (YearlyArchive, bool)
	ListArchives() []YearlyArchive
}
