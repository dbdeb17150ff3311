package core

import "certcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	GroupStatus        = domain.GroupStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Group              = domain.Group
	Participant        = domain.Participant
	SequenceCounters   = domain.SequenceCounters
	YearlyArchive      = domain.YearlyArchive
	CertificateNumber  = domain.CertificateNumber
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityGroup       = domain.EntityGroup
	EntityParticipant = domain.EntityParticipant
	EntityCounters    = domain.EntityCounters
	EntityArchive     = domain.EntityArchive
)

const (
	StatusPlanned   = domain.StatusPlanned
	StatusActive    = domain.StatusActive
	StatusCompleted = domain.StatusCompleted
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
