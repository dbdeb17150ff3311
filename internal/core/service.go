// Package core implements the group lifecycle state machine, the certificate
// number allocator, the period synchronizer, and the archive manager on top
// of a pluggable persistent store.
package core

import (
	"context"
	"strings"
	"time"

	"certcore/internal/blob"
	"certcore/internal/infra/persistence/memory"
	"certcore/pkg/domain"
)

// Service exposes the collaborator-facing operations over groups,
// participants, counters, and archives. Every mutating call runs as one
// store transaction, so its effects are either fully applied or fully
// rejected.
type Service struct {
	store   domain.PersistentStore
	metrics MetricsRecorder
	tracer  Tracer
	blobs   blob.Store
}

// Option customizes service construction.
type Option func(*Service)

// WithMetricsRecorder attaches a metrics recorder observing operation outcomes.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer attaches a tracer wrapping every operation in a span.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithBlobStore attaches a blob store used for archive snapshot exports.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) {
		s.blobs = store
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// observed wraps an operation with metrics and tracing.
func (s *Service) observed(ctx context.Context, operation string, fn func() (Result, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	res, err := fn()
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	span.End(err)
	return res, err
}

// ParticipantInput carries the fields the collaborator layer supplies when
// enrolling a trainee.
type ParticipantInput struct {
	PersonName      string
	CompanyName     string
	NationalID      string
	BirthPlace      string
	Citizenship     string
	MedicalExamDate time.Time
	PeriodStart     time.Time
}

// ParticipantPatch carries partial updates; nil fields are left untouched.
type ParticipantPatch struct {
	PersonName      *string
	CompanyName     *string
	NationalID      *string
	BirthPlace      *string
	Citizenship     *string
	MedicalExamDate *time.Time
	PeriodStart     *time.Time
	UniqueNumber    *string
	Submitted       *bool
	Documents       *bool
	HandedOver      *bool
	Paid            *bool
	// CompletedOverride forces the derived completion flag; ClearOverride
	// removes a previously set override.
	CompletedOverride *bool
	ClearOverride     bool
}

// AddParticipant validates and enrolls a trainee. The lock check runs before
// any other validation; a number is issued immediately only when the owning
// group is active.
func (s *Service) AddParticipant(ctx context.Context, input ParticipantInput) (Participant, Result, error) {
	var created Participant
	res, err := s.observed(ctx, "add_participant", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			period := domain.WeekStart(input.PeriodStart)
			owner, hasOwner := groupForPeriod(tx, period)
			if hasOwner && owner.Status == domain.StatusCompleted && owner.Locked {
				return domain.LockedGroupError{GroupID: owner.ID, PeriodStart: owner.PeriodStart}
			}
			if err := validateInput(input); err != nil {
				return err
			}
			if err := domain.ValidateMedicalDate(input.MedicalExamDate, period); err != nil {
				return err
			}
			participant := domain.Participant{
				PersonName:      strings.TrimSpace(input.PersonName),
				CompanyName:     strings.TrimSpace(input.CompanyName),
				NationalID:      strings.TrimSpace(input.NationalID),
				BirthPlace:      strings.TrimSpace(input.BirthPlace),
				Citizenship:     strings.TrimSpace(input.Citizenship),
				MedicalExamDate: domain.PeriodKey(input.MedicalExamDate),
				PeriodStart:     period,
				PeriodEnd:       domain.PeriodEnd(period),
			}
			inserted, err := tx.CreateParticipant(participant)
			if err != nil {
				return err
			}
			if hasOwner && owner.Status == domain.StatusActive {
				number, err := allocateNext(tx)
				if err != nil {
					return err
				}
				inserted, err = tx.UpdateParticipant(inserted.ID, func(p *domain.Participant) error {
					p.UniqueNumber = number
					return nil
				})
				if err != nil {
					return err
				}
			}
			created = inserted
			syncPeriods(tx)
			return nil
		})
	})
	return created, res, err
}

// ImportParticipants enrolls a batch of trainees in one transaction. Backup
// and export collaborators round-trip through this path so the allocator's
// invariants hold for restored data as well.
func (s *Service) ImportParticipants(ctx context.Context, inputs []ParticipantInput) ([]Participant, Result, error) {
	var created []Participant
	res, err := s.observed(ctx, "import_participants", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			for _, input := range inputs {
				period := domain.WeekStart(input.PeriodStart)
				owner, hasOwner := groupForPeriod(tx, period)
				if hasOwner && owner.Status == domain.StatusCompleted && owner.Locked {
					return domain.LockedGroupError{GroupID: owner.ID, PeriodStart: owner.PeriodStart}
				}
				if err := validateInput(input); err != nil {
					return err
				}
				if err := domain.ValidateMedicalDate(input.MedicalExamDate, period); err != nil {
					return err
				}
				inserted, err := tx.CreateParticipant(domain.Participant{
					PersonName:      strings.TrimSpace(input.PersonName),
					CompanyName:     strings.TrimSpace(input.CompanyName),
					NationalID:      strings.TrimSpace(input.NationalID),
					BirthPlace:      strings.TrimSpace(input.BirthPlace),
					Citizenship:     strings.TrimSpace(input.Citizenship),
					MedicalExamDate: domain.PeriodKey(input.MedicalExamDate),
					PeriodStart:     period,
					PeriodEnd:       domain.PeriodEnd(period),
				})
				if err != nil {
					return err
				}
				if hasOwner && owner.Status == domain.StatusActive {
					number, err := allocateNext(tx)
					if err != nil {
						return err
					}
					inserted, err = tx.UpdateParticipant(inserted.ID, func(p *domain.Participant) error {
						p.UniqueNumber = number
						return nil
					})
					if err != nil {
						return err
					}
				}
				created = append(created, inserted)
			}
			syncPeriods(tx)
			return nil
		})
	})
	if err != nil {
		return nil, res, err
	}
	return created, res, err
}

// UpdateParticipant applies a partial update. Lock enforcement covers both
// the participant's current group and, when the period moves, the target
// group; manual number assignments are checked for collisions against live
// and archived participants.
func (s *Service) UpdateParticipant(ctx context.Context, id string, patch ParticipantPatch) (Participant, Result, error) {
	var updated Participant
	res, err := s.observed(ctx, "update_participant", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindParticipant(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityParticipant, ID: id}
			}
			if err := ensureUnlocked(tx, current.PeriodStart); err != nil {
				return err
			}
			targetPeriod := domain.PeriodKey(current.PeriodStart)
			if patch.PeriodStart != nil {
				moved := domain.WeekStart(*patch.PeriodStart)
				if !moved.Equal(targetPeriod) {
					if err := ensureUnlocked(tx, moved); err != nil {
						return err
					}
					targetPeriod = moved
				}
			}
			exam := current.MedicalExamDate
			if patch.MedicalExamDate != nil {
				exam = domain.PeriodKey(*patch.MedicalExamDate)
			}
			if err := domain.ValidateMedicalDate(exam, targetPeriod); err != nil {
				return err
			}
			// Blanking an issued number would leave a hole in the run; numbers
			// are only released through DeleteParticipant.
			if patch.UniqueNumber != nil && *patch.UniqueNumber == "" && current.UniqueNumber != "" {
				return domain.ValidationError{Field: "unique_number", Reason: "cannot blank an issued number"}
			}
			if patch.UniqueNumber != nil && *patch.UniqueNumber != "" && *patch.UniqueNumber != current.UniqueNumber {
				if _, err := domain.ParseCertificateNumber(*patch.UniqueNumber); err != nil {
					return err
				}
				if numberTaken(tx, *patch.UniqueNumber, id) {
					return domain.DuplicateNumberError{Number: *patch.UniqueNumber}
				}
			}
			result, err := tx.UpdateParticipant(id, func(p *domain.Participant) error {
				applyPatch(p, patch)
				p.MedicalExamDate = exam
				p.PeriodStart = targetPeriod
				p.PeriodEnd = domain.PeriodEnd(targetPeriod)
				if p.Completed() && p.CompletedAt == nil {
					completedAt := tx.Now()
					p.CompletedAt = &completedAt
				}
				return nil
			})
			if err != nil {
				return err
			}
			updated = result
			syncPeriods(tx)
			return nil
		})
	})
	return updated, res, err
}

// DeleteParticipant removes a trainee, realigning the certificate run when
// the record held a number.
func (s *Service) DeleteParticipant(ctx context.Context, id string) (Result, error) {
	return s.observed(ctx, "delete_participant", func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindParticipant(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityParticipant, ID: id}
			}
			if err := ensureUnlocked(tx, current.PeriodStart); err != nil {
				return err
			}
			if err := tx.DeleteParticipant(id); err != nil {
				return err
			}
			if current.UniqueNumber != "" {
				if err := releaseNumber(tx, current.UniqueNumber); err != nil {
					return err
				}
			}
			syncPeriods(tx)
			return nil
		})
	})
}

// Read surface ---------------------------------------------------------------

// GetGroup retrieves a group by ID.
func (s *Service) GetGroup(id string) (Group, bool) { return s.store.GetGroup(id) }

// ListGroups returns all live groups ordered by period.
func (s *Service) ListGroups() []Group { return s.store.ListGroups() }

// GetParticipant retrieves a participant by ID.
func (s *Service) GetParticipant(id string) (Participant, bool) { return s.store.GetParticipant(id) }

// ListParticipants returns all live participants.
func (s *Service) ListParticipants() []Participant { return s.store.ListParticipants() }

// ListParticipantsInPeriod returns the live participants assigned to the
// period containing the given timestamp.
func (s *Service) ListParticipantsInPeriod(start time.Time) []Participant {
	key := domain.WeekStart(start)
	var out []Participant
	for _, p := range s.store.ListParticipants() {
		if domain.PeriodKey(p.PeriodStart).Equal(key) {
			out = append(out, p)
		}
	}
	return out
}

// Counters returns the committed sequence counters.
func (s *Service) Counters() SequenceCounters { return s.store.Counters() }

// GetArchive retrieves a yearly archive.
func (s *Service) GetArchive(year int) (YearlyArchive, bool) { return s.store.GetArchive(year) }

// ListArchives returns all yearly archives.
func (s *Service) ListArchives() []YearlyArchive { return s.store.ListArchives() }

// helpers --------------------------------------------------------------------

func validateInput(input ParticipantInput) error {
	if strings.TrimSpace(input.PersonName) == "" {
		return domain.ValidationError{Field: "person_name", Reason: "must not be empty"}
	}
	if input.PeriodStart.IsZero() {
		return domain.ValidationError{Field: "period_start", Reason: "must be set"}
	}
	if input.MedicalExamDate.IsZero() {
		return domain.ValidationError{Field: "medical_exam_date", Reason: "must be set"}
	}
	return nil
}

func groupForPeriod(tx domain.Transaction, periodStart time.Time) (domain.Group, bool) {
	key := domain.PeriodKey(periodStart)
	for _, g := range tx.ListGroups() {
		if domain.PeriodKey(g.PeriodStart).Equal(key) {
			return g, true
		}
	}
	return domain.Group{}, false
}

func ensureUnlocked(tx domain.Transaction, periodStart time.Time) error {
	if group, ok := groupForPeriod(tx, periodStart); ok && group.Status == domain.StatusCompleted && group.Locked {
		return domain.LockedGroupError{GroupID: group.ID, PeriodStart: group.PeriodStart}
	}
	return nil
}

func numberTaken(tx domain.Transaction, number, excludeID string) bool {
	for _, p := range tx.ListParticipants() {
		if p.ID != excludeID && p.UniqueNumber == number {
			return true
		}
	}
	for _, archive := range tx.ListArchives() {
		for _, p := range archive.Participants {
			if p.UniqueNumber == number {
				return true
			}
		}
	}
	return false
}

func applyPatch(p *domain.Participant, patch ParticipantPatch) {
	if patch.PersonName != nil {
		p.PersonName = strings.TrimSpace(*patch.PersonName)
	}
	if patch.CompanyName != nil {
		p.CompanyName = strings.TrimSpace(*patch.CompanyName)
	}
	if patch.NationalID != nil {
		p.NationalID = strings.TrimSpace(*patch.NationalID)
	}
	if patch.BirthPlace != nil {
		p.BirthPlace = strings.TrimSpace(*patch.BirthPlace)
	}
	if patch.Citizenship != nil {
		p.Citizenship = strings.TrimSpace(*patch.Citizenship)
	}
	if patch.UniqueNumber != nil {
		p.UniqueNumber = *patch.UniqueNumber
	}
	if patch.Submitted != nil {
		p.Submitted = *patch.Submitted
	}
	if patch.Documents != nil {
		p.Documents = *patch.Documents
	}
	if patch.HandedOver != nil {
		p.HandedOver = *patch.HandedOver
	}
	if patch.Paid != nil {
		p.Paid = *patch.Paid
	}
	if patch.ClearOverride {
		p.CompletedOverride = nil
	} else if patch.CompletedOverride != nil {
		override := *patch.CompletedOverride
		p.CompletedOverride = &override
	}
}
