// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"certcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Group aliases domain.Group for in-memory persistence operations.
	Group = domain.Group
	// Participant aliases domain.Participant.
	Participant = domain.Participant
	// SequenceCounters aliases domain.SequenceCounters.
	SequenceCounters = domain.SequenceCounters
	// YearlyArchive aliases domain.YearlyArchive.
	YearlyArchive = domain.YearlyArchive
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	groups       map[string]Group
	participants map[string]Participant
	counters     SequenceCounters
	archives     map[int]YearlyArchive
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Groups       map[string]Group       `json:"groups"`
	Participants map[string]Participant `json:"participants"`
	Counters     SequenceCounters       `json:"counters"`
	Archives     map[int]YearlyArchive  `json:"archives"`
}

func newMemoryState() memoryState {
	return memoryState{
		groups:       make(map[string]Group),
		participants: make(map[string]Participant),
		archives:     make(map[int]YearlyArchive),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.groups {
		cloned.groups[k] = cloneGroup(v)
	}
	for k, v := range s.participants {
		cloned.participants[k] = cloneParticipant(v)
	}
	for k, v := range s.archives {
		cloned.archives[k] = cloneArchive(v)
	}
	cloned.counters = s.counters
	if s.counters.LastResetYear != nil {
		year := *s.counters.LastResetYear
		cloned.counters.LastResetYear = &year
	}
	return cloned
}

func cloneGroup(g Group) Group {
	cp := g
	if g.GroupNumber != nil {
		n := *g.GroupNumber
		cp.GroupNumber = &n
	}
	if g.ActivatedAt != nil {
		t := *g.ActivatedAt
		cp.ActivatedAt = &t
	}
	if g.ClosedAt != nil {
		t := *g.ClosedAt
		cp.ClosedAt = &t
	}
	return cp
}

func cloneParticipant(p Participant) Participant {
	cp := p
	if p.CompletedOverride != nil {
		v := *p.CompletedOverride
		cp.CompletedOverride = &v
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

func cloneArchive(a YearlyArchive) YearlyArchive {
	cp := a
	cp.Groups = make([]Group, 0, len(a.Groups))
	for _, g := range a.Groups {
		cp.Groups = append(cp.Groups, cloneGroup(g))
	}
	cp.Participants = make([]Participant, 0, len(a.Participants))
	for _, p := range a.Participants {
		cp.Participants = append(cp.Participants, cloneParticipant(p))
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the store clock; intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

// view exposes a read-only snapshot of transactional state to rules.
type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}

func (v view) ListGroups() []Group {
	out := make([]Group, 0, len(v.state.groups))
	for _, g := range v.state.groups {
		out = append(out, cloneGroup(g))
	}
	sortGroups(out)
	return out
}

func (v view) ListParticipants() []Participant {
	out := make([]Participant, 0, len(v.state.participants))
	for _, p := range v.state.participants {
		out = append(out, cloneParticipant(p))
	}
	sortParticipants(out)
	return out
}

func (v view) ListArchives() []YearlyArchive {
	out := make([]YearlyArchive, 0, len(v.state.archives))
	for _, a := range v.state.archives {
		out = append(out, cloneArchive(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func (v view) FindGroup(id string) (Group, bool) {
	g, ok := v.state.groups[id]
	if !ok {
		return Group{}, false
	}
	return cloneGroup(g), true
}

func (v view) FindParticipant(id string) (Participant, bool) {
	p, ok := v.state.participants[id]
	if !ok {
		return Participant{}, false
	}
	return cloneParticipant(p), true
}

func (v view) FindArchive(year int) (YearlyArchive, bool) {
	a, ok := v.state.archives[year]
	if !ok {
		return YearlyArchive{}, false
	}
	return cloneArchive(a), true
}

func (v view) Counters() SequenceCounters {
	c := v.state.counters
	if c.LastResetYear != nil {
		year := *c.LastResetYear
		c.LastResetYear = &year
	}
	return c
}

func sortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].PeriodStart.Equal(groups[j].PeriodStart) {
			return groups[i].PeriodStart.Before(groups[j].PeriodStart)
		}
		return groups[i].ID < groups[j].ID
	})
}

func sortParticipants(participants []Participant) {
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].CreatedAt.Equal(participants[j].CreatedAt) {
			return participants[i].CreatedAt.Before(participants[j].CreatedAt)
		}
		return participants[i].ID < participants[j].ID
	})
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules are evaluated against the mutated snapshot before commit; blocking
// violations abort the commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Now returns the timestamp the transaction stamps on mutated records.
func (tx *transaction) Now() time.Time { return tx.now }

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView { return view{state: &tx.state} }

// CreateGroup stores a new group within the transaction.
func (tx *transaction) CreateGroup(g Group) (Group, error) {
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	if _, exists := tx.state.groups[g.ID]; exists {
		return Group{}, fmt.Errorf("group %q already exists", g.ID)
	}
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	tx.state.groups[g.ID] = cloneGroup(g)
	tx.recordChange(Change{Entity: domain.EntityGroup, Action: domain.ActionCreate, After: cloneGroup(g)})
	return cloneGroup(g), nil
}

// UpdateGroup mutates a group using the provided mutator function.
func (tx *transaction) UpdateGroup(id string, mutator func(*Group) error) (Group, error) {
	current, ok := tx.state.groups[id]
	if !ok {
		return Group{}, domain.NotFoundError{Entity: domain.EntityGroup, ID: id}
	}
	before := cloneGroup(current)
	if err := mutator(&current); err != nil {
		return Group{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.groups[id] = cloneGroup(current)
	tx.recordChange(Change{Entity: domain.EntityGroup, Action: domain.ActionUpdate, Before: before, After: cloneGroup(current)})
	return cloneGroup(current), nil
}

// DeleteGroup removes a group from the transaction state.
func (tx *transaction) DeleteGroup(id string) error {
	current, ok := tx.state.groups[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityGroup, ID: id}
	}
	delete(tx.state.groups, id)
	tx.recordChange(Change{Entity: domain.EntityGroup, Action: domain.ActionDelete, Before: cloneGroup(current)})
	return nil
}

// PutGroup inserts a group preserving its recorded timestamps apart from UpdatedAt.
func (tx *transaction) PutGroup(g Group) (Group, error) {
	if g.ID == "" {
		return Group{}, fmt.Errorf("put group: missing id")
	}
	if _, exists := tx.state.groups[g.ID]; exists {
		return Group{}, fmt.Errorf("group %q already exists", g.ID)
	}
	g.UpdatedAt = tx.now
	tx.state.groups[g.ID] = cloneGroup(g)
	tx.recordChange(Change{Entity: domain.EntityGroup, Action: domain.ActionCreate, After: cloneGroup(g)})
	return cloneGroup(g), nil
}

// FindGroup retrieves a group by ID from the transactional state.
func (tx *transaction) FindGroup(id string) (Group, bool) {
	g, ok := tx.state.groups[id]
	if !ok {
		return Group{}, false
	}
	return cloneGroup(g), true
}

// ListGroups returns all groups in the transactional state ordered by period.
func (tx *transaction) ListGroups() []Group {
	return view{state: &tx.state}.ListGroups()
}

// CreateParticipant stores a new participant within the transaction.
func (tx *transaction) CreateParticipant(p Participant) (Participant, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.participants[p.ID]; exists {
		return Participant{}, fmt.Errorf("participant %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.participants[p.ID] = cloneParticipant(p)
	tx.recordChange(Change{Entity: domain.EntityParticipant, Action: domain.ActionCreate, After: cloneParticipant(p)})
	return cloneParticipant(p), nil
}

// UpdateParticipant mutates a participant using the provided mutator function.
func (tx *transaction) UpdateParticipant(id string, mutator func(*Participant) error) (Participant, error) {
	current, ok := tx.state.participants[id]
	if !ok {
		return Participant{}, domain.NotFoundError{Entity: domain.EntityParticipant, ID: id}
	}
	before := cloneParticipant(current)
	if err := mutator(&current); err != nil {
		return Participant{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.participants[id] = cloneParticipant(current)
	tx.recordChange(Change{Entity: domain.EntityParticipant, Action: domain.ActionUpdate, Before: before, After: cloneParticipant(current)})
	return cloneParticipant(current), nil
}

// DeleteParticipant removes a participant from the transaction state.
func (tx *transaction) DeleteParticipant(id string) error {
	current, ok := tx.state.participants[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityParticipant, ID: id}
	}
	delete(tx.state.participants, id)
	tx.recordChange(Change{Entity: domain.EntityParticipant, Action: domain.ActionDelete, Before: cloneParticipant(current)})
	return nil
}

// PutParticipant inserts a participant preserving its recorded timestamps apart from UpdatedAt.
func (tx *transaction) PutParticipant(p Participant) (Participant, error) {
	if p.ID == "" {
		return Participant{}, fmt.Errorf("put participant: missing id")
	}
	if _, exists := tx.state.participants[p.ID]; exists {
		return Participant{}, fmt.Errorf("participant %q already exists", p.ID)
	}
	p.UpdatedAt = tx.now
	tx.state.participants[p.ID] = cloneParticipant(p)
	tx.recordChange(Change{Entity: domain.EntityParticipant, Action: domain.ActionCreate, After: cloneParticipant(p)})
	return cloneParticipant(p), nil
}

// FindParticipant retrieves a participant by ID from the transactional state.
func (tx *transaction) FindParticipant(id string) (Participant, bool) {
	p, ok := tx.state.participants[id]
	if !ok {
		return Participant{}, false
	}
	return cloneParticipant(p), true
}

// ListParticipants returns all participants ordered by creation time then ID.
func (tx *transaction) ListParticipants() []Participant {
	return view{state: &tx.state}.ListParticipants()
}

// Counters returns the sequence counters singleton.
func (tx *transaction) Counters() SequenceCounters {
	return view{state: &tx.state}.Counters()
}

// SetCounters persists the counters record, enforcing the version handoff.
func (tx *transaction) SetCounters(c SequenceCounters) error {
	current := tx.state.counters
	if c.Version != current.Version+1 {
		return domain.StaleCountersError{Expected: current.Version + 1, Got: c.Version}
	}
	before := current
	tx.state.counters = c
	if c.LastResetYear != nil {
		year := *c.LastResetYear
		tx.state.counters.LastResetYear = &year
	}
	tx.recordChange(Change{Entity: domain.EntityCounters, Action: domain.ActionUpdate, Before: before, After: c})
	return nil
}

// FindArchive retrieves a yearly archive by year.
func (tx *transaction) FindArchive(year int) (YearlyArchive, bool) {
	return view{state: &tx.state}.FindArchive(year)
}

// ListArchives returns all yearly archives ordered by year.
func (tx *transaction) ListArchives() []YearlyArchive {
	return view{state: &tx.state}.ListArchives()
}

// PutArchive inserts or replaces a yearly archive record.
func (tx *transaction) PutArchive(a YearlyArchive) error {
	before, existed := tx.state.archives[a.Year]
	tx.state.archives[a.Year] = cloneArchive(a)
	change := Change{Entity: domain.EntityArchive, Action: domain.ActionCreate, After: cloneArchive(a)}
	if existed {
		change.Action = domain.ActionUpdate
		change.Before = cloneArchive(before)
	}
	tx.recordChange(change)
	return nil
}

// DeleteArchive removes a yearly archive record.
func (tx *transaction) DeleteArchive(year int) error {
	current, ok := tx.state.archives[year]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityArchive, ID: fmt.Sprint(year)}
	}
	delete(tx.state.archives, year)
	tx.recordChange(Change{Entity: domain.EntityArchive, Action: domain.ActionDelete, Before: cloneArchive(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetGroup retrieves a group by ID from committed state.
func (s *Store) GetGroup(id string) (Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.groups[id]
	if !ok {
		return Group{}, false
	}
	return cloneGroup(g), true
}

// ListGroups returns all groups from committed state ordered by period.
func (s *Store) ListGroups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListGroups()
}

// GetParticipant retrieves a participant by ID from committed state.
func (s *Store) GetParticipant(id string) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.participants[id]
	if !ok {
		return Participant{}, false
	}
	return cloneParticipant(p), true
}

// ListParticipants returns all participants from committed state.
func (s *Store) ListParticipants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListParticipants()
}

// Counters returns the committed sequence counters.
func (s *Store) Counters() SequenceCounters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.state.counters
	if s.state.counters.LastResetYear != nil {
		year := *s.state.counters.LastResetYear
		c.LastResetYear = &year
	}
	return c
}

// GetArchive retrieves a yearly archive from committed state.
func (s *Store) GetArchive(year int) (YearlyArchive, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.archives[year]
	if !ok {
		return YearlyArchive{}, false
	}
	return cloneArchive(a), true
}

// ListArchives returns all yearly archives from committed state.
func (s *Store) ListArchives() []YearlyArchive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListArchives()
}

// ExportState returns a deep copy of committed state for snapshotting stores.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := s.state.clone()
	return Snapshot{
		Groups:       cloned.groups,
		Participants: cloned.participants,
		Counters:     cloned.counters,
		Archives:     cloned.archives,
	}
}

// ImportState replaces committed state from a snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Groups {
		state.groups[k] = cloneGroup(v)
	}
	for k, v := range snapshot.Participants {
		state.participants[k] = cloneParticipant(v)
	}
	for k, v := range snapshot.Archives {
		state.archives[k] = cloneArchive(v)
	}
	state.counters = snapshot.Counters
	if snapshot.Counters.LastResetYear != nil {
		year := *snapshot.Counters.LastResetYear
		state.counters.LastResetYear = &year
	}
	s.state = state
}
