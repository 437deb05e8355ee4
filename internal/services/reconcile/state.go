package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/portico/internal/models"
)

// State owns the active and historical sets and the fingerprint of the snapshot
// they were built from. Readers always receive copies.
type State struct {
	mu         sync.RWMutex
	active     []models.Withdrawal
	historical []models.Withdrawal
	token      Token
	generation uint64
	lastSync   time.Time

	listenersMu sync.RWMutex
	listeners   []func()
}

// NewState creates an empty state with the zero token.
func NewState() *State {
	return &State{}
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Active     []models.Withdrawal
	Historical []models.Withdrawal
	Token      Token
	Generation uint64
	LastSync   time.Time
}

// OnChange registers fn to run after every mutation, outside the state lock.
func (s *State) OnChange(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns copies of both sets.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Active:     cloneRecords(s.active),
		Historical: cloneRecords(s.historical),
		Token:      s.token,
		Generation: s.generation,
		LastSync:   s.lastSync,
	}
}

// Token returns the reference fingerprint.
func (s *State) Token() Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Generation increments on every published change.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// LastSync returns when the last successful sync finished, changed or not.
func (s *State) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Replace swaps both sets wholesale and adopts token as the new reference.
func (s *State) Replace(active, historical []models.Withdrawal, token Token, at time.Time) {
	s.mu.Lock()
	s.active = cloneRecords(active)
	s.historical = cloneRecords(historical)
	s.token = token
	s.lastSync = at
	s.generation++
	s.mu.Unlock()

	s.notify()
}

// Touch records a successful but unchanged sync without publishing.
func (s *State) Touch(at time.Time) {
	s.mu.Lock()
	s.lastSync = at
	s.mu.Unlock()
}

// FindActive returns the active record created at createdAt.
func (s *State) FindActive(createdAt int64) (models.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.active {
		if w.CreatedAt == createdAt {
			return w, nil
		}
	}
	return models.Withdrawal{}, fmt.Errorf("%w: %d", models.ErrRecordNotFound, createdAt)
}

// Find returns the record created at createdAt from either set.
func (s *State) Find(createdAt int64) (models.Withdrawal, error) {
	if w, err := s.FindActive(createdAt); err == nil {
		return w, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.historical {
		if w.CreatedAt == createdAt {
			return w, nil
		}
	}
	return models.Withdrawal{}, fmt.Errorf("%w: %d", models.ErrRecordNotFound, createdAt)
}

// ApplyStatus is the optimistic local update after a confirmed status change.
// It is overwritten by the next changed snapshot.
func (s *State) ApplyStatus(createdAt int64, status models.Status, responsible string) error {
	s.mu.Lock()
	found := false
	for i := range s.active {
		if s.active[i].CreatedAt == createdAt {
			s.active[i].Status = status
			s.active[i].Responsible = responsible
			found = true
			break
		}
	}
	if found {
		s.generation++
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %d", models.ErrRecordNotFound, createdAt)
	}
	s.notify()
	return nil
}

// InsertOptimistic adds a locally registered record ahead of store confirmation.
func (s *State) InsertOptimistic(w models.Withdrawal) {
	w.ID = ""
	w.Pending = true

	s.mu.Lock()
	s.active = append(s.active, w)
	s.generation++
	s.mu.Unlock()

	s.notify()
}

func (s *State) notify() {
	s.listenersMu.RLock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

func cloneRecords(in []models.Withdrawal) []models.Withdrawal {
	if in == nil {
		return nil
	}
	out := make([]models.Withdrawal, len(in))
	copy(out, in)
	return out
}
