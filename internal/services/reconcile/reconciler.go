package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// SyncResult is the outcome of one sync cycle.
type SyncResult string

const (
	SyncChanged   SyncResult = "changed"
	SyncUnchanged SyncResult = "unchanged"
	SyncFailed    SyncResult = "failed"
)

// Reconciler runs the fetch, fingerprint, partition, publish cycle against the store.
// Cycles are serialised, so at most one is in flight whichever caller started it.
type Reconciler struct {
	store  interfaces.RemoteStore
	state  *State
	events interfaces.EventService
	cache  interfaces.SnapshotStorage
	logger arbor.ILogger
	now    func() time.Time

	mu sync.Mutex
}

// NewReconciler creates a reconciler writing into state.
func NewReconciler(store interfaces.RemoteStore, state *State, events interfaces.EventService, logger arbor.ILogger) *Reconciler {
	return &Reconciler{
		store:  store,
		state:  state,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// SetCache enables persisting every changed snapshot.
func (r *Reconciler) SetCache(cache interfaces.SnapshotStorage) {
	r.cache = cache
}

// State returns the container the reconciler writes to.
func (r *Reconciler) State() *State {
	return r.state
}

// Sync performs one cycle. An unchanged fingerprint ends the cycle with no downstream work.
// On any failure the prior sets stay in place and the reference token is not advanced.
func (r *Reconciler) Sync(ctx context.Context) (SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()

	raw, err := r.store.Read(ctx)
	if err != nil {
		r.fail(ctx, err)
		return SyncFailed, err
	}

	token := Fingerprint(raw)
	if !HasChanged(r.state.Token(), token) {
		r.state.Touch(start)
		return SyncUnchanged, nil
	}

	active, historical, err := Partition(raw)
	if err != nil {
		r.fail(ctx, err)
		return SyncFailed, err
	}

	r.state.Replace(active, historical, token, start)
	r.persist(ctx, raw, len(active)+len(historical), start)

	r.logger.Debug().
		Str("fingerprint", string(token)).
		Int("active", len(active)).
		Int("historical", len(historical)).
		Msg("Desk snapshot replaced")

	return SyncChanged, nil
}

// Warm loads the cached snapshot into an empty state. The reference token stays zero
// so the first successful poll always replaces the warmed sets.
func (r *Reconciler) Warm(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.Token().IsZero() {
		return nil
	}

	cached, err := r.cache.LoadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, interfaces.ErrNoSnapshot) {
			return nil
		}
		return err
	}

	active, historical, err := Partition(cached.Raw)
	if err != nil {
		return fmt.Errorf("cached snapshot: %w", err)
	}

	r.state.Replace(active, historical, "", cached.FetchedAt)

	r.logger.Info().
		Int("active", len(active)).
		Int("historical", len(historical)).
		Str("fetched_at", cached.FetchedAt.Format(time.RFC3339)).
		Msg("Desk warmed from cached snapshot")
	return nil
}

func (r *Reconciler) persist(ctx context.Context, raw []byte, records int, at time.Time) {
	if r.cache == nil {
		return
	}
	snapshot := interfaces.CachedSnapshot{Raw: raw, Records: records, FetchedAt: at}
	if err := r.cache.SaveSnapshot(ctx, snapshot); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to cache snapshot")
	}
}

func (r *Reconciler) fail(ctx context.Context, err error) {
	r.logger.Warn().Err(err).Msg("Sync failed, keeping previous snapshot")

	if r.events == nil {
		return
	}
	failure := interfaces.SyncFailure{
		Task:    "sync",
		Kind:    models.FailureKind(err),
		Message: fmt.Sprintf("Error al sincronizar con el servidor: %v", err),
	}
	if pubErr := r.events.Publish(ctx, interfaces.Event{Type: interfaces.EventSyncFailed, Payload: failure}); pubErr != nil {
		r.logger.Warn().Err(pubErr).Msg("Failed to publish sync failure")
	}
}
