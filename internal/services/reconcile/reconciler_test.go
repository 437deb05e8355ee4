package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/events"
	"github.com/ternarybob/portico/internal/storetest"
)

func newTestReconciler(t *testing.T) (*Reconciler, *storetest.Store, interfaces.EventService) {
	t.Helper()
	logger := arbor.NewLogger()
	store := storetest.New()
	bus := events.NewService(logger)
	t.Cleanup(func() { _ = bus.Close() })
	return NewReconciler(store, NewState(), bus, logger), store, bus
}

func TestReconciler_IdempotentRepoll(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.Seed(storetest.Row{Name: "Ana Pérez", Course: "3A", Reason: "Médico", Status: "ESPERA", Timestamp: 1700000000000})

	notified := 0
	r.State().OnChange(func() { notified++ })

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncChanged, result)
	gen := r.State().Generation()

	result, err = r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncUnchanged, result)
	assert.Equal(t, gen, r.State().Generation())
	assert.Equal(t, 1, notified)
	assert.Equal(t, 2, store.Calls("read"))
}

func TestReconciler_EmptyStoreStillPublishes(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncChanged, result)
	assert.Equal(t, uint64(1), r.State().Generation())
	assert.False(t, r.State().Token().IsZero())
}

func TestReconciler_FailuresKeepPriorSets(t *testing.T) {
	r, store, bus := newTestReconciler(t)

	failures := make(chan interfaces.SyncFailure, 4)
	require.NoError(t, bus.Subscribe(interfaces.EventSyncFailed, func(ctx context.Context, e interfaces.Event) error {
		failures <- e.Payload.(interfaces.SyncFailure)
		return nil
	}))

	store.Seed(storetest.Row{Name: "Ana", Status: "ESPERA", Timestamp: 1})
	_, err := r.Sync(context.Background())
	require.NoError(t, err)
	before := r.State().Snapshot()

	tests := []struct {
		name     string
		setup    func()
		wantErr  error
		wantKind string
	}{
		{
			name:     "network failure",
			setup:    func() { store.SetErr("read", fmt.Errorf("%w: timeout", models.ErrNetworkFailure)) },
			wantErr:  models.ErrNetworkFailure,
			wantKind: "network",
		},
		{
			name: "malformed payload",
			setup: func() {
				store.SetErr("read", nil)
				store.RawRead = []byte(`{"error":"Service invoked too many times"}`)
			},
			wantErr:  models.ErrMalformedSnapshot,
			wantKind: "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			result, err := r.Sync(context.Background())
			assert.Equal(t, SyncFailed, result)
			assert.True(t, errors.Is(err, tt.wantErr))

			after := r.State().Snapshot()
			assert.Equal(t, before.Active, after.Active)
			assert.Equal(t, before.Token, after.Token)
			assert.Equal(t, before.Generation, after.Generation)

			select {
			case f := <-failures:
				assert.Equal(t, "sync", f.Task)
				assert.Equal(t, tt.wantKind, f.Kind)
			case <-time.After(2 * time.Second):
				t.Fatal("no sync_failed event")
			}
		})
	}

	// Recovery: the same valid payload as before is processed again because the
	// malformed token was never adopted
	store.RawRead = nil
	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncUnchanged, result)
}

func TestReconciler_SerialisesCycles(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.Seed(storetest.Row{Name: "Ana", Timestamp: 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Sync(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, store.Calls("read"))
	assert.Equal(t, uint64(1), r.State().Generation())
}

func TestState_OptimisticUpdates(t *testing.T) {
	s := NewState()
	s.Replace([]models.Withdrawal{{Name: "Ana", CreatedAt: 1, Status: models.StatusWaiting}}, nil, Token("t"), time.Now())

	require.NoError(t, s.ApplyStatus(1, models.StatusSearching, "María"))
	w, err := s.FindActive(1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSearching, w.Status)
	assert.Equal(t, "María", w.Responsible)

	assert.True(t, errors.Is(s.ApplyStatus(99, models.StatusSearching, "María"), models.ErrRecordNotFound))

	s.InsertOptimistic(models.Withdrawal{ID: "x", Name: "Luis", CreatedAt: 2, Status: models.StatusWaiting})
	w, err = s.FindActive(2)
	require.NoError(t, err)
	assert.Equal(t, "", w.ID)
	assert.True(t, w.Pending)
	assert.Equal(t, uint64(3), s.Generation())

	// Snapshots are copies
	snap := s.Snapshot()
	snap.Active[0].Name = "changed"
	w, _ = s.FindActive(1)
	assert.Equal(t, "Ana", w.Name)

	_, err = s.Find(404)
	assert.True(t, errors.Is(err, models.ErrRecordNotFound))
}

type memoryCache struct {
	mu       sync.Mutex
	snapshot *interfaces.CachedSnapshot
	saves    int
}

func (c *memoryCache) SaveSnapshot(ctx context.Context, snapshot interfaces.CachedSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.snapshot = &snapshot
	return nil
}

func (c *memoryCache) LoadSnapshot(ctx context.Context) (*interfaces.CachedSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil, interfaces.ErrNoSnapshot
	}
	out := *c.snapshot
	return &out, nil
}

func TestReconciler_CacheWarmsAndIsReplaced(t *testing.T) {
	cache := &memoryCache{}
	ctx := context.Background()

	first, store, _ := newTestReconciler(t)
	first.SetCache(cache)
	require.NoError(t, first.Warm(ctx))
	assert.Equal(t, uint64(0), first.State().Generation())

	store.Seed(storetest.Row{Name: "Ana Pérez", Course: "3A", Reason: "Médico", Timestamp: 1700000000000})
	_, err := first.Sync(ctx)
	require.NoError(t, err)
	_, err = first.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.saves)

	second, store2, _ := newTestReconciler(t)
	second.SetCache(cache)
	require.NoError(t, second.Warm(ctx))

	warmed := second.State().Snapshot()
	require.Len(t, warmed.Active, 1)
	assert.Equal(t, "Ana Pérez", warmed.Active[0].Name)
	assert.True(t, warmed.Token.IsZero())

	// Same payload on the store still replaces the warmed sets once
	store2.Seed(storetest.Row{Name: "Ana Pérez", Course: "3A", Reason: "Médico", Timestamp: 1700000000000})
	result, err := second.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncChanged, result)
	assert.False(t, second.State().Token().IsZero())
}

func TestReconciler_WarmRejectsCorruptCache(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	r.SetCache(&memoryCache{snapshot: &interfaces.CachedSnapshot{Raw: []byte(`{"oops":true}`)}})

	err := r.Warm(context.Background())
	assert.True(t, errors.Is(err, models.ErrMalformedSnapshot))
	assert.Empty(t, r.State().Snapshot().Active)
}
