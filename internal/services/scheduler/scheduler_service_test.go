package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
	"github.com/ternarybob/portico/internal/services/events"
	"github.com/ternarybob/portico/internal/services/reconcile"
)

type fakeSyncer struct {
	calls  atomic.Int32
	result reconcile.SyncResult
	err    error
	block  chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context) (reconcile.SyncResult, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return reconcile.SyncFailed, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeNotifier struct{ calls atomic.Int32 }

func (f *fakeNotifier) Process(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 0, nil
}

type fakeRanking struct{ calls atomic.Int32 }

func (f *fakeRanking) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

type recordingObserver struct {
	mu   sync.Mutex
	runs []string
}

func (o *recordingObserver) ObserveRun(task, result string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, task+":"+result)
}

func (o *recordingObserver) seen() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.runs...)
}

func newTestService(t *testing.T, syncer *fakeSyncer, bus interfaces.EventService) (*Service, *fakeNotifier, *fakeRanking, *recordingObserver) {
	t.Helper()
	config := common.NewDefaultConfig().Sync
	notifier := &fakeNotifier{}
	ranking := &fakeRanking{}
	observer := &recordingObserver{}
	svc := NewService(syncer, notifier, ranking, bus, observer, &config, arbor.NewLogger())
	t.Cleanup(svc.Stop)
	return svc, notifier, ranking, observer
}

func TestService_PauseGatesAllTasks(t *testing.T) {
	syncer := &fakeSyncer{result: reconcile.SyncUnchanged}
	bus := events.NewService(arbor.NewLogger())
	var pauses []bool
	require.NoError(t, bus.Subscribe(interfaces.EventPauseChanged, func(ctx context.Context, event interfaces.Event) error {
		pauses = append(pauses, event.Payload.(bool))
		return nil
	}))

	svc, notifier, _, observer := newTestService(t, syncer, bus)
	ctx := context.Background()

	svc.Pause()
	svc.Pause()
	assert.True(t, svc.IsPaused())

	require.NoError(t, svc.TriggerSync(ctx))
	require.NoError(t, svc.TriggerNotifications(ctx))
	assert.Equal(t, int32(0), syncer.calls.Load())
	assert.Equal(t, int32(0), notifier.calls.Load())

	statuses := svc.GetAllTaskStatuses()
	assert.Equal(t, int64(1), statuses[TaskSync].Skipped)
	assert.Equal(t, int64(0), statuses[TaskSync].Runs)

	svc.Resume()
	require.NoError(t, svc.TriggerSync(ctx))
	assert.Equal(t, int32(1), syncer.calls.Load())

	assert.Equal(t, []bool{true, false}, pauses)
	assert.Equal(t, []string{"sync:paused", "notifications:paused", "sync:unchanged"}, observer.seen())
}

func TestService_TriggerSyncRecordsFailure(t *testing.T) {
	syncer := &fakeSyncer{result: reconcile.SyncFailed, err: models.ErrNetworkFailure}
	svc, _, _, observer := newTestService(t, syncer, nil)

	err := svc.TriggerSync(context.Background())
	assert.True(t, errors.Is(err, models.ErrNetworkFailure))

	status := svc.GetAllTaskStatuses()[TaskSync]
	assert.Equal(t, int64(1), status.Runs)
	assert.Contains(t, status.LastError, "network failure")
	require.NotNil(t, status.LastRun)
	assert.False(t, status.IsRunning)
	assert.Equal(t, []string{"sync:failed"}, observer.seen())

	syncer.err = nil
	syncer.result = reconcile.SyncChanged
	require.NoError(t, svc.TriggerSync(context.Background()))
	assert.Empty(t, svc.GetAllTaskStatuses()[TaskSync].LastError)
}

func TestService_StartRunsInitialSyncAndStopIsIdempotent(t *testing.T) {
	syncer := &fakeSyncer{result: reconcile.SyncChanged}
	svc, _, ranking, _ := newTestService(t, syncer, nil)

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start())

	assert.Eventually(t, func() bool {
		return syncer.calls.Load() >= 1 && ranking.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	statuses := svc.GetAllTaskStatuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, "@every 5s", statuses[TaskSync].Schedule)
	assert.Equal(t, "@every 10s", statuses[TaskNotifications].Schedule)
	assert.NotNil(t, statuses[TaskSync].NextRun)

	svc.Stop()
	svc.Stop()
}

func TestService_RestartAfterStop(t *testing.T) {
	syncer := &liveContextSyncer{}
	config := common.NewDefaultConfig().Sync
	svc := NewService(syncer, &fakeNotifier{}, &fakeRanking{}, nil, nil, &config, arbor.NewLogger())
	t.Cleanup(svc.Stop)

	require.NoError(t, svc.Start())
	assert.Len(t, svc.cron.Entries(), 3)
	assert.Eventually(t, func() bool { return syncer.runs() == 1 }, 2*time.Second, 10*time.Millisecond)

	svc.Stop()
	assert.Empty(t, svc.cron.Entries())
	for _, status := range svc.GetAllTaskStatuses() {
		assert.Nil(t, status.NextRun, status.Name)
	}

	require.NoError(t, svc.Start())
	assert.Len(t, svc.cron.Entries(), 3)
	assert.Eventually(t, func() bool { return syncer.runs() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, syncer.cancelled(), "runs after a restart must not see the old cancelled context")
	assert.NotNil(t, svc.GetAllTaskStatuses()[TaskSync].NextRun)
}

// liveContextSyncer counts runs and how many of them saw an already-cancelled context
type liveContextSyncer struct {
	mu    sync.Mutex
	calls int
	stale int
}

func (l *liveContextSyncer) Sync(ctx context.Context) (reconcile.SyncResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if ctx.Err() != nil {
		l.stale++
		return reconcile.SyncFailed, ctx.Err()
	}
	return reconcile.SyncUnchanged, nil
}

func (l *liveContextSyncer) runs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *liveContextSyncer) cancelled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stale
}

func TestService_StopCancelsInFlightRun(t *testing.T) {
	syncer := &fakeSyncer{result: reconcile.SyncChanged, block: make(chan struct{})}
	svc, _, _, _ := newTestService(t, syncer, nil)

	require.NoError(t, svc.Start())
	assert.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestFormatPairs(t *testing.T) {
	assert.Equal(t, "entry=3 now=x", formatPairs([]interface{}{"entry", 3, "now", "x", "dangling"}))
	assert.Equal(t, "", formatPairs(nil))
}
