package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/services/reconcile"
)

// Task names
const (
	TaskSync          = "sync"
	TaskNotifications = "notifications"
	TaskRanking       = "ranking"
)

// Run results reported to the RunObserver besides the sync results
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultSkipped = "paused"
)

// SyncRunner performs one reconciliation cycle
type SyncRunner interface {
	Sync(ctx context.Context) (reconcile.SyncResult, error)
}

// NotificationRunner delivers new notifications
type NotificationRunner interface {
	Process(ctx context.Context) (int, error)
}

// RankingRunner refreshes the cached ranking
type RankingRunner interface {
	Refresh(ctx context.Context) error
}

// taskEntry represents a registered task with its run bookkeeping
type taskEntry struct {
	name      string
	schedule  string
	run       func(ctx context.Context) (string, error)
	cronID    cron.EntryID
	lastRun   *time.Time
	inFlight  int
	runs      int64
	skipped   int64
	lastError string
}

// Service implements SchedulerService. All tasks share one pause flag; a paused
// tick does no work but its timer keeps running.
type Service struct {
	syncer        SyncRunner
	notifications NotificationRunner
	ranking       RankingRunner
	events        interfaces.EventService
	observer      interfaces.RunObserver
	config        *common.SyncConfig
	logger        arbor.ILogger

	cron   *cron.Cron
	paused atomic.Bool

	lifecycle sync.Mutex // serialises Start and Stop
	mu        sync.Mutex // protects tasks, running and ctx
	tasks   map[string]*taskEntry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a scheduler. ranking and observer may be nil.
func NewService(
	syncer SyncRunner,
	notifications NotificationRunner,
	ranking RankingRunner,
	events interfaces.EventService,
	observer interfaces.RunObserver,
	config *common.SyncConfig,
	logger arbor.ILogger,
) *Service {
	adapter := cronLogger{logger: logger}
	s := &Service{
		syncer:        syncer,
		notifications: notifications,
		ranking:       ranking,
		events:        events,
		observer:      observer,
		config:        config,
		logger:        logger,
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		tasks: make(map[string]*taskEntry),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.tasks[TaskSync] = &taskEntry{
		name:     TaskSync,
		schedule: every(config.IntervalDuration()),
		run: func(ctx context.Context) (string, error) {
			result, err := s.syncer.Sync(ctx)
			return string(result), err
		},
	}
	s.tasks[TaskNotifications] = &taskEntry{
		name:     TaskNotifications,
		schedule: every(config.NotificationIntervalDuration()),
		run: func(ctx context.Context) (string, error) {
			if _, err := s.notifications.Process(ctx); err != nil {
				return resultFailed, err
			}
			return resultOK, nil
		},
	}
	if ranking != nil {
		s.tasks[TaskRanking] = &taskEntry{
			name:     TaskRanking,
			schedule: every(config.RankingIntervalDuration()),
			run: func(ctx context.Context) (string, error) {
				if err := s.ranking.Refresh(ctx); err != nil {
					return resultFailed, err
				}
				return resultOK, nil
			},
		}
	}

	return s
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// Start registers every task with cron, starts it and runs an initial sync and
// ranking refresh in the background. A stopped scheduler can be started again.
func (s *Service) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	ctx := s.ctx

	for name, entry := range s.tasks {
		name := name
		id, err := s.cron.AddFunc(entry.schedule, func() {
			_ = s.execute(ctx, name)
		})
		if err != nil {
			s.removeEntries()
			return fmt.Errorf("failed to add task %s: %w", name, err)
		}
		entry.cronID = id

		s.logger.Info().
			Str("task", name).
			Str("schedule", entry.schedule).
			Msg("Task registered")
	}

	s.cron.Start()
	s.running = true

	common.SafeGo(s.logger, "initial-sync", func() {
		_ = s.execute(ctx, TaskSync)
		if s.ranking != nil {
			_ = s.execute(ctx, TaskRanking)
		}
	})

	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop cancels in-flight store calls, waits for running tasks and unregisters every
// task. Safe to call more than once.
func (s *Service) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.removeEntries()
	s.mu.Unlock()

	s.logger.Info().Msg("Scheduler stopped")
}

// removeEntries drops every registered cron entry. Caller holds mu.
func (s *Service) removeEntries() {
	for _, entry := range s.tasks {
		if entry.cronID != 0 {
			s.cron.Remove(entry.cronID)
			entry.cronID = 0
		}
	}
}

// Pause stops every tick body from doing work
func (s *Service) Pause() {
	if s.paused.CompareAndSwap(false, true) {
		s.logger.Info().Msg("Desk sync paused")
		s.publishPause(true)
	}
}

// Resume re-enables tick bodies
func (s *Service) Resume() {
	if s.paused.CompareAndSwap(true, false) {
		s.logger.Info().Msg("Desk sync resumed")
		s.publishPause(false)
	}
}

// IsPaused reports the pause flag
func (s *Service) IsPaused() bool {
	return s.paused.Load()
}

// TriggerSync runs a sync now. While paused it does nothing.
func (s *Service) TriggerSync(ctx context.Context) error {
	return s.execute(ctx, TaskSync)
}

// TriggerNotifications runs a notification check now. While paused it does nothing.
func (s *Service) TriggerNotifications(ctx context.Context) error {
	return s.execute(ctx, TaskNotifications)
}

// GetAllTaskStatuses returns a snapshot of every task
func (s *Service) GetAllTaskStatuses() map[string]*interfaces.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[string]*interfaces.TaskStatus, len(s.tasks))
	for name, entry := range s.tasks {
		status := &interfaces.TaskStatus{
			Name:      name,
			Schedule:  entry.schedule,
			IsRunning: entry.inFlight > 0,
			Runs:      entry.runs,
			Skipped:   entry.skipped,
			LastError: entry.lastError,
		}
		if entry.lastRun != nil {
			lastRun := *entry.lastRun
			status.LastRun = &lastRun
		}
		if s.running && entry.cronID != 0 {
			if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
				status.NextRun = &next
			}
		}
		statuses[name] = status
	}
	return statuses
}

// execute runs one task body, honouring the pause flag, and records the outcome
func (s *Service) execute(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, exists := s.tasks[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("task %s not registered", name)
	}
	if s.paused.Load() {
		entry.skipped++
		s.mu.Unlock()
		s.observe(name, resultSkipped, 0)
		return nil
	}
	entry.inFlight++
	run := entry.run
	s.mu.Unlock()

	start := time.Now()
	result, err := run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	entry.inFlight--
	entry.runs++
	entry.lastRun = &start
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	s.observe(name, result, elapsed)

	if err != nil {
		s.logger.Debug().Str("task", name).Err(err).Dur("duration", elapsed).Msg("Task run failed")
		return err
	}
	s.logger.Trace().Str("task", name).Str("result", result).Dur("duration", elapsed).Msg("Task run completed")
	return nil
}

func (s *Service) observe(task, result string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveRun(task, result, d)
	}
}

func (s *Service) publishPause(paused bool) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{Type: interfaces.EventPauseChanged, Payload: paused}
	if err := s.events.PublishSync(context.Background(), event); err != nil {
		s.logger.Warn().Err(err).Msg("Pause change handlers failed")
	}
}
