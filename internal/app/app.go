package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/handlers"
	"github.com/ternarybob/portico/internal/httpclient"
	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/services/desk"
	"github.com/ternarybob/portico/internal/services/events"
	"github.com/ternarybob/portico/internal/services/kv"
	"github.com/ternarybob/portico/internal/services/lifecycle"
	"github.com/ternarybob/portico/internal/services/metrics"
	"github.com/ternarybob/portico/internal/services/notifications"
	"github.com/ternarybob/portico/internal/services/pdf"
	"github.com/ternarybob/portico/internal/services/ranking"
	"github.com/ternarybob/portico/internal/services/reconcile"
	"github.com/ternarybob/portico/internal/services/report"
	"github.com/ternarybob/portico/internal/services/scheduler"
	"github.com/ternarybob/portico/internal/services/session"
	"github.com/ternarybob/portico/internal/storage"
)

// startupTimeout bounds the cache warm-up and operator restore done in New
const startupTimeout = 20 * time.Second

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	Store          interfaces.RemoteStore

	// Desk core
	State      *reconcile.State
	Reconciler *reconcile.Reconciler
	Machine    *lifecycle.Machine
	Differ     *notifications.Differ
	Ranking    *ranking.Service
	Scheduler  *scheduler.Service
	Desk       *desk.Service
	Session    *session.Service
	KVService  *kv.Service

	// Reporting and observability
	Exporter      *metrics.Exporter
	PDFService    *pdf.Service
	ReportService *report.Service

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	DeskHandler      *handlers.DeskHandler
	SessionHandler   *handlers.SessionHandler
	SchedulerHandler *handlers.SchedulerHandler
	StatsHandler     *handlers.StatsHandler
	ReportHandler    *handlers.ReportHandler
	KVHandler        *handlers.KVHandler
	WSHandler        *handlers.WebSocketHandler
}

// New initializes the application with all dependencies. Periodic tasks are not
// running until Start is called.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("store", cfg.Store.URL).
		Str("timezone", cfg.Desk.Timezone).
		Str("sync_interval", cfg.Sync.IntervalDuration().String()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices builds the desk core in dependency order. The scheduler is the
// re-sync target of the lifecycle machine and the notification differ, so both
// receive it through SetResyncer once it exists.
func (a *App) initServices() error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	a.Store = httpclient.NewStoreClient(
		a.Config.Store.URL,
		a.Logger,
		httpclient.WithTimeout(a.Config.Store.RequestTimeoutDuration()),
		httpclient.WithUserAgent(a.Config.Store.UserAgent),
		httpclient.WithMinInterval(a.Config.Store.MinIntervalDuration(), a.Config.Store.Burst),
	)

	a.KVService = kv.NewService(a.StorageManager.KeyValueStorage(), a.Logger)
	a.Session = session.NewService(a.KVService, a.Store, a.EventService, a.Logger)

	a.State = reconcile.NewState()
	a.Reconciler = reconcile.NewReconciler(a.Store, a.State, a.EventService, a.Logger)
	a.Reconciler.SetCache(a.StorageManager.SnapshotStorage())

	a.Machine = lifecycle.NewMachine(a.Store, a.State, a.Session, nil, a.Config, a.Logger)
	a.Differ = notifications.NewDiffer(a.Store, a.EventService, a.Config, a.Logger)
	a.Ranking = ranking.NewService(a.Store, a.EventService, a.Logger)

	a.Exporter = metrics.NewExporter()
	if err := a.Exporter.Subscribe(a.EventService); err != nil {
		return fmt.Errorf("failed to subscribe metrics exporter: %w", err)
	}

	a.Scheduler = scheduler.NewService(
		a.Reconciler,
		a.Differ,
		a.Ranking,
		a.EventService,
		a.Exporter,
		&a.Config.Sync,
		a.Logger,
	)
	a.Machine.SetResyncer(a.Scheduler)
	a.Differ.SetResyncer(a.Scheduler)

	a.Desk = desk.NewService(a.State, a.EventService, a.Exporter, metrics.OptionsFromConfig(a.Config), a.Logger)
	if err := a.Desk.Start(); err != nil {
		return fmt.Errorf("failed to start desk view: %w", err)
	}

	// A missing or unreadable cache only costs the warm start
	if err := a.Reconciler.Warm(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to warm desk from cached snapshot")
	}

	if err := a.Session.Restore(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to restore operator")
	}

	a.PDFService = pdf.NewService(a.Config.Report.Institution, a.Logger)
	a.ReportService = report.NewService(a.State, a.Store, a.PDFService, a.Config, a.Logger)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.State, a.Logger)
	a.DeskHandler = handlers.NewDeskHandler(a.Desk, a.State, a.Machine, a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(a.Session, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.Scheduler, a.Logger)
	a.StatsHandler = handlers.NewStatsHandler(a.Ranking, a.Store, a.Logger)
	a.ReportHandler = handlers.NewReportHandler(a.ReportService, a.Logger)
	a.KVHandler = handlers.NewKVHandler(a.KVService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Desk, a.Logger, &a.Config.WebSocket)
}

// Start begins the periodic sync, notification and ranking tasks
func (a *App) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
		a.Logger.Info().Msg("Scheduler stopped")
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
