package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Desk view and withdrawals
	mux.HandleFunc("/api/desk", s.app.DeskHandler.ViewHandler)              // GET - full desk view
	mux.HandleFunc("/api/desk/monthly", s.app.DeskHandler.MonthlyHandler)   // GET - this month from local history
	mux.HandleFunc("/api/withdrawals", s.app.DeskHandler.RegisterHandler)   // POST - register
	mux.HandleFunc("/api/withdrawals/", s.app.DeskHandler.WithdrawalRoutes) // /{createdAt}[/advance|complete|discard|share]

	// API routes - Session and preferences
	mux.HandleFunc("/api/session/operator", s.app.SessionHandler.OperatorHandler) // GET/PUT/DELETE
	mux.HandleFunc("/api/users", s.app.SessionHandler.RosterHandler)              // GET (list), POST (register)
	mux.HandleFunc("/api/preferences/theme", s.app.SessionHandler.ThemeHandler)   // GET/PUT
	mux.HandleFunc("/api/preferences", s.app.KVHandler.ListKVHandler)             // GET
	mux.HandleFunc("/api/preferences/", s.app.KVHandler.KeyHandler)               // GET/DELETE /{key}

	// API routes - Polling control
	mux.HandleFunc("/api/sync/pause", s.app.SchedulerHandler.PauseHandler)
	mux.HandleFunc("/api/sync/resume", s.app.SchedulerHandler.ResumeHandler)
	mux.HandleFunc("/api/sync/now", s.app.SchedulerHandler.SyncNowHandler)
	mux.HandleFunc("/api/sync/notifications", s.app.SchedulerHandler.NotificationsNowHandler)
	mux.HandleFunc("/api/sync/status", s.app.SchedulerHandler.StatusHandler)

	// API routes - Statistics and report
	mux.HandleFunc("/api/ranking", s.app.StatsHandler.RankingHandler)
	mux.HandleFunc("/api/stats/monthly", s.app.StatsHandler.MonthlyStatsHandler)
	mux.HandleFunc("/api/report.pdf", s.app.ReportHandler.PDFHandler)

	// System routes
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/metrics", methods(MethodRouter{
		http.MethodGet: promhttp.HandlerFor(s.app.Exporter.Registry(), promhttp.HandlerOpts{}).ServeHTTP,
	}))

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
