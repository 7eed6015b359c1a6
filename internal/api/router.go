package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veldrane/driftwood/internal/analysis"
	"github.com/veldrane/driftwood/internal/api/middleware"
	"github.com/veldrane/driftwood/internal/auth"
	"github.com/veldrane/driftwood/internal/backup"
	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/maintenance"
	"github.com/veldrane/driftwood/internal/monitor"
	"github.com/veldrane/driftwood/internal/push"
	"github.com/veldrane/driftwood/internal/settings"
	"github.com/veldrane/driftwood/internal/settingsio"
	"github.com/veldrane/driftwood/internal/source"
	"github.com/veldrane/driftwood/internal/task"
	"github.com/veldrane/driftwood/internal/webhook"
	"github.com/veldrane/driftwood/internal/wishlist"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	AuthService         *auth.Service
	Scheduler           *task.Scheduler
	History             *task.History
	Monitor             *monitor.Monitor
	SourceService       *source.Service
	LibraryService      *library.Service
	ItemService         *item.Service
	ConnectionService   *connection.Service
	CompletenessService *analysis.Service
	WishlistService     *wishlist.Service
	WebhookService      *webhook.Service
	WebhookDispatcher   *webhook.Dispatcher
	SettingsService     *settings.Service
	SettingsIO          *settingsio.Service
	BackupService       *backup.Service
	MaintenanceService  *maintenance.Service
	Broker              *push.Broker
	DB                  *sql.DB
	Logger              *slog.Logger
	BasePath            string
	RateLimiter         *middleware.LoginRateLimiter
}

// Router sets up all HTTP routes for the application.
type Router struct {
	authService         *auth.Service
	scheduler           *task.Scheduler
	history             *task.History
	monitor             *monitor.Monitor
	sourceService       *source.Service
	libraryService      *library.Service
	itemService         *item.Service
	connectionService   *connection.Service
	completenessService *analysis.Service
	wishlistService     *wishlist.Service
	webhookService      *webhook.Service
	webhookDispatcher   *webhook.Dispatcher
	settingsService     *settings.Service
	settingsIO          *settingsio.Service
	backupService       *backup.Service
	maintenanceService  *maintenance.Service
	broker              *push.Broker
	db                  *sql.DB
	logger              *slog.Logger
	basePath            string
	rateLimiter         *middleware.LoginRateLimiter
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		authService:         deps.AuthService,
		scheduler:           deps.Scheduler,
		history:             deps.History,
		monitor:             deps.Monitor,
		sourceService:       deps.SourceService,
		libraryService:      deps.LibraryService,
		itemService:         deps.ItemService,
		connectionService:   deps.ConnectionService,
		completenessService: deps.CompletenessService,
		wishlistService:     deps.WishlistService,
		webhookService:      deps.WebhookService,
		webhookDispatcher:   deps.WebhookDispatcher,
		settingsService:     deps.SettingsService,
		settingsIO:          deps.SettingsIO,
		backupService:       deps.BackupService,
		maintenanceService:  deps.MaintenanceService,
		broker:              deps.Broker,
		db:                  deps.DB,
		logger:              deps.Logger,
		basePath:            deps.BasePath,
		rateLimiter:         deps.RateLimiter,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	authMw := middleware.Auth(r.authService)
	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes (no auth)
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)
	mux.HandleFunc("POST "+bp+"/api/v1/webhooks/inbound/lidarr", r.handleLidarrWebhook)
	mux.Handle("GET "+bp+"/metrics", promhttp.Handler())

	// Login and first-run setup are rate-limited by client IP.
	login := http.HandlerFunc(r.handleLogin)
	setup := http.HandlerFunc(r.handleSetup)
	if r.rateLimiter != nil {
		mux.Handle("POST "+bp+"/api/v1/auth/login", r.rateLimiter.Middleware(login))
		mux.Handle("POST "+bp+"/api/v1/auth/setup", r.rateLimiter.Middleware(setup))
	} else {
		mux.Handle("POST "+bp+"/api/v1/auth/login", login)
		mux.Handle("POST "+bp+"/api/v1/auth/setup", setup)
	}

	// Protected routes (auth required)
	mux.HandleFunc("POST "+bp+"/api/v1/auth/logout", wrapAuth(r.handleLogout, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/auth/me", wrapAuth(r.handleMe, authMw))

	// Live event stream
	if r.broker != nil {
		mux.Handle("GET "+bp+"/api/v1/events", authMw(r.broker))
	}

	// Task queue
	mux.HandleFunc("GET "+bp+"/api/v1/tasks", wrapAuth(r.handleTaskState, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/tasks", wrapAuth(r.handleEnqueueTask, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/tasks/queue", wrapAuth(r.handleReorderQueue, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/tasks/queue", wrapAuth(r.handleClearQueue, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/tasks/{id}", wrapAuth(r.handleRemoveTask, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/tasks/pause", wrapAuth(r.handlePauseQueue, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/tasks/resume", wrapAuth(r.handleResumeQueue, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/tasks/cancel", wrapAuth(r.handleCancelTask, authMw))

	// History
	mux.HandleFunc("GET "+bp+"/api/v1/history/tasks", wrapAuth(r.handleTaskHistory, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/history/tasks", wrapAuth(r.handleClearTaskHistory, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/history/monitoring", wrapAuth(r.handleMonitoringHistory, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/history/monitoring", wrapAuth(r.handleClearMonitoringHistory, authMw))

	// Monitor
	mux.HandleFunc("GET "+bp+"/api/v1/monitor/status", wrapAuth(r.handleMonitorStatus, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/monitor/config", wrapAuth(r.handleMonitorConfig, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/monitor/config", wrapAuth(r.handleMonitorSetConfig, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/monitor/start", wrapAuth(r.handleMonitorStart, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/monitor/stop", wrapAuth(r.handleMonitorStop, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/monitor/sources/{id}/check", wrapAuth(r.handleMonitorForceCheck, authMw))

	// Sources
	mux.HandleFunc("GET "+bp+"/api/v1/sources", wrapAuth(r.handleListSources, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/sources", wrapAuth(r.handleCreateSource, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/sources/{id}", wrapAuth(r.handleGetSource, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/sources/{id}", wrapAuth(r.handleUpdateSource, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/sources/{id}", wrapAuth(r.handleDeleteSource, authMw))

	// Libraries
	mux.HandleFunc("GET "+bp+"/api/v1/libraries", wrapAuth(r.handleListLibraries, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/libraries", wrapAuth(r.handleCreateLibrary, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/libraries/{id}", wrapAuth(r.handleGetLibrary, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/libraries/{id}", wrapAuth(r.handleUpdateLibrary, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/libraries/{id}", wrapAuth(r.handleDeleteLibrary, authMw))

	// Connections
	mux.HandleFunc("GET "+bp+"/api/v1/connections", wrapAuth(r.handleListConnections, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/connections", wrapAuth(r.handleCreateConnection, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/connections/{id}", wrapAuth(r.handleGetConnection, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/connections/{id}", wrapAuth(r.handleUpdateConnection, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/connections/{id}", wrapAuth(r.handleDeleteConnection, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/connections/{id}/test", wrapAuth(r.handleTestConnection, authMw))

	// Completeness
	mux.HandleFunc("GET "+bp+"/api/v1/completeness", wrapAuth(r.handleListCompleteness, authMw))

	// Wanted items
	mux.HandleFunc("GET "+bp+"/api/v1/wanted", wrapAuth(r.handleListWanted, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/wanted", wrapAuth(r.handleCreateWanted, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/wanted/{id}", wrapAuth(r.handleGetWanted, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/wanted/{id}", wrapAuth(r.handleUpdateWanted, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/wanted/{id}", wrapAuth(r.handleDeleteWanted, authMw))

	// Webhooks
	mux.HandleFunc("GET "+bp+"/api/v1/webhooks", wrapAuth(r.handleListWebhooks, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/webhooks", wrapAuth(r.handleCreateWebhook, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/webhooks/{id}", wrapAuth(r.handleGetWebhook, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/webhooks/{id}", wrapAuth(r.handleUpdateWebhook, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/webhooks/{id}", wrapAuth(r.handleDeleteWebhook, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/webhooks/{id}/test", wrapAuth(r.handleTestWebhook, authMw))

	// Settings
	mux.HandleFunc("GET "+bp+"/api/v1/settings", wrapAuth(r.handleGetSettings, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/settings", wrapAuth(r.handleUpdateSettings, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/settings/export", wrapAuth(r.handleSettingsExport, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/settings/import", wrapAuth(r.handleSettingsImport, authMw))

	// Backups
	mux.HandleFunc("GET "+bp+"/api/v1/settings/backup/history", wrapAuth(r.handleBackupHistory, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/settings/backup", wrapAuth(r.handleBackupCreate, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/settings/backup/prune", wrapAuth(r.handleBackupPrune, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/settings/backup/{filename}", wrapAuth(r.handleBackupDownload, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/settings/backup/{filename}", wrapAuth(r.handleBackupDelete, authMw))

	// Maintenance
	mux.HandleFunc("GET "+bp+"/api/v1/maintenance", wrapAuth(r.handleMaintenanceStatus, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/optimize", wrapAuth(r.handleMaintenanceOptimize, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/vacuum", wrapAuth(r.handleMaintenanceVacuum, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/prune", wrapAuth(r.handleMaintenancePrune, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/maintenance/schedule", wrapAuth(r.handleMaintenanceSchedule, authMw))

	handler := middleware.SecurityHeaders(mux)
	return middleware.Logging(r.logger)(handler)
}

// wrapAuth wraps a handler function with auth middleware.
func wrapAuth(fn http.HandlerFunc, authMw func(http.Handler) http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authMw(fn).ServeHTTP(w, r)
	}
}
