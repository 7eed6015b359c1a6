package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/veldrane/driftwood/internal/analysis"
	"github.com/veldrane/driftwood/internal/api"
	"github.com/veldrane/driftwood/internal/api/middleware"
	"github.com/veldrane/driftwood/internal/auth"
	"github.com/veldrane/driftwood/internal/backup"
	"github.com/veldrane/driftwood/internal/config"
	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/database"
	"github.com/veldrane/driftwood/internal/encryption"
	"github.com/veldrane/driftwood/internal/event"
	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/logging"
	"github.com/veldrane/driftwood/internal/maintenance"
	"github.com/veldrane/driftwood/internal/metrics"
	"github.com/veldrane/driftwood/internal/monitor"
	"github.com/veldrane/driftwood/internal/push"
	"github.com/veldrane/driftwood/internal/scan"
	"github.com/veldrane/driftwood/internal/settings"
	"github.com/veldrane/driftwood/internal/settingsio"
	"github.com/veldrane/driftwood/internal/source"
	"github.com/veldrane/driftwood/internal/task"
	"github.com/veldrane/driftwood/internal/version"
	"github.com/veldrane/driftwood/internal/webhook"
	"github.com/veldrane/driftwood/internal/wishlist"
)

func main() {
	// Handle subcommands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Println(version.String())
			return
		case "reset-credentials":
			if err := resetCredentials(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.New(cfg.Logging)
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	settingsService := settings.NewService(db)

	// Persisted logging settings override the config file once the
	// database is available.
	applyLoggingSettings(context.Background(), settingsService, logManager, cfg.Logging, logger)

	key, err := encryption.LoadKey(cfg.Encryption.Key, cfg.Encryption.KeyFile)
	if err != nil {
		return fmt.Errorf("resolving encryption key: %w", err)
	}
	encryptor, err := encryption.New(key)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	// Domain services
	authService := auth.NewService(db)
	sourceService := source.NewService(db)
	libraryService := library.NewService(db)
	itemService := item.NewService(db)
	connectionService := connection.NewService(db, encryptor)
	limiters := connection.NewLimiterMap()

	// Scan coordinator with one provider per source type
	providers := map[source.Type]scan.Provider{
		source.TypeLocal:    scan.NewLocalProvider(logger),
		source.TypePlex:     scan.NewPlexProvider(logger),
		source.TypeEmby:     scan.NewEmbyProvider(connectionService, limiters, logger),
		source.TypeJellyfin: scan.NewJellyfinProvider(connectionService, limiters, logger),
		source.TypeLidarr:   scan.NewLidarrProvider(connectionService, limiters, logger),
	}
	coordinator := scan.NewCoordinator(sourceService, libraryService, itemService, providers, logger)

	// Completeness analyzers, keyed by the task kind that runs them
	completenessService := analysis.NewService(db)
	analyzers := map[task.Kind]task.Analyzer{
		task.KindSeriesCompleteness:     analysis.NewSeriesAnalyzer(libraryService, itemService, completenessService, logger),
		task.KindCollectionCompleteness: analysis.NewCollectionAnalyzer(libraryService, itemService, completenessService, logger),
		task.KindMusicCompleteness:      analysis.NewMusicAnalyzer(libraryService, itemService, completenessService, logger),
	}

	// Event bus and outward-facing sinks
	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()
	metrics.ObserveBus(eventBus)

	broker := push.NewBroker(logger)
	defer broker.Close()

	webhookService := webhook.NewService(db)
	webhookDispatcher := webhook.NewDispatcher(webhookService, logger)
	webhookDispatcher.Subscribe(eventBus)

	// Scheduler and monitor
	history := task.NewHistory(db)
	scheduler := task.NewScheduler(coordinator, analyzers, history, eventBus, broker, logger)

	wishlistService := wishlist.NewService(db)
	wishlistChecker := wishlist.NewChecker(wishlistService, eventBus, logger)

	mon := monitor.New(coordinator, sourceService, libraryService, settingsService, history, eventBus, broker, logger)
	mon.SetWishlist(wishlistChecker)
	mon.SetNetworkPrefixes(cfg.Monitor.NetworkPrefixes)
	mon.LoadConfig(context.Background())
	scheduler.SetMonitor(mon)

	// Upkeep services
	backupDir := filepath.Join(cfg.Data.Dir, "backups")
	retention := settingsService.GetInt(context.Background(), "backup_retention_count", 5)
	backupService := backup.NewService(db, backupDir, retention, logger)
	maintenanceService := maintenance.NewService(db, cfg.Database.Path, settingsService, logger)
	settingsIO := settingsio.NewService(db, connectionService, sourceService, libraryService, webhookService)

	logger.Info("starting driftwood",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := api.NewRouter(api.RouterDeps{
		AuthService:         authService,
		Scheduler:           scheduler,
		History:             history,
		Monitor:             mon,
		SourceService:       sourceService,
		LibraryService:      libraryService,
		ItemService:         itemService,
		ConnectionService:   connectionService,
		CompletenessService: completenessService,
		WishlistService:     wishlistService,
		WebhookService:      webhookService,
		WebhookDispatcher:   webhookDispatcher,
		SettingsService:     settingsService,
		SettingsIO:          settingsIO,
		BackupService:       backupService,
		MaintenanceService:  maintenanceService,
		Broker:              broker,
		DB:                  db,
		Logger:              logger,
		BasePath:            cfg.Server.BasePath,
		RateLimiter:         middleware.NewLoginRateLimiter(ctx),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background schedulers
	if settingsService.GetBool(ctx, "backup_enabled", true) {
		hours := settingsService.GetInt(ctx, "backup_interval_hours", 24)
		if hours <= 0 {
			hours = 24
		}
		go backupService.StartScheduler(ctx, time.Duration(hours)*time.Hour)
	}
	go maintenanceService.StartScheduler(ctx)

	// Expired-session sweep
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := authService.CleanExpiredSessions(ctx); err != nil {
					logger.Error("session cleanup failed", "error", err)
				}
			}
		}
	}()

	// Start monitoring if configured to come up with the process
	if mc := mon.Config(); mc.Enabled && mc.StartOnLaunch {
		if err := mon.Start(ctx); err != nil {
			logger.Error("starting change monitor", "error", err)
		}
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Record outstanding work before the queue state is lost, then stop
	// watching and drain the HTTP server.
	if err := scheduler.PersistInterrupted(shutdownCtx); err != nil {
		logger.Error("persisting interrupted tasks", "error", err)
	}
	mon.Stop()

	return srv.Shutdown(shutdownCtx)
}

func configPath() string {
	if p := os.Getenv("DW_CONFIG_PATH"); p != "" {
		return p
	}
	return "/data/config.yaml"
}

// applyLoggingSettings reconfigures the log manager from persisted
// settings, when present. Called once after migrations.
func applyLoggingSettings(ctx context.Context, s *settings.Service, mgr *logging.Manager, base logging.Config, logger *slog.Logger) {
	level, _ := s.Get(ctx, "logging_level")
	format, _ := s.Get(ctx, "logging_format")
	if level == "" && format == "" {
		return
	}
	if level == "" || !logging.ValidLevel(level) {
		if level != "" {
			logger.Warn("ignoring invalid persisted log level", "level", level)
		}
		level = base.Level
	}
	if format == "" || !logging.ValidFormat(format) {
		if format != "" {
			logger.Warn("ignoring invalid persisted log format", "format", format)
		}
		format = base.Format
	}
	mgr.Reconfigure(level, format)
}

// resetCredentials replaces the admin account from a terminal prompt. It
// is an offline recovery path for a lost password; existing sessions are
// invalidated.
func resetCredentials() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("reset-credentials requires an interactive terminal")
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("New username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading username: %w", err)
	}
	username = strings.TrimSpace(username)

	fmt.Print("New password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password confirmation: %w", err)
	}
	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	if err := auth.NewService(db).ResetCredentials(context.Background(), username, string(password)); err != nil {
		return fmt.Errorf("resetting credentials: %w", err)
	}

	fmt.Println("Credentials reset. All existing sessions have been invalidated.")
	return nil
}
