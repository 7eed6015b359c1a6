package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/veldrane/driftwood/internal/settings"
)

// Settings keys.
const (
	settingEnabled       = "maintenance_enabled"
	settingIntervalHours = "maintenance_interval_hours"
	settingRetentionDays = "maintenance_retention_days"
	settingLastOptimize  = "maintenance_last_optimize_at"
)

// Defaults applied when a setting is absent.
const (
	defaultIntervalHours = 24
	defaultRetentionDays = 90
)

// Status describes the database file and the maintenance schedule.
type Status struct {
	DBFileSize       int64  `json:"db_file_size"`
	WALFileSize      int64  `json:"wal_file_size"`
	PageCount        int64  `json:"page_count"`
	PageSize         int64  `json:"page_size"`
	LastOptimizeAt   string `json:"last_optimize_at,omitempty"`
	ScheduleEnabled  bool   `json:"schedule_enabled"`
	ScheduleInterval int    `json:"schedule_interval_hours"`
	RetentionDays    int    `json:"retention_days"`
}

// Service keeps the sqlite file healthy: WAL checkpoints, optimize,
// vacuum, and pruning of old history rows.
type Service struct {
	db       *sql.DB
	dbPath   string
	settings *settings.Service
	logger   *slog.Logger
}

// NewService creates a maintenance service.
func NewService(db *sql.DB, dbPath string, settingsSvc *settings.Service, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		dbPath:   dbPath,
		settings: settingsSvc,
		logger:   logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		s.logger.Warn("reading page_count", "error", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		s.logger.Warn("reading page_size", "error", err)
	}

	if v, err := s.settings.Get(ctx, settingLastOptimize); err == nil {
		st.LastOptimizeAt = v
	}
	st.ScheduleEnabled = s.settings.GetBool(ctx, settingEnabled, true)
	st.ScheduleInterval = s.settings.GetInt(ctx, settingIntervalHours, defaultIntervalHours)
	st.RetentionDays = s.settings.GetInt(ctx, settingRetentionDays, defaultRetentionDays)

	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Info("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}

	s.logger.Info("running WAL checkpoint")
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.settings.Set(ctx, settingLastOptimize, now); err != nil {
		s.logger.Warn("recording optimize timestamp", "error", err)
	}

	s.logger.Info("optimize complete")
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// PruneHistory deletes task-history and activity rows older than the
// retention window. Returns the number of rows removed.
func (s *Service) PruneHistory(ctx context.Context) (int64, error) {
	days := s.settings.GetInt(ctx, settingRetentionDays, defaultRetentionDays)
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)

	var total int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning task history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM activity_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("pruning activity log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	if total > 0 {
		s.logger.Info("pruned history", "rows", total, "retention_days", days)
	}
	return total, nil
}

// RunCycle performs one scheduled maintenance pass.
func (s *Service) RunCycle(ctx context.Context) {
	if _, err := s.PruneHistory(ctx); err != nil {
		s.logger.Error("scheduled prune failed", slog.Any("error", err))
	}
	if err := s.Optimize(ctx); err != nil {
		s.logger.Error("scheduled optimize failed", slog.Any("error", err))
	}
}

// StartScheduler runs maintenance cycles on the configured interval
// until the context is canceled. The enabled flag is re-read each tick
// so a settings change takes effect without a restart.
func (s *Service) StartScheduler(ctx context.Context) {
	interval := time.Duration(s.settings.GetInt(ctx, settingIntervalHours, defaultIntervalHours)) * time.Hour
	if interval <= 0 {
		interval = defaultIntervalHours * time.Hour
	}
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if !s.settings.GetBool(ctx, settingEnabled, true) {
				continue
			}
			s.RunCycle(ctx)
		}
	}
}
