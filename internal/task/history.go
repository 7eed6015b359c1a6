package task

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Activity entry types. Task entries reference a task id; monitoring
// entries come from the change monitor and reference a source instead.
const (
	EntryTypeTask       = "task"
	EntryTypeMonitoring = "monitoring"
)

// recentActivityCap bounds the in-memory activity buffers.
const recentActivityCap = 100

const historyColumns = `id, kind, label, source_id, library_id, status, error,
	items_scanned, items_added, items_updated, items_removed, is_first_scan,
	created_at, started_at, completed_at`

const activityColumns = `id, entry_type, task_id, source_id, message, detail, created_at`

// Activity is one history log line, shown in the UI activity feed.
type Activity struct {
	ID        string    `json:"id"`
	EntryType string    `json:"entry_type"`
	TaskID    string    `json:"task_id,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// History persists finished tasks and activity entries, and keeps a small
// in-memory buffer of recent entries per type for cheap status reads.
type History struct {
	db *sql.DB

	mu     sync.Mutex
	recent map[string][]Activity
}

// NewHistory creates a history store.
func NewHistory(db *sql.DB) *History {
	return &History{
		db:     db,
		recent: make(map[string][]Activity),
	}
}

// RecordTask writes the terminal state of a task. Replaces any earlier row
// for the same id.
func (h *History) RecordTask(ctx context.Context, t *Task) error {
	var res Result
	if t.Result != nil {
		res = *t.Result
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO task_history
			(id, kind, label, source_id, library_id, status, error,
			 items_scanned, items_added, items_updated, items_removed, is_first_scan,
			 created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, string(t.Kind), t.Label, t.SourceID, t.LibraryID, string(t.Status), t.Error,
		res.ItemsScanned, res.ItemsAdded, res.ItemsUpdated, res.ItemsRemoved, boolToInt(res.IsFirstScan),
		t.CreatedAt.Format(time.RFC3339), nullableTime(t.StartedAt), nullableTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("recording task history: %w", err)
	}
	return nil
}

// ListTasks returns terminal tasks, newest first.
func (h *History) ListTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM task_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing task history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Task
	for rows.Next() {
		t, err := scanHistoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task history: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ClearTasks removes all task history and the task activity entries that
// reference it.
func (h *History) ClearTasks(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clearing task history: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_history`); err != nil {
		return fmt.Errorf("clearing task history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_log WHERE entry_type = ?`, EntryTypeTask); err != nil {
		return fmt.Errorf("clearing task activity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clearing task history: %w", err)
	}

	h.mu.Lock()
	h.recent[EntryTypeTask] = nil
	h.mu.Unlock()
	return nil
}

// PruneTask removes one task's history row together with every activity
// entry that references it, so no entry outlives its task.
func (h *History) PruneTask(ctx context.Context, taskID string) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pruning task %s: %w", taskID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_log WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("pruning task activity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_history WHERE id = ?`, taskID); err != nil {
		return fmt.Errorf("pruning task row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pruning task %s: %w", taskID, err)
	}

	h.mu.Lock()
	entries := h.recent[EntryTypeTask]
	kept := entries[:0]
	for _, e := range entries {
		if e.TaskID != taskID {
			kept = append(kept, e)
		}
	}
	h.recent[EntryTypeTask] = kept
	h.mu.Unlock()
	return nil
}

// LogTask appends a task activity entry.
func (h *History) LogTask(ctx context.Context, taskID, sourceID, message, detail string) error {
	return h.log(ctx, EntryTypeTask, taskID, sourceID, message, detail)
}

// LogMonitoring appends a monitoring activity entry.
func (h *History) LogMonitoring(ctx context.Context, sourceID, message, detail string) error {
	return h.log(ctx, EntryTypeMonitoring, "", sourceID, message, detail)
}

func (h *History) log(ctx context.Context, entryType, taskID, sourceID, message, detail string) error {
	entry := Activity{
		ID:        uuid.New().String(),
		EntryType: entryType,
		TaskID:    taskID,
		SourceID:  sourceID,
		Message:   message,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, entry_type, task_id, source_id, message, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.EntryType, entry.TaskID, entry.SourceID, entry.Message, entry.Detail,
		entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}

	h.mu.Lock()
	entries := append([]Activity{entry}, h.recent[entryType]...)
	if len(entries) > recentActivityCap {
		entries = entries[:recentActivityCap]
	}
	h.recent[entryType] = entries
	h.mu.Unlock()
	return nil
}

// ListActivity returns activity entries of one type, newest first.
func (h *History) ListActivity(ctx context.Context, entryType string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activity_log WHERE entry_type = ? ORDER BY created_at DESC LIMIT ?`,
		entryType, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Activity
	for rows.Next() {
		var a Activity
		var createdAt string
		if err := rows.Scan(&a.ID, &a.EntryType, &a.TaskID, &a.SourceID, &a.Message, &a.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClearMonitoring removes all monitoring activity entries.
func (h *History) ClearMonitoring(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx,
		`DELETE FROM activity_log WHERE entry_type = ?`, EntryTypeMonitoring); err != nil {
		return fmt.Errorf("clearing monitoring activity: %w", err)
	}
	h.mu.Lock()
	h.recent[EntryTypeMonitoring] = nil
	h.mu.Unlock()
	return nil
}

// Recent returns the in-memory buffer of recent entries for one type,
// newest first.
func (h *History) Recent(entryType string) []Activity {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Activity, len(h.recent[entryType]))
	copy(out, h.recent[entryType])
	return out
}

func scanHistoryRow(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var kind, status, createdAt string
	var startedAt, completedAt sql.NullString
	var res Result
	var firstScan int

	err := row.Scan(
		&t.ID, &kind, &t.Label, &t.SourceID, &t.LibraryID, &status, &t.Error,
		&res.ItemsScanned, &res.ItemsAdded, &res.ItemsUpdated, &res.ItemsRemoved, &firstScan,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = Kind(kind)
	t.Status = Status(status)
	res.IsFirstScan = firstScan != 0
	if t.Status == StatusCompleted {
		t.Result = &res
	}
	t.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		at := parseTime(startedAt.String)
		t.StartedAt = &at
	}
	if completedAt.Valid {
		at := parseTime(completedAt.String)
		t.CompletedAt = &at
	}
	return &t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
