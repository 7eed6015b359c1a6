package backup

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if _, err := db.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.Exec("INSERT INTO test (value) VALUES ('hello')"); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	return db
}

// seedBackupFile drops a fake snapshot with the given age into dir.
func seedBackupFile(t *testing.T, dir string, age time.Duration) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	name := "driftwood-" + time.Now().UTC().Add(-age).Format("20060102-150405") + ".db"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("snapshot"), 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestBackup(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 7, testLogger())

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if info.Filename == "" {
		t.Error("expected non-empty filename")
	}
	if info.Size == 0 {
		t.Error("expected non-zero file size")
	}

	// The snapshot must be an independently readable database.
	backupDB, err := sql.Open("sqlite", filepath.Join(backupDir, info.Filename))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backupDB.Close() //nolint:errcheck

	var value string
	if err := backupDB.QueryRow("SELECT value FROM test WHERE id = 1").Scan(&value); err != nil {
		t.Fatalf("querying backup: %v", err)
	}
	if value != "hello" {
		t.Errorf("expected 'hello', got %q", value)
	}
}

func TestListBackups_SortedNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 7, testLogger())

	seedBackupFile(t, backupDir, 3*time.Hour)
	seedBackupFile(t, backupDir, 2*time.Hour)
	newest := seedBackupFile(t, backupDir, time.Hour)

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups, got %d", len(backups))
	}
	if backups[0].Filename != newest {
		t.Errorf("first backup = %s, want %s", backups[0].Filename, newest)
	}
	if !backups[0].CreatedAt.After(backups[1].CreatedAt) {
		t.Error("expected backups sorted by date descending")
	}
}

func TestPrune_ByCount(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 2, testLogger())

	for i := range 4 {
		seedBackupFile(t, backupDir, time.Duration(i+1)*time.Hour)
	}

	pruned, err := svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups after prune: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after prune, got %d", len(backups))
	}
}

func TestPrune_ByAge(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 100, testLogger())

	recent := seedBackupFile(t, backupDir, time.Hour)
	seedBackupFile(t, backupDir, 60*24*time.Hour)

	svc.SetMaxAgeDays(30)
	pruned, err := svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup after age-based prune, got %d", len(backups))
	}
	if backups[0].Filename != recent {
		t.Errorf("expected recent backup to survive, got %s", backups[0].Filename)
	}
}

func TestListBackupsEmptyDir(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, filepath.Join(t.TempDir(), "nonexistent"), 7, testLogger())

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups, got %d", len(backups))
	}
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 7, testLogger())

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if err := svc.Delete(info.Filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups after delete, got %d", len(backups))
	}

	if err := svc.Delete("../evil.db"); err == nil {
		t.Error("expected error for invalid filename")
	}
	if err := svc.Delete("driftwood-20260101-000000.db"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestIsValidBackupFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid", "driftwood-20260220-143022.db", true},
		{"path traversal", "../driftwood-20260220-143022.db", false},
		{"backslash", "..\\driftwood-20260220-143022.db", false},
		{"wrong prefix", "backup-20260220-143022.db", false},
		{"wrong extension", "driftwood-20260220-143022.sql", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidBackupFilename(tt.input); got != tt.want {
				t.Errorf("IsValidBackupFilename(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
