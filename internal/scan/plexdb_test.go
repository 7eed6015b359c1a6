package scan

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// createPlexDB builds a minimal Plex library database on disk.
func createPlexDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "com.plexapp.plugins.library.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening plex db: %v", err)
	}
	defer db.Close() //nolint:errcheck

	schema := `
		CREATE TABLE metadata_items (
			id INTEGER PRIMARY KEY,
			parent_id INTEGER,
			metadata_type INTEGER,
			library_section_id INTEGER,
			title TEXT,
			"index" INTEGER,
			deleted_at TEXT,
			updated_at TEXT
		);
		CREATE TABLE media_items (
			id INTEGER PRIMARY KEY,
			metadata_item_id INTEGER
		);
		CREATE TABLE media_parts (
			id INTEGER PRIMARY KEY,
			media_item_id INTEGER,
			file TEXT,
			size INTEGER,
			updated_at TEXT
		);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return path
}

func insertPlexMovie(t *testing.T, path string, id, section int, title, file string, size int64, updatedAt string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening plex db: %v", err)
	}
	defer db.Close() //nolint:errcheck

	if _, err := db.Exec(
		`INSERT INTO metadata_items (id, metadata_type, library_section_id, title, updated_at) VALUES (?, 1, ?, ?, ?)`,
		id, section, title, updatedAt,
	); err != nil {
		t.Fatalf("inserting metadata: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO media_items (id, metadata_item_id) VALUES (?, ?)`, id, id); err != nil {
		t.Fatalf("inserting media item: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO media_parts (media_item_id, file, size, updated_at) VALUES (?, ?, ?, ?)`,
		id, file, size, updatedAt,
	); err != nil {
		t.Fatalf("inserting media part: %v", err)
	}
}

func TestPlexProvider_Movies(t *testing.T) {
	dbPath := createPlexDB(t)
	insertPlexMovie(t, dbPath, 1, 2, "Heat", "/movies/Heat (1995).mkv", 4200, "2024-05-01 10:00:00")
	insertPlexMovie(t, dbPath, 2, 2, "Ronin", "/movies/Ronin (1998).mkv", 3100, "2024-05-02 09:00:00")
	insertPlexMovie(t, dbPath, 3, 9, "Other Section", "/other/x.mkv", 10, "2024-05-01 10:00:00")

	p := NewPlexProvider(testLogger())
	src := &source.Source{Path: dbPath}
	lib := &library.Library{MediaKind: library.KindMovie, ExternalID: "2"}

	items, err := p.FetchItems(context.Background(), src, lib, Scope{}, noProgress)
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	byTitle := make(map[string]int64, len(items))
	for _, it := range items {
		byTitle[it.Title] = it.SizeBytes
		if it.ModTime.IsZero() {
			t.Errorf("missing ModTime for %q", it.Title)
		}
	}
	if byTitle["Heat"] != 4200 || byTitle["Ronin"] != 3100 {
		t.Errorf("unexpected items: %+v", byTitle)
	}
}

func TestPlexProvider_SinceFilter(t *testing.T) {
	dbPath := createPlexDB(t)
	insertPlexMovie(t, dbPath, 1, 2, "Old", "/movies/Old.mkv", 100, "2024-01-01 00:00:00")
	insertPlexMovie(t, dbPath, 2, 2, "New", "/movies/New.mkv", 200, "2024-06-01 00:00:00")

	p := NewPlexProvider(testLogger())
	src := &source.Source{Path: dbPath}
	lib := &library.Library{MediaKind: library.KindMovie, ExternalID: "2"}

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	items, err := p.FetchItems(context.Background(), src, lib, Scope{Since: &since}, noProgress)
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Title != "New" {
		t.Errorf("Title = %q, want New", items[0].Title)
	}
}

func TestPlexProvider_Episodes(t *testing.T) {
	dbPath := createPlexDB(t)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening plex db: %v", err)
	}
	defer db.Close() //nolint:errcheck

	stmts := []string{
		`INSERT INTO metadata_items (id, metadata_type, library_section_id, title) VALUES (10, 2, 3, 'Severance')`,
		`INSERT INTO metadata_items (id, parent_id, metadata_type, library_section_id, title, "index") VALUES (11, 10, 3, 3, 'Season 1', 1)`,
		`INSERT INTO metadata_items (id, parent_id, metadata_type, library_section_id, title, "index", updated_at) VALUES (12, 11, 4, 3, 'Half Loop', 2, '2024-05-01 10:00:00')`,
		`INSERT INTO media_items (id, metadata_item_id) VALUES (12, 12)`,
		`INSERT INTO media_parts (media_item_id, file, size, updated_at) VALUES (12, '/tv/Severance/S01E02.mkv', 900, '2024-05-01 10:00:00')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	p := NewPlexProvider(testLogger())
	src := &source.Source{Path: dbPath}
	lib := &library.Library{MediaKind: library.KindSeries, ExternalID: "3"}

	items, err := p.FetchItems(context.Background(), src, lib, Scope{}, noProgress)
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.SeriesName != "Severance" || it.Season != 1 || it.Episode != 2 {
		t.Errorf("unexpected episode: %+v", it)
	}
	if it.Title != "Half Loop" {
		t.Errorf("Title = %q, want Half Loop", it.Title)
	}
}

func TestPlexProvider_NoSectionFilter(t *testing.T) {
	dbPath := createPlexDB(t)
	insertPlexMovie(t, dbPath, 1, 2, "Heat", "/movies/Heat (1995).mkv", 4200, "2024-05-01 10:00:00")
	insertPlexMovie(t, dbPath, 2, 9, "Ronin", "/movies/Ronin (1998).mkv", 3100, "2024-05-01 10:00:00")

	p := NewPlexProvider(testLogger())
	src := &source.Source{Path: dbPath}
	// No ExternalID set: every section of the right type is visible.
	lib := &library.Library{MediaKind: library.KindMovie}

	items, err := p.FetchItems(context.Background(), src, lib, Scope{}, noProgress)
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
}
