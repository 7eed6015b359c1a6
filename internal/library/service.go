package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const libraryColumns = `id, source_id, name, media_kind, path, external_id, enabled, last_scanned_at, created_at, updated_at`

// Service provides library data operations.
type Service struct {
	db *sql.DB
}

// NewService creates a library service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new library.
func (s *Service) Create(ctx context.Context, lib *Library) error {
	if lib.Name == "" {
		return fmt.Errorf("library name is required")
	}
	if lib.SourceID == "" {
		return fmt.Errorf("library source is required")
	}
	if !ValidKind(lib.MediaKind) {
		return fmt.Errorf("media kind must be one of %q, %q, %q", KindMovie, KindSeries, KindMusic)
	}

	if lib.ID == "" {
		lib.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	lib.CreatedAt = now
	lib.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO libraries (id, source_id, name, media_kind, path, external_id, enabled, last_scanned_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		lib.ID, lib.SourceID, lib.Name, lib.MediaKind,
		lib.Path, lib.ExternalID, boolToInt(lib.Enabled),
		nullableTime(lib.LastScannedAt),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating library: %w", err)
	}
	return nil
}

// GetByID retrieves a library by primary key.
func (s *Service) GetByID(ctx context.Context, id string) (*Library, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id)
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting library by id: %w", err)
	}
	return lib, nil
}

// List returns all libraries ordered by name.
func (s *Service) List(ctx context.Context) ([]Library, error) {
	return s.list(ctx, `SELECT `+libraryColumns+` FROM libraries ORDER BY name`)
}

// ListBySource returns all libraries of a source ordered by name.
func (s *Service) ListBySource(ctx context.Context, sourceID string) ([]Library, error) {
	return s.list(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE source_id = ? ORDER BY name`, sourceID)
}

// ListEnabledBySource returns enabled libraries of a source ordered by name.
func (s *Service) ListEnabledBySource(ctx context.Context, sourceID string) ([]Library, error) {
	return s.list(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE source_id = ? AND enabled = 1 ORDER BY name`, sourceID)
}

func (s *Service) list(ctx context.Context, query string, args ...any) ([]Library, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var libs []Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning library: %w", err)
		}
		libs = append(libs, *lib)
	}
	return libs, rows.Err()
}

// Update modifies an existing library.
func (s *Service) Update(ctx context.Context, lib *Library) error {
	if lib.Name == "" {
		return fmt.Errorf("library name is required")
	}
	if !ValidKind(lib.MediaKind) {
		return fmt.Errorf("media kind must be one of %q, %q, %q", KindMovie, KindSeries, KindMusic)
	}

	lib.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE libraries SET name = ?, media_kind = ?, path = ?, external_id = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		lib.Name, lib.MediaKind, lib.Path, lib.ExternalID,
		boolToInt(lib.Enabled), lib.UpdatedAt.Format(time.RFC3339), lib.ID,
	)
	if err != nil {
		return fmt.Errorf("updating library: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("library not found: %s", lib.ID)
	}
	return nil
}

// SetLastScanned records the incremental-scan watermark.
func (s *Service) SetLastScanned(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE libraries SET last_scanned_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("setting last scanned: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("library not found: %s", id)
	}
	return nil
}

// Delete removes a library. Catalogue items cascade.
func (s *Service) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting library: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("library not found: %s", id)
	}
	return nil
}

// scanLibrary scans a database row into a Library struct.
func scanLibrary(row interface{ Scan(...any) error }) (*Library, error) {
	var lib Library
	var enabled int
	var lastScanned sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&lib.ID, &lib.SourceID, &lib.Name, &lib.MediaKind,
		&lib.Path, &lib.ExternalID, &enabled, &lastScanned,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	lib.Enabled = enabled != 0
	if lastScanned.Valid && lastScanned.String != "" {
		t := parseTime(lastScanned.String)
		lib.LastScannedAt = &t
	}
	lib.CreatedAt = parseTime(createdAt)
	lib.UpdatedAt = parseTime(updatedAt)
	return &lib, nil
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
