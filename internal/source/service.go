package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sourceColumns = `id, name, type, path, connection_id, enabled, created_at, updated_at`

// Service provides source data operations.
type Service struct {
	db *sql.DB
}

// NewService creates a source service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new source.
func (s *Service) Create(ctx context.Context, src *Source) error {
	if err := validate(src); err != nil {
		return err
	}

	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, type, path, connection_id, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		src.ID, src.Name, string(src.Type), src.Path,
		nullableString(src.ConnectionID), boolToInt(src.Enabled),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating source: %w", err)
	}
	return nil
}

// GetByID retrieves a source by primary key.
func (s *Service) GetByID(ctx context.Context, id string) (*Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting source by id: %w", err)
	}
	return src, nil
}

// List returns all sources ordered by name.
func (s *Service) List(ctx context.Context) ([]Source, error) {
	return s.list(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
}

// ListEnabled returns enabled sources ordered by name.
func (s *Service) ListEnabled(ctx context.Context) ([]Source, error) {
	return s.list(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled = 1 ORDER BY name`)
}

func (s *Service) list(ctx context.Context, query string) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// Update modifies an existing source.
func (s *Service) Update(ctx context.Context, src *Source) error {
	if err := validate(src); err != nil {
		return err
	}

	src.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE sources SET name = ?, type = ?, path = ?, connection_id = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		src.Name, string(src.Type), src.Path,
		nullableString(src.ConnectionID), boolToInt(src.Enabled),
		src.UpdatedAt.Format(time.RFC3339), src.ID,
	)
	if err != nil {
		return fmt.Errorf("updating source: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("source not found: %s", src.ID)
	}
	return nil
}

// SetEnabled flips the enabled flag without touching other fields.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sources SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("setting source enabled: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("source not found: %s", id)
	}
	return nil
}

// Delete removes a source. Libraries and catalogue items cascade.
func (s *Service) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("source not found: %s", id)
	}
	return nil
}

func validate(src *Source) error {
	if src.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if !src.Type.Valid() {
		return fmt.Errorf("unknown source type: %q", src.Type)
	}
	if src.Type.Filesystem() && src.Path == "" {
		return fmt.Errorf("%s sources require a path", src.Type)
	}
	if src.Type.Remote() && src.ConnectionID == "" {
		return fmt.Errorf("%s sources require a connection", src.Type)
	}
	return nil
}

// scanSource scans a database row into a Source struct.
func scanSource(row interface{ Scan(...any) error }) (*Source, error) {
	var src Source
	var typ string
	var connectionID sql.NullString
	var enabled int
	var createdAt, updatedAt string

	err := row.Scan(
		&src.ID, &src.Name, &typ, &src.Path,
		&connectionID, &enabled, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	src.Type = Type(typ)
	if connectionID.Valid {
		src.ConnectionID = connectionID.String
	}
	src.Enabled = enabled != 0
	src.CreatedAt = parseTime(createdAt)
	src.UpdatedAt = parseTime(updatedAt)
	return &src, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
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
