package wishlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const wantColumns = `id, title, kind, notes, fulfilled, matched_id, created_at, updated_at`

// Service provides wanted-item data operations.
type Service struct {
	db *sql.DB
}

// NewService creates a wishlist service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new want.
func (s *Service) Create(ctx context.Context, w *Want) error {
	if err := validate(w); err != nil {
		return err
	}

	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wanted_items (id, title, kind, notes, fulfilled, matched_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		w.ID, w.Title, w.Kind, w.Notes, boolToInt(w.Fulfilled), w.MatchedID,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating want: %w", err)
	}
	return nil
}

// GetByID retrieves a want by primary key.
func (s *Service) GetByID(ctx context.Context, id string) (*Want, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+wantColumns+` FROM wanted_items WHERE id = ?`, id)
	w, err := scanWant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("want not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting want by id: %w", err)
	}
	return w, nil
}

// List returns all wants, unfulfilled first, newest first within each group.
func (s *Service) List(ctx context.Context) ([]Want, error) {
	return s.list(ctx, `SELECT `+wantColumns+` FROM wanted_items ORDER BY fulfilled, created_at DESC`)
}

// ListUnfulfilled returns wants that have not been matched yet.
func (s *Service) ListUnfulfilled(ctx context.Context) ([]Want, error) {
	return s.list(ctx, `SELECT `+wantColumns+` FROM wanted_items WHERE fulfilled = 0 ORDER BY created_at DESC`)
}

func (s *Service) list(ctx context.Context, query string) ([]Want, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing wants: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Want
	for rows.Next() {
		w, err := scanWant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning want: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// Update modifies the title, kind and notes of a want.
func (s *Service) Update(ctx context.Context, w *Want) error {
	if err := validate(w); err != nil {
		return err
	}

	w.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET title = ?, kind = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, w.Title, w.Kind, w.Notes, w.UpdatedAt.Format(time.RFC3339), w.ID)
	if err != nil {
		return fmt.Errorf("updating want: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("want not found: %s", w.ID)
	}
	return nil
}

// MarkFulfilled records the catalogue item that satisfied a want.
func (s *Service) MarkFulfilled(ctx context.Context, id, matchedID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET fulfilled = 1, matched_id = ?, updated_at = ?
		WHERE id = ?
	`, matchedID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("marking want fulfilled: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("want not found: %s", id)
	}
	return nil
}

// Delete removes a want.
func (s *Service) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM wanted_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting want: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("want not found: %s", id)
	}
	return nil
}

func validate(w *Want) error {
	if w.Title == "" {
		return fmt.Errorf("want title is required")
	}
	if !ValidKind(w.Kind) {
		return fmt.Errorf("unknown want kind: %q", w.Kind)
	}
	return nil
}

// scanWant scans a database row into a Want struct.
func scanWant(row interface{ Scan(...any) error }) (*Want, error) {
	var w Want
	var fulfilled int
	var createdAt, updatedAt string

	err := row.Scan(
		&w.ID, &w.Title, &w.Kind, &w.Notes,
		&fulfilled, &w.MatchedID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Fulfilled = fulfilled != 0
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
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
