package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const completenessColumns = `id, kind, group_key, library_id, have, missing, total, checked_at`

// Service persists completeness records.
type Service struct {
	db *sql.DB
}

// NewService creates a completeness store.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Upsert writes a record, replacing the previous result for the same
// group.
func (s *Service) Upsert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completeness (`+completenessColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, library_id, group_key) DO UPDATE SET
			have = excluded.have,
			missing = excluded.missing,
			total = excluded.total,
			checked_at = excluded.checked_at
	`,
		rec.ID, rec.Kind, rec.GroupKey, rec.LibraryID,
		rec.Have, rec.Missing, rec.Total,
		rec.CheckedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting completeness: %w", err)
	}
	return nil
}

// DeleteByKindAndLibrary clears a library's records of one kind before a
// fresh pass, so groups that vanished from the catalogue do not linger.
func (s *Service) DeleteByKindAndLibrary(ctx context.Context, kind, libraryID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM completeness WHERE kind = ? AND library_id = ?`, kind, libraryID)
	if err != nil {
		return fmt.Errorf("clearing completeness: %w", err)
	}
	return nil
}

// ListByLibrary returns all records for a library.
func (s *Service) ListByLibrary(ctx context.Context, libraryID string) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+completenessColumns+` FROM completeness WHERE library_id = ? ORDER BY kind, group_key`,
		libraryID)
}

// ListByKind returns all records of one kind.
func (s *Service) ListByKind(ctx context.Context, kind string) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+completenessColumns+` FROM completeness WHERE kind = ? ORDER BY group_key`,
		kind)
}

// ListIncomplete returns records of one kind that have gaps, largest gap
// first.
func (s *Service) ListIncomplete(ctx context.Context, kind string) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+completenessColumns+` FROM completeness WHERE kind = ? AND missing > 0 ORDER BY missing DESC, group_key`,
		kind)
}

func (s *Service) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing completeness: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []Record
	for rows.Next() {
		var rec Record
		var checkedAt string
		if err := rows.Scan(
			&rec.ID, &rec.Kind, &rec.GroupKey, &rec.LibraryID,
			&rec.Have, &rec.Missing, &rec.Total, &checkedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning completeness: %w", err)
		}
		rec.CheckedAt = parseTime(checkedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
