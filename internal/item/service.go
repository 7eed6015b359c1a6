package item

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const itemColumns = `id, source_id, library_id, kind, title, path, series_name, season, episode,
	collection, collection_index, artist, album, track, size_bytes, mod_time, added_at, updated_at`

// Service provides catalogue item data operations.
type Service struct {
	db *sql.DB
}

// NewService creates an item service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Insert adds a new item to the catalogue.
func (s *Service) Insert(ctx context.Context, it *Item) error {
	if it.LibraryID == "" || it.SourceID == "" || it.Path == "" {
		return fmt.Errorf("item requires source, library and path")
	}
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	it.AddedAt = now
	it.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		it.ID, it.SourceID, it.LibraryID, it.Kind, it.Title, it.Path,
		it.SeriesName, nullableInt(it.Season), nullableInt(it.Episode),
		it.Collection, nullableInt(it.CollectionIndex),
		it.Artist, it.Album, nullableInt(it.Track),
		it.SizeBytes, nullableTime(it.ModTime),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}
	return nil
}

// Update replaces the content metadata of an existing item.
func (s *Service) Update(ctx context.Context, it *Item) error {
	it.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE media_items SET kind = ?, title = ?, series_name = ?, season = ?, episode = ?,
			collection = ?, collection_index = ?, artist = ?, album = ?, track = ?,
			size_bytes = ?, mod_time = ?, updated_at = ?
		WHERE id = ?
	`,
		it.Kind, it.Title, it.SeriesName, nullableInt(it.Season), nullableInt(it.Episode),
		it.Collection, nullableInt(it.CollectionIndex), it.Artist, it.Album, nullableInt(it.Track),
		it.SizeBytes, nullableTime(it.ModTime), it.UpdatedAt.Format(time.RFC3339), it.ID,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item not found: %s", it.ID)
	}
	return nil
}

// Delete removes items by id.
func (s *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM media_items WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}
	return nil
}

// MapByLibrary returns the library's items keyed by path.
func (s *Service) MapByLibrary(ctx context.Context, libraryID string) (map[string]Item, error) {
	items, err := s.ListByLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Item, len(items))
	for _, it := range items {
		out[it.Path] = it
	}
	return out, nil
}

// ListByLibrary returns all items of a library ordered by path.
func (s *Service) ListByLibrary(ctx context.Context, libraryID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM media_items WHERE library_id = ? ORDER BY path`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// ListByPaths returns the library's items matching the given paths.
func (s *Service) ListByPaths(ctx context.Context, libraryID string, paths []string) ([]Item, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(paths)+1)
	args = append(args, libraryID)
	for _, p := range paths {
		args = append(args, p)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM media_items WHERE library_id = ? AND path IN (`+placeholders(len(paths))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing items by path: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// CountByLibrary returns the number of catalogued items in a library.
func (s *Service) CountByLibrary(ctx context.Context, libraryID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE library_id = ?`, libraryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return count, nil
}

// scanItem scans a database row into an Item struct.
func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var season, episode, collectionIndex, track sql.NullInt64
	var modTime sql.NullString
	var addedAt, updatedAt string

	err := row.Scan(
		&it.ID, &it.SourceID, &it.LibraryID, &it.Kind, &it.Title, &it.Path,
		&it.SeriesName, &season, &episode,
		&it.Collection, &collectionIndex, &it.Artist, &it.Album, &track,
		&it.SizeBytes, &modTime, &addedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	it.Season = int(season.Int64)
	it.Episode = int(episode.Int64)
	it.CollectionIndex = int(collectionIndex.Int64)
	it.Track = int(track.Int64)
	if modTime.Valid && modTime.String != "" {
		it.ModTime = parseTime(modTime.String)
	}
	it.AddedAt = parseTime(addedAt)
	it.UpdatedAt = parseTime(updatedAt)
	return &it, nil
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
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
