package scan

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite driver

	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// Plex metadata_items.metadata_type values.
const (
	plexTypeMovie   = 1
	plexTypeEpisode = 4
	plexTypeTrack   = 10
)

// PlexProvider reads a Plex server's library database file directly. The
// source path points at com.plexapp.plugins.library.db; the file is opened
// read-only so a running Plex server is not disturbed.
type PlexProvider struct {
	logger *slog.Logger
}

// NewPlexProvider creates a Plex database scan provider.
func NewPlexProvider(logger *slog.Logger) *PlexProvider {
	return &PlexProvider{logger: logger.With(slog.String("provider", "plexdb"))}
}

func (p *PlexProvider) FetchItems(ctx context.Context, src *source.Source, lib *library.Library, scope Scope, progress func(scanned, total int)) ([]item.Item, error) {
	db, err := sql.Open("sqlite", "file:"+src.Path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening plex database: %w", err)
	}
	defer db.Close() //nolint:errcheck
	db.SetMaxOpenConns(1)

	rows, err := p.query(ctx, db, lib)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var targets map[string]bool
	if len(scope.Paths) > 0 {
		targets = make(map[string]bool, len(scope.Paths))
		for _, path := range scope.Paths {
			targets[path] = true
		}
	}

	var items []item.Item
	scanned := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it, err := p.scanRow(rows, lib.MediaKind)
		if err != nil {
			p.logger.Warn("reading plex row", "error", err)
			continue
		}
		scanned++
		progress(scanned, 0)

		if it.Path == "" {
			continue
		}
		if targets != nil && !targets[it.Path] {
			continue
		}
		if scope.Since != nil && !it.ModTime.After(*scope.Since) {
			continue
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plex rows: %w", err)
	}
	return items, nil
}

func (p *PlexProvider) query(ctx context.Context, db *sql.DB, lib *library.Library) (*sql.Rows, error) {
	var query, alias string
	switch lib.MediaKind {
	case library.KindMovie:
		alias = "md"
		query = `
			SELECT md.title, '', 0, 0, mp.file, mp.size, mp.updated_at
			FROM metadata_items md
			JOIN media_items mi ON mi.metadata_item_id = md.id
			JOIN media_parts mp ON mp.media_item_id = mi.id
			WHERE md.metadata_type = ` + strconv.Itoa(plexTypeMovie) + ` AND md.deleted_at IS NULL`
	case library.KindSeries:
		alias = "ep"
		query = `
			SELECT ep.title, show.title, season."index", ep."index", mp.file, mp.size, mp.updated_at
			FROM metadata_items ep
			JOIN metadata_items season ON ep.parent_id = season.id
			JOIN metadata_items show ON season.parent_id = show.id
			JOIN media_items mi ON mi.metadata_item_id = ep.id
			JOIN media_parts mp ON mp.media_item_id = mi.id
			WHERE ep.metadata_type = ` + strconv.Itoa(plexTypeEpisode) + ` AND ep.deleted_at IS NULL`
	case library.KindMusic:
		alias = "tr"
		query = `
			SELECT tr.title, artist.title, album.title, tr."index", mp.file, mp.size, mp.updated_at
			FROM metadata_items tr
			JOIN metadata_items album ON tr.parent_id = album.id
			JOIN metadata_items artist ON album.parent_id = artist.id
			JOIN media_items mi ON mi.metadata_item_id = tr.id
			JOIN media_parts mp ON mp.media_item_id = mi.id
			WHERE tr.metadata_type = ` + strconv.Itoa(plexTypeTrack) + ` AND tr.deleted_at IS NULL`
	default:
		return nil, fmt.Errorf("unsupported media kind %q", lib.MediaKind)
	}

	var args []any
	if section, err := strconv.Atoi(lib.ExternalID); err == nil {
		query += ` AND ` + alias + `.library_section_id = ?`
		args = append(args, section)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying plex database: %w", err)
	}
	return rows, nil
}

// scanRow maps one row to an item. The column layout depends on the media
// kind but always ends with file, size and updated_at.
func (p *PlexProvider) scanRow(rows *sql.Rows, mediaKind string) (*item.Item, error) {
	var (
		title, file, updatedAt sql.NullString
		size                   sql.NullInt64
	)

	var it item.Item
	switch mediaKind {
	case library.KindSeries:
		var show sql.NullString
		var season, episode sql.NullInt64
		if err := rows.Scan(&title, &show, &season, &episode, &file, &size, &updatedAt); err != nil {
			return nil, err
		}
		it.Kind = item.KindEpisode
		it.SeriesName = show.String
		it.Season = int(season.Int64)
		it.Episode = int(episode.Int64)
	case library.KindMusic:
		var artist, album sql.NullString
		var track sql.NullInt64
		if err := rows.Scan(&title, &artist, &album, &track, &file, &size, &updatedAt); err != nil {
			return nil, err
		}
		it.Kind = item.KindTrack
		it.Artist = artist.String
		it.Album = album.String
		it.Track = int(track.Int64)
	default:
		var pad sql.NullString
		var pad1, pad2 sql.NullInt64
		if err := rows.Scan(&title, &pad, &pad1, &pad2, &file, &size, &updatedAt); err != nil {
			return nil, err
		}
		it.Kind = item.KindMovie
	}

	it.Title = title.String
	it.Path = file.String
	it.SizeBytes = size.Int64
	it.ModTime = plexTime(updatedAt.String)
	return &it, nil
}

// plexTime parses the timestamp formats seen in Plex databases: SQLite
// datetime strings and unix epoch seconds.
func plexTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC()
	}
	return time.Time{}
}
