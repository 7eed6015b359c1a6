package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/connection/lidarr"
	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// LidarrProvider builds a music catalogue from a Lidarr server's artists
// and track files.
type LidarrProvider struct {
	connections *connection.Service
	limiters    *connection.LimiterMap
	logger      *slog.Logger
	newClient   func(baseURL, apiKey string, logger *slog.Logger) *lidarr.Client
}

// NewLidarrProvider creates a Lidarr scan provider.
func NewLidarrProvider(connections *connection.Service, limiters *connection.LimiterMap, logger *slog.Logger) *LidarrProvider {
	return &LidarrProvider{
		connections: connections,
		limiters:    limiters,
		logger:      logger.With(slog.String("provider", "lidarr")),
		newClient:   lidarr.New,
	}
}

func (p *LidarrProvider) FetchItems(ctx context.Context, src *source.Source, lib *library.Library, scope Scope, progress func(scanned, total int)) ([]item.Item, error) {
	if src.ConnectionID == "" {
		return nil, fmt.Errorf("source %q has no connection", src.Name)
	}
	conn, err := p.connections.GetByID(ctx, src.ConnectionID)
	if err != nil {
		return nil, err
	}
	client := p.newClient(conn.URL, conn.APIKey, p.logger)

	if err := p.limiters.Wait(ctx, conn.ID); err != nil {
		return nil, err
	}
	artists, err := client.GetArtists(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching lidarr artists: %w", err)
	}

	targets := pathSet(scope.Paths)
	var items []item.Item
	scanned := 0
	for _, artist := range artists {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		albumTitles := p.albumTitles(ctx, client, conn.ID, artist.ID)

		if err := p.limiters.Wait(ctx, conn.ID); err != nil {
			return nil, err
		}
		files, err := client.GetTrackFiles(ctx, artist.ID)
		if err != nil {
			p.logger.Warn("fetching track files", "artist", artist.ArtistName, "error", err)
			continue
		}

		for _, f := range files {
			scanned++
			progress(scanned, 0)

			if f.Path == "" {
				continue
			}
			if targets != nil && !targets[f.Path] {
				continue
			}
			if scope.Since != nil && !f.DateAdded.After(*scope.Since) {
				continue
			}

			it := parseTrack(f.Path)
			it.Artist = artist.ArtistName
			if title, ok := albumTitles[f.AlbumID]; ok {
				it.Album = title
			}
			it.SizeBytes = f.Size
			it.ModTime = f.DateAdded.UTC()
			items = append(items, it)
		}
	}
	return items, nil
}

// albumTitles maps album IDs to titles for one artist. Failures degrade to
// directory-derived album names.
func (p *LidarrProvider) albumTitles(ctx context.Context, client *lidarr.Client, connID string, artistID int) map[int]string {
	if err := p.limiters.Wait(ctx, connID); err != nil {
		return nil
	}
	albums, err := client.GetAlbums(ctx, artistID)
	if err != nil {
		p.logger.Warn("fetching albums", "artist_id", artistID, "error", err)
		return nil
	}
	titles := make(map[int]string, len(albums))
	for _, a := range albums {
		titles[a.ID] = a.Title
	}
	return titles
}
