package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/connection/emby"
	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// remotePageSize is the item page size when walking a media server
// catalogue.
const remotePageSize = 500

// EmbyProvider fetches a library catalogue from an Emby server.
type EmbyProvider struct {
	connections *connection.Service
	limiters    *connection.LimiterMap
	logger      *slog.Logger
	newClient   func(baseURL, apiKey string, logger *slog.Logger) *emby.Client
}

// NewEmbyProvider creates an Emby scan provider.
func NewEmbyProvider(connections *connection.Service, limiters *connection.LimiterMap, logger *slog.Logger) *EmbyProvider {
	return &EmbyProvider{
		connections: connections,
		limiters:    limiters,
		logger:      logger.With(slog.String("provider", "emby")),
		newClient:   emby.New,
	}
}

func (p *EmbyProvider) FetchItems(ctx context.Context, src *source.Source, lib *library.Library, scope Scope, progress func(scanned, total int)) ([]item.Item, error) {
	if src.ConnectionID == "" {
		return nil, fmt.Errorf("source %q has no connection", src.Name)
	}
	conn, err := p.connections.GetByID(ctx, src.ConnectionID)
	if err != nil {
		return nil, err
	}
	client := p.newClient(conn.URL, conn.APIKey, p.logger)

	targets := pathSet(scope.Paths)
	var items []item.Item
	start := 0
	for {
		if err := p.limiters.Wait(ctx, conn.ID); err != nil {
			return nil, err
		}
		page, err := client.GetItems(ctx, lib.ExternalID, scope.Since, start, remotePageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching emby items: %w", err)
		}
		for _, m := range page.Items {
			start++
			progress(start, page.TotalRecordCount)

			it, ok := embyItem(m)
			if !ok {
				continue
			}
			if targets != nil && !targets[it.Path] {
				continue
			}
			items = append(items, it)
		}
		if len(page.Items) == 0 || start >= page.TotalRecordCount {
			break
		}
	}
	return items, nil
}

// embyItem maps a server item to the catalogue model. Items without a
// file path are virtual and skipped.
func embyItem(m emby.MediaItem) (item.Item, bool) {
	if m.Path == "" {
		return item.Item{}, false
	}
	it := item.Item{
		Title:     m.Name,
		Path:      m.Path,
		SizeBytes: m.Size,
		ModTime:   m.DateCreated.UTC(),
	}
	switch m.Type {
	case "Movie":
		it.Kind = item.KindMovie
	case "Episode":
		it.Kind = item.KindEpisode
		it.SeriesName = m.SeriesName
		it.Season = m.ParentIndexNumber
		it.Episode = m.IndexNumber
	case "Audio":
		it.Kind = item.KindTrack
		it.Artist = m.AlbumArtist
		it.Album = m.Album
		it.Track = m.IndexNumber
	default:
		return item.Item{}, false
	}
	return it, true
}

func pathSet(paths []string) map[string]bool {
	if len(paths) == 0 {
		return nil
	}
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}
