package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/connection/emby"
	"github.com/veldrane/driftwood/internal/connection/jellyfin"
	"github.com/veldrane/driftwood/internal/connection/lidarr"
	"github.com/veldrane/driftwood/internal/encryption"
	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// setupRemoteSource stores a connection of the given type and a source
// bound to it.
func setupRemoteSource(t *testing.T, connType string) (*connection.Service, *source.Source) {
	t.Helper()
	db, _, _, _ := setupStore(t)

	key, err := encryption.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	enc, err := encryption.New(key)
	if err != nil {
		t.Fatalf("creating encryptor: %v", err)
	}
	connections := connection.NewService(db, enc)

	conn := &connection.Connection{Name: "srv", Type: connType, URL: "http://placeholder.local", APIKey: "k", Enabled: true}
	if err := connections.Create(context.Background(), conn); err != nil {
		t.Fatalf("creating connection: %v", err)
	}
	src := &source.Source{ID: "src-1", Type: source.Type(connType), ConnectionID: conn.ID}
	return connections, src
}

func TestEmbyProvider_PaginatesAndMaps(t *testing.T) {
	connections, src := setupRemoteSource(t, connection.TypeEmby)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("StartIndex")
		w.Header().Set("Content-Type", "application/json")
		if start == "0" {
			// remotePageSize items would be unwieldy; fake a server whose
			// page size is smaller than requested.
			fmt.Fprintf(w, `{"Items":[
				{"Id":"1","Name":"Heat","Type":"Movie","Path":"/m/Heat.mkv","Size":100},
				{"Id":"2","Name":"Virtual","Type":"Movie","Path":"","Size":0}
			],"TotalRecordCount":3}`)
			return
		}
		fmt.Fprintf(w, `{"Items":[
			{"Id":"3","Name":"Ronin","Type":"Movie","Path":"/m/Ronin.mkv","Size":200}
		],"TotalRecordCount":3}`)
	}))
	defer srv.Close()

	p := NewEmbyProvider(connections, connection.NewLimiterMap(), testLogger())
	p.newClient = func(baseURL, apiKey string, logger *slog.Logger) *emby.Client {
		return emby.NewWithHTTPClient(srv.URL, apiKey, srv.Client(), logger)
	}

	lib := &library.Library{MediaKind: library.KindMovie, ExternalID: "lib-1"}
	items, err := p.FetchItems(context.Background(), src, lib, Scope{}, noProgress)
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}

	// The pathless item is skipped.
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}
	if items[0].Title != "Heat" || items[1].Title != "Ronin" {
		t.Errorf("unexpected titles: %q, %q", items[0].Title, items[1].Title)
	}
}

func TestEmbyProvider_NoConnection(t *testing.T) {
	connections, _ := setupRemoteSource(t, connection.TypeEmby)
	p := NewEmbyProvider(connections, connection.NewLimiterMap(), testLogger())

	src := &source.Source{Name: "broken", Type: source.TypePlex}
	_, err := p.FetchItems(context.Background(), src, &library.Library{}, Scope{}, noProgress)
	if err == nil {
		t.Fatal("expected error for source without connection")
	}
}

func TestJellyfinItemMapping(t *testing.T) {
	episode := jellyfin.MediaItem{
		ID: "e1", Name: "Half Loop", Type: "Episode",
		Path: "/tv/Severance/S01E02.mkv", SeriesName: "Severance",
		ParentIndexNumber: 1, IndexNumber: 2,
		DateCreated: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	it, ok := jellyfinItem(episode)
	if !ok {
		t.Fatal("expected episode to map")
	}
	if it.Kind != item.KindEpisode || it.SeriesName != "Severance" || it.Season != 1 || it.Episode != 2 {
		t.Errorf("unexpected mapping: %+v", it)
	}

	audio := jellyfin.MediaItem{
		ID: "t1", Name: "Weird Fishes", Type: "Audio",
		Path: "/music/r/ir/04.flac", Album: "In Rainbows", AlbumArtist: "Radiohead", IndexNumber: 4,
	}
	it, ok = jellyfinItem(audio)
	if !ok {
		t.Fatal("expected audio to map")
	}
	if it.Kind != item.KindTrack || it.Track != 4 || it.Artist != "Radiohead" {
		t.Errorf("unexpected mapping: %+v", it)
	}

	if _, ok := jellyfinItem(jellyfin.MediaItem{Type: "Movie", Path: ""}); ok {
		t.Error("pathless item should not map")
	}
	if _, ok := jellyfinItem(jellyfin.MediaItem{Type: "Folder", Path: "/x"}); ok {
		t.Error("folders should not map")
	}
}

func TestLidarrProvider_BuildsTracks(t *testing.T) {
	connections, src := setupRemoteSource(t, connection.TypeLidarr)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/artist":
			fmt.Fprint(w, `[{"id":1,"artistName":"Radiohead","path":"/music/Radiohead","monitored":true}]`)
		case "/api/v1/album":
			fmt.Fprint(w, `[{"id":5,"title":"OK Computer","artistId":1}]`)
		case "/api/v1/trackfile":
			fmt.Fprint(w, `[
				{"id":11,"albumId":5,"path":"/music/Radiohead/okc/01 Airbag.flac","size":100,"dateAdded":"2024-02-10T08:30:00Z"},
				{"id":12,"albumId":5,"path":"/music/Radiohead/okc/02 Paranoid Android.flac","size":200,"dateAdded":"2024-02-10T08:30:00Z"}
			]`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := NewLidarrProvider(connections, connection.NewLimiterMap(), testLogger())
	p.newClient = func(baseURL, apiKey string, logger *slog.Logger) *lidarr.Client {
		return lidarr.NewWithHTTPClient(srv.URL, apiKey, srv.Client(), logger)
	}

	lib := &library.Library{MediaKind: library.KindMusic}
	items, err := p.FetchItems(context.Background(), src, lib, Scope{}, noProgress)
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	first := items[0]
	if first.Artist != "Radiohead" {
		t.Errorf("Artist = %q, want Radiohead", first.Artist)
	}
	if first.Album != "OK Computer" {
		t.Errorf("Album = %q, want album title from lidarr, not directory", first.Album)
	}
	if first.Track != 1 || first.Title != "Airbag" {
		t.Errorf("unexpected track: %+v", first)
	}
}

func TestLidarrProvider_SinceFilter(t *testing.T) {
	connections, src := setupRemoteSource(t, connection.TypeLidarr)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/artist":
			fmt.Fprint(w, `[{"id":1,"artistName":"Radiohead","path":"/music/Radiohead"}]`)
		case "/api/v1/album":
			fmt.Fprint(w, `[]`)
		case "/api/v1/trackfile":
			fmt.Fprint(w, `[
				{"id":11,"albumId":5,"path":"/music/Radiohead/a/01 Old.flac","size":100,"dateAdded":"2024-01-01T00:00:00Z"},
				{"id":12,"albumId":5,"path":"/music/Radiohead/a/02 New.flac","size":200,"dateAdded":"2024-06-01T00:00:00Z"}
			]`)
		}
	}))
	defer srv.Close()

	p := NewLidarrProvider(connections, connection.NewLimiterMap(), testLogger())
	p.newClient = func(baseURL, apiKey string, logger *slog.Logger) *lidarr.Client {
		return lidarr.NewWithHTTPClient(srv.URL, apiKey, srv.Client(), logger)
	}

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	items, err := p.FetchItems(context.Background(), src, &library.Library{MediaKind: library.KindMusic}, Scope{Since: &since}, noProgress)
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
