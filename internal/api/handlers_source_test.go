package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/database"
	"github.com/veldrane/driftwood/internal/encryption"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/monitor"
	"github.com/veldrane/driftwood/internal/settings"
	"github.com/veldrane/driftwood/internal/source"
	"github.com/veldrane/driftwood/internal/task"
)

func testRouterWithSources(t *testing.T) (*Router, *source.Service, *library.Service) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := testLogger()

	sourceSvc := source.NewService(db)
	librarySvc := library.NewService(db)
	settingsSvc := settings.NewService(db)
	history := task.NewHistory(db)
	mon := monitor.New(stubScans{}, sourceSvc, librarySvc, settingsSvc, history, nil, nil, logger)

	key, err := encryption.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	enc, err := encryption.New(key)
	if err != nil {
		t.Fatalf("creating encryptor: %v", err)
	}
	connectionSvc := connection.NewService(db, enc)

	r := NewRouter(RouterDeps{
		SourceService:     sourceSvc,
		LibraryService:    librarySvc,
		ConnectionService: connectionSvc,
		Monitor:           mon,
		DB:                db,
		Logger:            logger,
	})

	return r, sourceSvc, librarySvc
}

func TestHandleListSources_Empty(t *testing.T) {
	r, _, _ := testRouterWithSources(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil)
	w := httptest.NewRecorder()

	r.handleListSources(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var srcs []source.Source
	if err := json.NewDecoder(w.Body).Decode(&srcs); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(srcs) != 0 {
		t.Errorf("expected 0 sources, got %d", len(srcs))
	}
}

func TestHandleCreateSource_Local(t *testing.T) {
	r, _, _ := testRouterWithSources(t)

	body := `{"name":"NAS","type":"local","path":"/mnt/media","enabled":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.handleCreateSource(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var src source.Source
	if err := json.NewDecoder(w.Body).Decode(&src); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if src.ID == "" {
		t.Error("expected non-empty id")
	}
	if src.Name != "NAS" {
		t.Errorf("name = %q, want %q", src.Name, "NAS")
	}
	if src.Type != source.TypeLocal {
		t.Errorf("type = %q, want %q", src.Type, source.TypeLocal)
	}
}

func TestHandleCreateSource_InvalidType(t *testing.T) {
	r, _, _ := testRouterWithSources(t)

	body := `{"name":"Bad","type":"ftp","path":"/x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.handleCreateSource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHandleCreateSource_RemoteUnknownConnection(t *testing.T) {
	r, _, _ := testRouterWithSources(t)

	body := `{"name":"Emby","type":"emby","connection_id":"nonexistent"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.handleCreateSource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHandleGetSource_WithLibraries(t *testing.T) {
	r, srcSvc, libSvc := testRouterWithSources(t)

	src := &source.Source{Name: "NAS", Type: source.TypeLocal, Path: "/mnt/media", Enabled: true}
	if err := srcSvc.Create(context.Background(), src); err != nil {
		t.Fatalf("creating source: %v", err)
	}
	lib := &library.Library{SourceID: src.ID, Name: "Movies", MediaKind: library.KindMovie, Path: "/mnt/media/movies", Enabled: true}
	if err := libSvc.Create(context.Background(), lib); err != nil {
		t.Fatalf("creating library: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/"+src.ID, nil)
	req.SetPathValue("id", src.ID)
	w := httptest.NewRecorder()

	r.handleGetSource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Source    source.Source     `json:"source"`
		Libraries []library.Library `json:"libraries"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Source.ID != src.ID {
		t.Errorf("source id = %q, want %q", resp.Source.ID, src.ID)
	}
	if len(resp.Libraries) != 1 {
		t.Fatalf("expected 1 library, got %d", len(resp.Libraries))
	}
	if resp.Libraries[0].Name != "Movies" {
		t.Errorf("library name = %q, want %q", resp.Libraries[0].Name, "Movies")
	}
}

func TestHandleGetSource_NotFound(t *testing.T) {
	r, _, _ := testRouterWithSources(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	w := httptest.NewRecorder()

	r.handleGetSource(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleUpdateSource_Partial(t *testing.T) {
	r, srcSvc, _ := testRouterWithSources(t)

	src := &source.Source{Name: "NAS", Type: source.TypeLocal, Path: "/mnt/media", Enabled: true}
	if err := srcSvc.Create(context.Background(), src); err != nil {
		t.Fatalf("creating source: %v", err)
	}

	body := `{"name":"NAS Renamed","enabled":false}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sources/"+src.ID, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("id", src.ID)
	w := httptest.NewRecorder()

	r.handleUpdateSource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var updated source.Source
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if updated.Name != "NAS Renamed" {
		t.Errorf("name = %q, want %q", updated.Name, "NAS Renamed")
	}
	if updated.Enabled {
		t.Error("expected source disabled")
	}
	if updated.Path != "/mnt/media" {
		t.Errorf("path = %q, want unchanged %q", updated.Path, "/mnt/media")
	}
}

func TestHandleUpdateSource_NotFound(t *testing.T) {
	r, _, _ := testRouterWithSources(t)

	body := `{"name":"Nope"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sources/nonexistent", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("id", "nonexistent")
	w := httptest.NewRecorder()

	r.handleUpdateSource(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleDeleteSource(t *testing.T) {
	r, srcSvc, _ := testRouterWithSources(t)

	src := &source.Source{Name: "NAS", Type: source.TypeLocal, Path: "/mnt/media", Enabled: true}
	if err := srcSvc.Create(context.Background(), src); err != nil {
		t.Fatalf("creating source: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sources/"+src.ID, nil)
	req.SetPathValue("id", src.ID)
	w := httptest.NewRecorder()

	r.handleDeleteSource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	if _, err := srcSvc.GetByID(context.Background(), src.ID); err == nil {
		t.Error("expected source gone after delete")
	}
}

func TestHandleDeleteSource_NotFound(t *testing.T) {
	r, _, _ := testRouterWithSources(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sources/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	w := httptest.NewRecorder()

	r.handleDeleteSource(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
