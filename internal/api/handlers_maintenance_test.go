package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veldrane/driftwood/internal/database"
	"github.com/veldrane/driftwood/internal/maintenance"
	"github.com/veldrane/driftwood/internal/settings"
)

func testRouterWithMaintenance(t *testing.T) *Router {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := testLogger()
	settingsSvc := settings.NewService(db)
	maintSvc := maintenance.NewService(db, dbPath, settingsSvc, logger)

	return NewRouter(RouterDeps{
		SettingsService:    settingsSvc,
		MaintenanceService: maintSvc,
		DB:                 db,
		Logger:             logger,
	})
}

func TestHandleMaintenanceStatus_Defaults(t *testing.T) {
	r := testRouterWithMaintenance(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/maintenance", nil)
	w := httptest.NewRecorder()

	r.handleMaintenanceStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var status maintenance.Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !status.ScheduleEnabled {
		t.Error("expected schedule enabled by default")
	}
	if status.ScheduleInterval != 24 {
		t.Errorf("schedule interval = %d, want 24", status.ScheduleInterval)
	}
	if status.RetentionDays != 90 {
		t.Errorf("retention days = %d, want 90", status.RetentionDays)
	}
	if status.DBFileSize == 0 {
		t.Error("expected non-zero db file size")
	}
}

func TestHandleMaintenanceOptimize(t *testing.T) {
	r := testRouterWithMaintenance(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/optimize", nil)
	w := httptest.NewRecorder()

	r.handleMaintenanceOptimize(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// The optimize timestamp shows up in a fresh status read.
	sw := httptest.NewRecorder()
	r.handleMaintenanceStatus(sw, httptest.NewRequest(http.MethodGet, "/api/v1/maintenance", nil))

	var status maintenance.Status
	if err := json.NewDecoder(sw.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.LastOptimizeAt == "" {
		t.Error("expected last_optimize_at recorded")
	}
}

func TestHandleMaintenanceVacuum(t *testing.T) {
	r := testRouterWithMaintenance(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/vacuum", nil)
	w := httptest.NewRecorder()

	r.handleMaintenanceVacuum(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHandleMaintenancePrune(t *testing.T) {
	r := testRouterWithMaintenance(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/prune", nil)
	w := httptest.NewRecorder()

	r.handleMaintenancePrune(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]int64
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["pruned"] != 0 {
		t.Errorf("pruned = %d, want 0 on empty history", resp["pruned"])
	}
}

func TestHandleMaintenanceSchedule(t *testing.T) {
	r := testRouterWithMaintenance(t)

	body := `{"enabled":false,"interval_hours":12,"retention_days":30}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/maintenance/schedule", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.handleMaintenanceSchedule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var status maintenance.Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if status.ScheduleEnabled {
		t.Error("expected schedule disabled")
	}
	if status.ScheduleInterval != 12 {
		t.Errorf("schedule interval = %d, want 12", status.ScheduleInterval)
	}
	if status.RetentionDays != 30 {
		t.Errorf("retention days = %d, want 30", status.RetentionDays)
	}
}

func TestHandleMaintenanceSchedule_InvalidInterval(t *testing.T) {
	r := testRouterWithMaintenance(t)

	body := `{"interval_hours":0}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/maintenance/schedule", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.handleMaintenanceSchedule(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}
