package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func (r *Router) handleMaintenanceStatus(w http.ResponseWriter, req *http.Request) {
	status, err := r.maintenanceService.Status(req.Context())
	if err != nil {
		r.logger.Error("reading maintenance status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (r *Router) handleMaintenanceOptimize(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), time.Minute)
	defer cancel()

	if err := r.maintenanceService.Optimize(ctx); err != nil {
		r.logger.Error("optimize failed", "error", err)
		writeError(w, http.StatusInternalServerError, "optimize failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "optimized"})
}

// handleMaintenanceVacuum rebuilds the database file. VACUUM rewrites
// every page, so the timeout is generous.
func (r *Router) handleMaintenanceVacuum(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Minute)
	defer cancel()

	if err := r.maintenanceService.Vacuum(ctx); err != nil {
		r.logger.Error("vacuum failed", "error", err)
		writeError(w, http.StatusInternalServerError, "vacuum failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "vacuumed"})
}

func (r *Router) handleMaintenancePrune(w http.ResponseWriter, req *http.Request) {
	pruned, err := r.maintenanceService.PruneHistory(req.Context())
	if err != nil {
		r.logger.Error("pruning history", "error", err)
		writeError(w, http.StatusInternalServerError, "prune failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pruned": pruned})
}

func (r *Router) handleMaintenanceSchedule(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Enabled       *bool `json:"enabled"`
		IntervalHours *int  `json:"interval_hours"`
		RetentionDays *int  `json:"retention_days"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := req.Context()
	if body.Enabled != nil {
		if err := r.settingsService.SetBool(ctx, "maintenance_enabled", *body.Enabled); err != nil {
			r.logger.Error("persisting maintenance_enabled", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	if body.IntervalHours != nil {
		if *body.IntervalHours < 1 {
			writeError(w, http.StatusBadRequest, "interval_hours must be at least 1")
			return
		}
		if err := r.settingsService.SetInt(ctx, "maintenance_interval_hours", *body.IntervalHours); err != nil {
			r.logger.Error("persisting maintenance_interval_hours", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	if body.RetentionDays != nil {
		if *body.RetentionDays < 0 {
			writeError(w, http.StatusBadRequest, "retention_days must not be negative")
			return
		}
		if err := r.settingsService.SetInt(ctx, "maintenance_retention_days", *body.RetentionDays); err != nil {
			r.logger.Error("persisting maintenance_retention_days", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	status, err := r.maintenanceService.Status(ctx)
	if err != nil {
		r.logger.Error("reading maintenance status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
