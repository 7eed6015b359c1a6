package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/veldrane/driftwood/internal/monitor"
	"github.com/veldrane/driftwood/internal/source"
)

func (r *Router) handleMonitorStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.monitor.Status())
}

// monitorConfigResponse exposes intervals in seconds; durations are an
// internal representation.
type monitorConfigResponse struct {
	Enabled         bool           `json:"enabled"`
	StartOnLaunch   bool           `json:"start_on_launch"`
	PauseDuringScan bool           `json:"pause_during_scan"`
	PollIntervals   map[string]int `json:"poll_intervals"`
}

func toMonitorConfigResponse(cfg monitor.Config) monitorConfigResponse {
	resp := monitorConfigResponse{
		Enabled:         cfg.Enabled,
		StartOnLaunch:   cfg.StartOnLaunch,
		PauseDuringScan: cfg.PauseDuringScan,
		PollIntervals:   make(map[string]int, len(cfg.PollIntervals)),
	}
	for t, d := range cfg.PollIntervals {
		resp.PollIntervals[string(t)] = int(d / time.Second)
	}
	return resp
}

func (r *Router) handleMonitorConfig(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, toMonitorConfigResponse(r.monitor.Config()))
}

func (r *Router) handleMonitorSetConfig(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Enabled         *bool          `json:"enabled"`
		StartOnLaunch   *bool          `json:"start_on_launch"`
		PauseDuringScan *bool          `json:"pause_during_scan"`
		PollIntervals   map[string]int `json:"poll_intervals"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := monitor.ConfigUpdate{
		Enabled:         body.Enabled,
		StartOnLaunch:   body.StartOnLaunch,
		PauseDuringScan: body.PauseDuringScan,
	}
	if len(body.PollIntervals) > 0 {
		upd.PollIntervals = make(map[source.Type]time.Duration, len(body.PollIntervals))
		for t, secs := range body.PollIntervals {
			typ := source.Type(t)
			if !typ.Valid() {
				writeError(w, http.StatusBadRequest, "unknown source type: "+t)
				return
			}
			if secs < 1 {
				writeError(w, http.StatusBadRequest, "poll interval must be positive")
				return
			}
			upd.PollIntervals[typ] = time.Duration(secs) * time.Second
		}
	}

	if err := r.monitor.SetConfig(req.Context(), upd); err != nil {
		r.logger.Error("updating monitor config", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toMonitorConfigResponse(r.monitor.Config()))
}

func (r *Router) handleMonitorStart(w http.ResponseWriter, req *http.Request) {
	if err := r.monitor.Start(req.Context()); err != nil {
		r.logger.Error("starting monitor", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, r.monitor.Status())
}

func (r *Router) handleMonitorStop(w http.ResponseWriter, req *http.Request) {
	r.monitor.Stop()
	writeJSON(w, http.StatusOK, r.monitor.Status())
}

func (r *Router) handleMonitorForceCheck(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if _, err := r.sourceService.GetByID(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	changes, err := r.monitor.ForceCheck(req.Context(), id)
	if err != nil {
		r.logger.Error("force check failed", "source_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if changes == nil {
		changes = []monitor.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}
