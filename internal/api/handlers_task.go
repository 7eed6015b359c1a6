package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/veldrane/driftwood/internal/task"
)

const defaultHistoryLimit = 100

func (r *Router) handleTaskState(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.scheduler.State())
}

func (r *Router) handleEnqueueTask(w http.ResponseWriter, req *http.Request) {
	var def task.Definition
	if err := json.NewDecoder(req.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !def.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown task kind: "+string(def.Kind))
		return
	}

	switch def.Kind {
	case task.KindSourceScan:
		if def.SourceID == "" {
			writeError(w, http.StatusBadRequest, "source_id is required for a source scan")
			return
		}
		if _, err := r.sourceService.GetByID(req.Context(), def.SourceID); err != nil {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
	case task.KindLibraryScan:
		if def.LibraryID == "" {
			writeError(w, http.StatusBadRequest, "library_id is required for a library scan")
			return
		}
		if _, err := r.libraryService.GetByID(req.Context(), def.LibraryID); err != nil {
			writeError(w, http.StatusNotFound, "library not found")
			return
		}
	}

	id := r.scheduler.Enqueue(def)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (r *Router) handleRemoveTask(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if !r.scheduler.Remove(id) {
		writeError(w, http.StatusNotFound, "task not queued: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (r *Router) handleReorderQueue(w http.ResponseWriter, req *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	r.scheduler.Reorder(body.IDs)
	writeJSON(w, http.StatusOK, r.scheduler.State())
}

func (r *Router) handleClearQueue(w http.ResponseWriter, req *http.Request) {
	r.scheduler.ClearQueue()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (r *Router) handlePauseQueue(w http.ResponseWriter, req *http.Request) {
	r.scheduler.Pause()
	writeJSON(w, http.StatusOK, r.scheduler.State())
}

func (r *Router) handleResumeQueue(w http.ResponseWriter, req *http.Request) {
	r.scheduler.Resume()
	writeJSON(w, http.StatusOK, r.scheduler.State())
}

func (r *Router) handleCancelTask(w http.ResponseWriter, req *http.Request) {
	state := r.scheduler.State()
	if state.Current == nil {
		writeError(w, http.StatusConflict, "no task is running")
		return
	}
	r.scheduler.CancelCurrent()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "id": state.Current.ID})
}

func (r *Router) handleTaskHistory(w http.ResponseWriter, req *http.Request) {
	tasks, err := r.scheduler.TaskHistory(req.Context(), queryLimit(req))
	if err != nil {
		r.logger.Error("listing task history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (r *Router) handleClearTaskHistory(w http.ResponseWriter, req *http.Request) {
	if err := r.scheduler.ClearTaskHistory(req.Context()); err != nil {
		r.logger.Error("clearing task history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (r *Router) handleMonitoringHistory(w http.ResponseWriter, req *http.Request) {
	entries, err := r.scheduler.MonitoringHistory(req.Context(), queryLimit(req))
	if err != nil {
		r.logger.Error("listing monitoring history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []task.Activity{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (r *Router) handleClearMonitoringHistory(w http.ResponseWriter, req *http.Request) {
	if err := r.scheduler.ClearMonitoringHistory(req.Context()); err != nil {
		r.logger.Error("clearing monitoring history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// queryLimit parses the ?limit= parameter, falling back to the default.
func queryLimit(req *http.Request) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultHistoryLimit
	}
	return n
}
