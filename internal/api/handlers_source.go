package api

import (
	"encoding/json"
	"net/http"

	"github.com/veldrane/driftwood/internal/source"
)

func (r *Router) handleListSources(w http.ResponseWriter, req *http.Request) {
	srcs, err := r.sourceService.List(req.Context())
	if err != nil {
		r.logger.Error("listing sources", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if srcs == nil {
		srcs = []source.Source{}
	}
	writeJSON(w, http.StatusOK, srcs)
}

func (r *Router) handleGetSource(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	src, err := r.sourceService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	libs, err := r.libraryService.ListBySource(req.Context(), id)
	if err != nil {
		r.logger.Error("listing libraries for source", "source_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":    src,
		"libraries": libs,
	})
}

func (r *Router) handleCreateSource(w http.ResponseWriter, req *http.Request) {
	var src source.Source
	if err := json.NewDecoder(req.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if src.Type.Remote() && src.ConnectionID != "" {
		if _, err := r.connectionService.GetByID(req.Context(), src.ConnectionID); err != nil {
			writeError(w, http.StatusBadRequest, "connection not found: "+src.ConnectionID)
			return
		}
	}

	if err := r.sourceService.Create(req.Context(), &src); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A running monitor picks the new source up immediately.
	r.monitor.AddSource(&src)

	writeJSON(w, http.StatusCreated, src)
}

func (r *Router) handleUpdateSource(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	existing, err := r.sourceService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	var body struct {
		Name         *string      `json:"name"`
		Type         *source.Type `json:"type"`
		Path         *string      `json:"path"`
		ConnectionID *string      `json:"connection_id"`
		Enabled      *bool        `json:"enabled"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.Type != nil {
		existing.Type = *body.Type
	}
	if body.Path != nil {
		existing.Path = *body.Path
	}
	if body.ConnectionID != nil {
		existing.ConnectionID = *body.ConnectionID
	}
	if body.Enabled != nil {
		existing.Enabled = *body.Enabled
	}

	if err := r.sourceService.Update(req.Context(), existing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Re-attach so path or type changes take effect; a disabled source
	// just stops being watched.
	r.monitor.RemoveSource(existing.ID)
	if existing.Enabled {
		r.monitor.AddSource(existing)
	}

	writeJSON(w, http.StatusOK, existing)
}

func (r *Router) handleDeleteSource(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.sourceService.Delete(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	r.monitor.RemoveSource(id)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
