package api

import (
	"encoding/json"
	"net/http"

	"github.com/veldrane/driftwood/internal/library"
)

func (r *Router) handleListLibraries(w http.ResponseWriter, req *http.Request) {
	var (
		libs []library.Library
		err  error
	)
	if sourceID := req.URL.Query().Get("source_id"); sourceID != "" {
		libs, err = r.libraryService.ListBySource(req.Context(), sourceID)
	} else {
		libs, err = r.libraryService.List(req.Context())
	}
	if err != nil {
		r.logger.Error("listing libraries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if libs == nil {
		libs = []library.Library{}
	}
	writeJSON(w, http.StatusOK, libs)
}

func (r *Router) handleGetLibrary(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	lib, err := r.libraryService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "library not found")
		return
	}

	count, err := r.itemService.CountByLibrary(req.Context(), id)
	if err != nil {
		r.logger.Error("counting library items", "library_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"library":    lib,
		"item_count": count,
	})
}

func (r *Router) handleCreateLibrary(w http.ResponseWriter, req *http.Request) {
	var lib library.Library
	if err := json.NewDecoder(req.Body).Decode(&lib); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := r.sourceService.GetByID(req.Context(), lib.SourceID); err != nil {
		writeError(w, http.StatusBadRequest, "source not found: "+lib.SourceID)
		return
	}

	if err := r.libraryService.Create(req.Context(), &lib); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, lib)
}

func (r *Router) handleUpdateLibrary(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	existing, err := r.libraryService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "library not found")
		return
	}

	var body struct {
		Name       *string `json:"name"`
		MediaKind  *string `json:"media_kind"`
		Path       *string `json:"path"`
		ExternalID *string `json:"external_id"`
		Enabled    *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.MediaKind != nil {
		existing.MediaKind = *body.MediaKind
	}
	if body.Path != nil {
		existing.Path = *body.Path
	}
	if body.ExternalID != nil {
		existing.ExternalID = *body.ExternalID
	}
	if body.Enabled != nil {
		existing.Enabled = *body.Enabled
	}

	if err := r.libraryService.Update(req.Context(), existing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (r *Router) handleDeleteLibrary(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.libraryService.Delete(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
