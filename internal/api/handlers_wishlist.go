package api

import (
	"encoding/json"
	"net/http"

	"github.com/veldrane/driftwood/internal/wishlist"
)

func (r *Router) handleListWanted(w http.ResponseWriter, req *http.Request) {
	var (
		wants []wishlist.Want
		err   error
	)
	if req.URL.Query().Get("unfulfilled") == "true" {
		wants, err = r.wishlistService.ListUnfulfilled(req.Context())
	} else {
		wants, err = r.wishlistService.List(req.Context())
	}
	if err != nil {
		r.logger.Error("listing wanted items", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if wants == nil {
		wants = []wishlist.Want{}
	}
	writeJSON(w, http.StatusOK, wants)
}

func (r *Router) handleGetWanted(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	want, err := r.wishlistService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "wanted item not found")
		return
	}
	writeJSON(w, http.StatusOK, want)
}

func (r *Router) handleCreateWanted(w http.ResponseWriter, req *http.Request) {
	var want wishlist.Want
	if err := json.NewDecoder(req.Body).Decode(&want); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := r.wishlistService.Create(req.Context(), &want); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, want)
}

func (r *Router) handleUpdateWanted(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	existing, err := r.wishlistService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "wanted item not found")
		return
	}

	var body struct {
		Title *string `json:"title"`
		Kind  *string `json:"kind"`
		Notes *string `json:"notes"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Title != nil {
		existing.Title = *body.Title
	}
	if body.Kind != nil {
		existing.Kind = *body.Kind
	}
	if body.Notes != nil {
		existing.Notes = *body.Notes
	}

	if err := r.wishlistService.Update(req.Context(), existing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (r *Router) handleDeleteWanted(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.wishlistService.Delete(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
