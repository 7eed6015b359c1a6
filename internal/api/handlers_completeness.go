package api

import (
	"net/http"

	"github.com/veldrane/driftwood/internal/analysis"
)

// handleListCompleteness lists completeness records, filtered by ?kind=,
// ?library_id= and ?incomplete=true.
func (r *Router) handleListCompleteness(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	kind := q.Get("kind")
	libraryID := q.Get("library_id")
	incompleteOnly := q.Get("incomplete") == "true"

	if kind != "" && !analysis.ValidKind(kind) {
		writeError(w, http.StatusBadRequest, "unknown completeness kind: "+kind)
		return
	}

	var (
		records []analysis.Record
		err     error
	)
	switch {
	case libraryID != "":
		records, err = r.completenessService.ListByLibrary(req.Context(), libraryID)
	case incompleteOnly && kind != "":
		records, err = r.completenessService.ListIncomplete(req.Context(), kind)
	case kind != "":
		records, err = r.completenessService.ListByKind(req.Context(), kind)
	default:
		writeError(w, http.StatusBadRequest, "kind or library_id is required")
		return
	}
	if err != nil {
		r.logger.Error("listing completeness records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if libraryID != "" {
		records = filterRecords(records, kind, incompleteOnly)
	}
	if records == nil {
		records = []analysis.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// filterRecords applies kind and incompleteness filters to a library
// listing, which the store returns unfiltered.
func filterRecords(records []analysis.Record, kind string, incompleteOnly bool) []analysis.Record {
	out := records[:0]
	for _, rec := range records {
		if kind != "" && rec.Kind != kind {
			continue
		}
		if incompleteOnly && rec.Complete() {
			continue
		}
		out = append(out, rec)
	}
	return out
}
