package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/veldrane/driftwood/internal/settingsio"
)

func (r *Router) handleGetSettings(w http.ResponseWriter, req *http.Request) {
	all, err := r.settingsService.All(req.Context())
	if err != nil {
		r.logger.Error("reading settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (r *Router) handleUpdateSettings(w http.ResponseWriter, req *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "no settings provided")
		return
	}

	for key, value := range body {
		if strings.TrimSpace(key) == "" {
			writeError(w, http.StatusBadRequest, "setting key must not be empty")
			return
		}
		if err := r.settingsService.Set(req.Context(), key, value); err != nil {
			r.logger.Error("persisting setting", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleSettingsExport streams an encrypted configuration export. The
// passphrase arrives in the JSON body and never in the URL.
func (r *Router) handleSettingsExport(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Passphrase == "" {
		writeError(w, http.StatusBadRequest, "passphrase is required")
		return
	}

	env, err := r.settingsIO.Export(req.Context(), body.Passphrase)
	if err != nil {
		r.logger.Error("exporting settings", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	out, err := env.Encode()
	if err != nil {
		r.logger.Error("encoding settings export", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := "driftwood-export-" + time.Now().UTC().Format("20060102-150405") + ".yaml"
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(out) //nolint:errcheck
}

func (r *Router) handleSettingsImport(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, 10<<20)

	passphrase := req.Header.Get("X-Import-Passphrase")
	if passphrase == "" {
		writeError(w, http.StatusBadRequest, "X-Import-Passphrase header is required")
		return
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	env, err := settingsio.ParseEnvelope(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "not a valid export file")
		return
	}

	result, err := r.settingsIO.Import(req.Context(), env, passphrase)
	if err != nil {
		r.logger.Error("importing settings", "error", err)
		writeError(w, http.StatusBadRequest, "import failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
