package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/veldrane/driftwood/internal/backup"
)

func (r *Router) handleBackupHistory(w http.ResponseWriter, req *http.Request) {
	backups, err := r.backupService.ListBackups()
	if err != nil {
		r.logger.Error("listing backups", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if backups == nil {
		backups = []backup.BackupInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

func (r *Router) handleBackupCreate(w http.ResponseWriter, req *http.Request) {
	info, err := r.backupService.Backup(req.Context())
	if err != nil {
		r.logger.Error("creating backup", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (r *Router) handleBackupPrune(w http.ResponseWriter, req *http.Request) {
	pruned, err := r.backupService.Prune()
	if err != nil {
		r.logger.Error("pruning backups", "error", err)
		writeError(w, http.StatusInternalServerError, "prune failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}

func (r *Router) handleBackupDownload(w http.ResponseWriter, req *http.Request) {
	filename := req.PathValue("filename")
	if !backup.IsValidBackupFilename(filename) {
		writeError(w, http.StatusBadRequest, "invalid backup filename")
		return
	}

	path := filepath.Join(r.backupService.BackupDir(), filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "backup not found: "+filename)
			return
		}
		r.logger.Error("reading backup file", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, req, path)
}

func (r *Router) handleBackupDelete(w http.ResponseWriter, req *http.Request) {
	filename := req.PathValue("filename")
	if !backup.IsValidBackupFilename(filename) {
		writeError(w, http.StatusBadRequest, "invalid backup filename")
		return
	}

	if err := r.backupService.Delete(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "backup not found: "+filename)
			return
		}
		r.logger.Error("deleting backup", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
