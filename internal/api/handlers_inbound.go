package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/veldrane/driftwood/internal/source"
	"github.com/veldrane/driftwood/internal/webhook"
)

// handleLidarrWebhook receives inbound webhook events from Lidarr. An
// actionable event (import, download, artist added) triggers an immediate
// check of every enabled lidarr source so the catalogue picks the change
// up without waiting for the next interval.
func (r *Router) handleLidarrWebhook(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, 1<<20)

	var payload webhook.LidarrPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.EventType == "" {
		writeError(w, http.StatusBadRequest, "eventType is required")
		return
	}

	r.logger.Info("received lidarr webhook", "event_type", payload.EventType)

	// Respond immediately; the source checks run in the background.
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	if !payload.Actionable() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	go func() {
		defer cancel()
		r.processLidarrEvent(ctx, payload)
	}()
}

func (r *Router) processLidarrEvent(ctx context.Context, payload webhook.LidarrPayload) {
	desc := payload.Describe()
	if err := r.history.LogMonitoring(ctx, "", desc, payload.EventType); err != nil {
		r.logger.Warn("recording lidarr webhook activity", "error", err)
	}

	srcs, err := r.sourceService.ListEnabled(ctx)
	if err != nil {
		r.logger.Error("listing sources for lidarr webhook", "error", err)
		return
	}

	checked := 0
	for i := range srcs {
		if srcs[i].Type != source.TypeLidarr {
			continue
		}
		checked++
		if _, err := r.monitor.ForceCheck(ctx, srcs[i].ID); err != nil {
			r.logger.Error("source check after lidarr webhook failed",
				"source", srcs[i].Name, "error", err)
		}
	}

	if checked == 0 {
		r.logger.Debug("lidarr webhook received but no lidarr sources configured",
			"event_type", payload.EventType)
	}
}
