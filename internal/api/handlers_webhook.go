package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/veldrane/driftwood/internal/event"
	"github.com/veldrane/driftwood/internal/webhook"
)

func (r *Router) handleListWebhooks(w http.ResponseWriter, req *http.Request) {
	hooks, err := r.webhookService.List(req.Context())
	if err != nil {
		r.logger.Error("listing webhooks", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hooks == nil {
		hooks = []webhook.Webhook{}
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (r *Router) handleGetWebhook(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	hook, err := r.webhookService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (r *Router) handleCreateWebhook(w http.ResponseWriter, req *http.Request) {
	var hook webhook.Webhook
	if err := json.NewDecoder(req.Body).Decode(&hook); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := r.webhookService.Create(req.Context(), &hook); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (r *Router) handleUpdateWebhook(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	existing, err := r.webhookService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}

	var body struct {
		Name    *string   `json:"name"`
		URL     *string   `json:"url"`
		Type    *string   `json:"type"`
		Events  *[]string `json:"events"`
		Enabled *bool     `json:"enabled"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.URL != nil {
		existing.URL = *body.URL
	}
	if body.Type != nil {
		existing.Type = *body.Type
	}
	if body.Events != nil {
		existing.Events = *body.Events
	}
	if body.Enabled != nil {
		existing.Enabled = *body.Enabled
	}

	if err := r.webhookService.Update(req.Context(), existing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (r *Router) handleDeleteWebhook(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.webhookService.Delete(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleTestWebhook fires a synthetic completion event at one webhook so
// its endpoint and format can be verified.
func (r *Router) handleTestWebhook(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	hook, err := r.webhookService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}

	testEvent := event.Event{
		Type:      event.TaskCompleted,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"task_id":       "test",
			"kind":          "library_scan",
			"label":         "Webhook test",
			"status":        "completed",
			"items_scanned": 0,
			"items_added":   0,
			"items_updated": 0,
			"items_removed": 0,
		},
	}

	if err := r.webhookDispatcher.DeliverOnce(req.Context(), hook, testEvent); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
