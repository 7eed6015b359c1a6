package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/connection/emby"
	"github.com/veldrane/driftwood/internal/connection/jellyfin"
	"github.com/veldrane/driftwood/internal/connection/lidarr"
)

// connectionResponse is a Connection without the decrypted API key.
type connectionResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	URL           string     `json:"url"`
	HasKey        bool       `json:"has_key"`
	Enabled       bool       `json:"enabled"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toConnectionResponse(c connection.Connection) connectionResponse {
	return connectionResponse{
		ID:            c.ID,
		Name:          c.Name,
		Type:          c.Type,
		URL:           c.URL,
		HasKey:        c.APIKey != "",
		Enabled:       c.Enabled,
		LastCheckedAt: c.LastCheckedAt,
		LastError:     c.LastError,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (r *Router) handleListConnections(w http.ResponseWriter, req *http.Request) {
	conns, err := r.connectionService.List(req.Context())
	if err != nil {
		r.logger.Error("listing connections", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]connectionResponse, len(conns))
	for i, c := range conns {
		resp[i] = toConnectionResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleGetConnection(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	c, err := r.connectionService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	writeJSON(w, http.StatusOK, toConnectionResponse(*c))
}

func (r *Router) handleCreateConnection(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		URL      string `json:"url"`
		APIKey   string `json:"api_key"` //nolint:gosec // G101: not a hardcoded secret, this is a request field
		Enabled  bool   `json:"enabled"`
		SkipTest bool   `json:"skip_test"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := &connection.Connection{
		Name:    body.Name,
		Type:    body.Type,
		URL:     body.URL,
		APIKey:  body.APIKey,
		Enabled: body.Enabled,
	}
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Test-before-save: verify the connection works before persisting.
	if !body.SkipTest {
		if testErr := r.testConnectionDirect(req.Context(), body.Type, body.URL, body.APIKey); testErr != nil {
			r.logger.Info("connection test failed before save",
				"type", body.Type, "url", body.URL, "error", testErr)
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "test_failed",
				"error":  testErr.Error(),
			})
			return
		}
	}

	if err := r.connectionService.Create(req.Context(), c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.SkipTest {
		if err := r.connectionService.RecordCheck(req.Context(), c.ID, nil); err != nil {
			r.logger.Error("recording connection check", "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, toConnectionResponse(*c))
}

func (r *Router) handleUpdateConnection(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	existing, err := r.connectionService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var body struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		URL     string `json:"url"`
		APIKey  string `json:"api_key"` //nolint:gosec // G101: not a hardcoded secret, this is a request field
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Name != "" {
		existing.Name = body.Name
	}
	if body.Type != "" {
		existing.Type = body.Type
	}
	if body.URL != "" {
		existing.URL = body.URL
	}
	if body.APIKey != "" {
		existing.APIKey = body.APIKey
	}
	if body.Enabled != nil {
		existing.Enabled = *body.Enabled
	}

	if err := r.connectionService.Update(req.Context(), existing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toConnectionResponse(*existing))
}

func (r *Router) handleDeleteConnection(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.connectionService.Delete(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) handleTestConnection(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	conn, err := r.connectionService.GetByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	testErr := r.testConnectionDirect(req.Context(), conn.Type, conn.URL, conn.APIKey)
	if recordErr := r.connectionService.RecordCheck(req.Context(), id, testErr); recordErr != nil {
		r.logger.Error("recording connection check", "error", recordErr)
	}

	if testErr != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": testErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// testConnectionDirect tests connectivity without requiring a saved
// connection. The client is built directly from the given URL and key.
func (r *Router) testConnectionDirect(ctx context.Context, connType, url, apiKey string) error {
	testCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	switch connType {
	case connection.TypeEmby:
		return emby.New(url, apiKey, r.logger).TestConnection(testCtx)
	case connection.TypeJellyfin:
		return jellyfin.New(url, apiKey, r.logger).TestConnection(testCtx)
	case connection.TypeLidarr:
		return lidarr.New(url, apiKey, r.logger).TestConnection(testCtx)
	default:
		return nil
	}
}
