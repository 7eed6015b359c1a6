package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/veldrane/driftwood/internal/event"
)

// Discord embed colors.
const (
	colorBlue  = 3447003
	colorGreen = 3066993
	colorRed   = 15158332
)

// formatPayload returns the request body and content-type for a
// webhook delivery.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	switch w.Type {
	case TypeDiscord:
		return formatDiscord(e)
	case TypeSlack:
		return formatSlack(e)
	case TypeGotify:
		return formatGotify(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"event":     string(e.Type),
		"timestamp": e.Timestamp,
		"data":      e.Data,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatDiscord(e event.Event) ([]byte, string) {
	color := colorBlue
	switch e.Type {
	case event.TaskCompleted:
		color = colorGreen
	case event.TaskFailed:
		color = colorRed
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       fmt.Sprintf("Driftwood: %s", e.Type),
				"description": describe(e),
				"color":       color,
				"timestamp":   e.Timestamp.Format("2006-01-02T15:04:05Z"),
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatSlack(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"text": fmt.Sprintf("*Driftwood: %s*\n%s", e.Type, describe(e)),
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatGotify(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"title":   fmt.Sprintf("Driftwood: %s", e.Type),
		"message": describe(e),
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

// describe renders a human-readable one-liner for the notification
// formats. Unknown shapes fall back to the raw data.
func describe(e event.Event) string {
	switch e.Type {
	case event.TaskCompleted:
		return fmt.Sprintf("%s finished: %d added, %d updated, %d removed",
			str(e, "label"), num(e, "items_added"), num(e, "items_updated"), num(e, "items_removed"))
	case event.TaskFailed:
		return fmt.Sprintf("%s failed: %s", str(e, "label"), str(e, "error"))
	case event.TaskCancelled:
		return fmt.Sprintf("%s was cancelled", str(e, "label"))
	case event.ChangeDetected:
		return fmt.Sprintf("%d item(s) %s in %s / %s",
			num(e, "item_count"), str(e, "change_type"), str(e, "source_name"), str(e, "library_name"))
	case event.MonitorStarted:
		return "Library monitoring started"
	case event.MonitorStopped:
		return "Library monitoring stopped"
	case event.WishlistMatch:
		return fmt.Sprintf("%d wanted item(s) matched", num(e, "matched"))
	}

	if e.Data == nil {
		return string(e.Type)
	}
	b, _ := json.Marshal(e.Data)
	return string(b)
}

func str(e event.Event, key string) string {
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return "?"
}

func num(e event.Event, key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
