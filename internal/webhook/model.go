package webhook

import (
	"time"

	"github.com/veldrane/driftwood/internal/event"
)

// Webhook is a configured outbound notification endpoint. Events holds
// the bus event names the endpoint subscribes to.
type Webhook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payload formats.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// ValidType reports whether t names a known payload format.
func ValidType(t string) bool {
	switch t {
	case TypeGeneric, TypeDiscord, TypeSlack, TypeGotify:
		return true
	}
	return false
}

// DeliveryEvents is the set of bus events webhooks can subscribe to.
var DeliveryEvents = []event.Type{
	event.TaskCompleted,
	event.TaskFailed,
	event.TaskCancelled,
	event.ChangeDetected,
	event.MonitorStarted,
	event.MonitorStopped,
	event.WishlistMatch,
}
