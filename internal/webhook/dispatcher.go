package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/veldrane/driftwood/internal/event"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
)

// Dispatcher delivers bus events to matching webhooks.
type Dispatcher struct {
	service    *Service
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(service *Service, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		service:    service,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With(slog.String("component", "webhook")),
		backoff:    time.Second,
	}
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP
// client (for testing).
func NewDispatcherWithHTTPClient(service *Service, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	d := NewDispatcher(service, logger)
	d.httpClient = httpClient
	return d
}

// Subscribe registers the dispatcher for every deliverable event type.
func (d *Dispatcher) Subscribe(bus *event.Bus) {
	for _, t := range DeliveryEvents {
		bus.Subscribe(t, d.HandleEvent)
	}
}

// HandleEvent is an event.Handler that fans the event out to all
// matching webhooks. Delivery happens on background goroutines.
func (d *Dispatcher) HandleEvent(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	webhooks, err := d.service.ListByEvent(ctx, string(e.Type))
	if err != nil {
		d.logger.Error("listing webhooks for event", "type", string(e.Type), "error", err)
		return
	}

	for i := range webhooks {
		w := webhooks[i]
		go d.deliver(w, e)
	}
}

// DeliverOnce posts the event to a single webhook with no retries and
// reports the result. Used to verify an endpoint from the API.
func (d *Dispatcher) DeliverOnce(ctx context.Context, w *Webhook, e event.Event) error {
	body, contentType := formatPayload(w, e)
	return d.send(ctx, w.URL, body, contentType)
}

func (d *Dispatcher) deliver(w Webhook, e event.Event) {
	body, contentType := formatPayload(&w, e)

	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt-1)) * d.backoff)
		}

		lastErr = d.send(context.Background(), w.URL, body, contentType)
		if lastErr == nil {
			d.logger.Debug("webhook delivered",
				"webhook", w.Name,
				"event", string(e.Type),
				"attempt", attempt+1,
			)
			return
		}

		d.logger.Warn("webhook delivery failed",
			"webhook", w.Name,
			"event", string(e.Type),
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	d.logger.Error("webhook delivery exhausted retries",
		"webhook", w.Name,
		"event", string(e.Type),
		"error", lastErr,
	)
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "Driftwood-Webhook/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
