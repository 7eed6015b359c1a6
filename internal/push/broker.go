package push

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/veldrane/driftwood/internal/metrics"
)

const clientBuffer = 32

// Broker fans application events out to connected SSE clients. Publish
// never blocks: a client that cannot keep up loses events rather than
// stalling the publisher.
type Broker struct {
	logger    *slog.Logger
	heartbeat time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	ch chan message
}

type message struct {
	event string
	data  []byte
}

// NewBroker creates an SSE broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:    logger.With(slog.String("component", "push")),
		heartbeat: 30 * time.Second,
		clients:   make(map[*client]struct{}),
	}
}

// Publish sends a named event with a JSON payload to every connected
// client. Safe to call from any goroutine.
func (b *Broker) Publish(eventName string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		b.logger.Warn("marshaling push event", "event", eventName, "error", err)
		return
	}
	msg := message{event: eventName, data: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.ch <- msg:
		default:
			// Slow client; drop rather than block.
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close rejects new connections. Existing streams end when their
// request contexts are canceled by server shutdown.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	c := &client{ch: make(chan message, clientBuffer)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	b.clients[c] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	defer b.remove(c)

	metrics.SSEClients.Set(float64(n))
	b.logger.Debug("client connected", "clients", n)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Greeting makes proxies flush headers immediately.
	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(b.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-c.ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.event, msg.data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (b *Broker) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	n := len(b.clients)
	b.mu.Unlock()
	metrics.SSEClients.Set(float64(n))
	b.logger.Debug("client disconnected", "clients", n)
}
