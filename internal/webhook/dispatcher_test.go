package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veldrane/driftwood/internal/database"
	"github.com/veldrane/driftwood/internal/event"
)

func setupDispatcherTest(t *testing.T) (*Service, *slog.Logger) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(db), logger
}

func TestDispatcher_GenericWebhook(t *testing.T) {
	svc, logger := setupDispatcherTest(t)

	var mu sync.Mutex
	var received map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&received) //nolint:errcheck
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := &Webhook{
		Name:    "test",
		URL:     srv.URL,
		Type:    TypeGeneric,
		Events:  []string{"task.completed"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.HandleEvent(event.Event{
		Type:      event.TaskCompleted,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"label": "Scan Movies", "items_added": 42},
	})

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("expected to receive webhook payload")
	}
	if received["event"] != "task.completed" {
		t.Errorf("event = %v, want task.completed", received["event"])
	}
}

func TestDispatcher_DiscordFormat(t *testing.T) {
	svc, logger := setupDispatcherTest(t)

	var mu sync.Mutex
	var received map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&received) //nolint:errcheck
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := &Webhook{
		Name:    "discord",
		URL:     srv.URL,
		Type:    TypeDiscord,
		Events:  []string{"change.detected"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.HandleEvent(event.Event{
		Type:      event.ChangeDetected,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"source_name":  "NAS",
			"library_name": "Movies",
			"change_type":  "added",
			"item_count":   3,
		},
	})

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("expected to receive webhook payload")
	}
	embeds, ok := received["embeds"].([]any)
	if !ok || len(embeds) == 0 {
		t.Fatal("expected discord embeds array")
	}
	embed := embeds[0].(map[string]any)
	desc, _ := embed["description"].(string)
	if !strings.Contains(desc, "3 item(s) added") || !strings.Contains(desc, "NAS / Movies") {
		t.Errorf("description = %q", desc)
	}
}

func TestDispatcher_RetryOn500(t *testing.T) {
	svc, logger := setupDispatcherTest(t)

	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := &Webhook{
		Name:    "retry-test",
		URL:     srv.URL,
		Type:    TypeGeneric,
		Events:  []string{"task.completed"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.backoff = 20 * time.Millisecond
	dispatcher.HandleEvent(event.Event{
		Type:      event.TaskCompleted,
		Timestamp: time.Now().UTC(),
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && attempts.Load() < 3 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := int(attempts.Load()); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDispatcher_MaxRetries(t *testing.T) {
	svc, logger := setupDispatcherTest(t)

	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := &Webhook{
		Name:    "maxretry-test",
		URL:     srv.URL,
		Type:    TypeGeneric,
		Events:  []string{"task.failed"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.backoff = 20 * time.Millisecond
	dispatcher.HandleEvent(event.Event{
		Type:      event.TaskFailed,
		Timestamp: time.Now().UTC(),
	})

	// Give all three attempts time to land, then confirm no fourth.
	time.Sleep(500 * time.Millisecond)

	if got := int(attempts.Load()); got != 3 {
		t.Errorf("attempts = %d, want 3 (max retries)", got)
	}
}

func TestDispatcher_NoMatchingWebhooks(t *testing.T) {
	svc, logger := setupDispatcherTest(t)

	w := &Webhook{
		Name:    "other",
		URL:     "http://localhost:9999",
		Type:    TypeGeneric,
		Events:  []string{"task.failed"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcher(svc, logger)
	// Should not panic or hang
	dispatcher.HandleEvent(event.Event{
		Type:      event.TaskCompleted,
		Timestamp: time.Now().UTC(),
	})
	time.Sleep(50 * time.Millisecond)
}

func TestDispatcher_SubscribeDeliversFromBus(t *testing.T) {
	svc, logger := setupDispatcherTest(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := &Webhook{
		Name:    "bus-test",
		URL:     srv.URL,
		Type:    TypeGeneric,
		Events:  []string{"monitor.started"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus(logger, 16)
	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.Subscribe(bus)
	go bus.Start()
	defer bus.Stop()

	bus.Publish(event.Event{Type: event.MonitorStarted})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && hits.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() == 0 {
		t.Fatal("expected a delivery via the bus subscription")
	}
}
