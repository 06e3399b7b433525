package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/helioscope/platform/pkg/common/config"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Type string
	Data map[string]interface{}
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Data: data})
	return nil
}

func testServiceConfig(hekURL, cutoutURL, templateURL string) *config.Config {
	return &config.Config{
		HEKBaseURL:            hekURL,
		SearchWorkers:         2,
		SearchIntervalDays:    60,
		TimeFormatHEK:         "2006-01-02T15:04:05",
		CutoutBaseURL:         cutoutURL,
		CutoutDataURLTemplate: templateURL,
		PollInterval:          time.Millisecond,
		PollMaxAttempts:       10,
		MinFieldOfView:        120,
		DispatcherWorkers:     4,
		CutoutDedupTTL:        time.Minute,
		FileSavePath:          "/data",
		FitsPathFormat:        "fits/%s/%s",
	}
}

func TestServiceSearchEventsPublishesDiscoveries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("event_starttime")
		end := r.URL.Query().Get("event_endtime")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				hekEventJSON("SOL"+start, start, end),
			},
		})
	}))
	defer server.Close()

	store := newMemStore()
	discoveries := &recordingPublisher{}
	cfg := testServiceConfig(server.URL, "", "")
	svc := NewService(cfg, BuiltinDefaults(), server.Client(), store, store, store, discoveries, nil, nil)

	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	found, err := svc.SearchEvents(context.Background(), start, start.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 event, got %d", len(found))
	}

	if len(store.events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(store.events))
	}
	if len(discoveries.events) != 1 {
		t.Fatalf("expected 1 discovery published, got %d", len(discoveries.events))
	}
	published := discoveries.events[0]
	if published.Type != "event.discovered" {
		t.Fatalf("unexpected event type %q", published.Type)
	}
	if published.Data["event_id"] != found[0].EventID {
		t.Fatalf("published event id %v", published.Data["event_id"])
	}
}

func TestServiceRequestCutouts(t *testing.T) {
	provider := &cutoutProvider{readyAfter: 1}
	server := provider.server()
	defer server.Close()

	store := newMemStore()
	event := testSolarEvent()
	if _, err := store.UpsertEvent(context.Background(), event); err != nil {
		t.Fatalf("seeding event: %v", err)
	}

	completions := &recordingPublisher{}
	cfg := testServiceConfig("", server.URL+"/submit", server.URL+"/archive/%s/")
	svc := NewService(cfg, BuiltinDefaults(), server.Client(), store, store, store, nil, completions, nil)

	clients, err := svc.RequestCutouts(context.Background(), []string{event.EventID, "unknown-event"}, nil)
	if err != nil {
		t.Fatalf("request cutouts failed: %v", err)
	}

	// The unknown id is skipped, not fatal.
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
	client := clients[0]
	if client.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", client.Status())
	}
	if len(store.requests) != 1 {
		t.Fatalf("expected 1 persisted request, got %d", len(store.requests))
	}
	if len(store.files) != 3 {
		t.Fatalf("expected 3 persisted files, got %d", len(store.files))
	}

	if len(completions.events) != 1 {
		t.Fatalf("expected 1 completion published, got %d", len(completions.events))
	}
	published := completions.events[0]
	if published.Type != "cutout.completed" {
		t.Fatalf("unexpected event type %q", published.Type)
	}
	if published.Data["job_id"] != "42" {
		t.Fatalf("published job id %v", published.Data["job_id"])
	}
}
