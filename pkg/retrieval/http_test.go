package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func newTestHandler(t *testing.T, store *memStore, providerURL string) *mux.Router {
	t.Helper()

	cfg := testServiceConfig(providerURL, providerURL+"/submit", providerURL+"/archive/%s/")
	svc := NewService(cfg, BuiltinDefaults(), http.DefaultClient, store, store, store, nil, nil, nil)

	router := mux.NewRouter()
	NewHTTPHandler(svc, 1<<20).Register(router)
	return router
}

func TestHandleSearchRejectsBadPayload(t *testing.T) {
	router := newTestHandler(t, newMemStore(), "http://unused")

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"start_time":`},
		{"inverted window", `{"start_time":"2019-02-01T00:00:00Z","end_time":"2019-01-01T00:00:00Z"}`},
		{"empty window", `{"start_time":"2019-01-01T00:00:00Z","end_time":"2019-01-01T00:00:00Z"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/searches", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestHandleCutoutsRequiresEventIDs(t *testing.T) {
	router := newTestHandler(t, newMemStore(), "http://unused")

	req := httptest.NewRequest(http.MethodPost, "/cutouts", strings.NewReader(`{"event_ids":[]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleGetRequest(t *testing.T) {
	store := newMemStore()
	router := newTestHandler(t, store, "http://unused")

	rec := &RequestRecord{
		Kind:   ProviderCutout,
		Status: StatusSubmitted,
		JobID:  "42",
		Attributes: []Attribute{
			NewQueryAttribute("channel", 304, "obs_channelid"),
		},
	}
	if err := store.SaveRequest(context.Background(), rec); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/requests/1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		ID         uint   `json:"id"`
		Kind       string `json:"kind"`
		Status     string `json:"status"`
		JobID      string `json:"job_id"`
		Parameters []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Kind != "cutout" || body.Status != "submitted" || body.JobID != "42" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Parameters) != 1 || body.Parameters[0].Name != "channel" || body.Parameters[0].Value != "304" {
		t.Fatalf("unexpected parameters: %+v", body.Parameters)
	}
}

func TestHandleGetRequestNotFound(t *testing.T) {
	router := newTestHandler(t, newMemStore(), "http://unused")

	req := httptest.NewRequest(http.MethodGet, "/requests/999", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/requests/not-a-number", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
