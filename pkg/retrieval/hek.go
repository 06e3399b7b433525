package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/helioscope/platform/pkg/common/logger"
	"github.com/helioscope/platform/pkg/common/models"
	"github.com/helioscope/platform/pkg/observability/metrics"
)

// HEKConfig carries the endpoint and fan-out policy for the HEK event search.
type HEKConfig struct {
	BaseURL    string
	Workers    int
	MaxSpan    time.Duration // maximum sub-interval length, default 60 days
	TimeFormat string
	Defaults   []Attribute
}

func (c HEKConfig) defaults() []Attribute {
	if c.Defaults != nil {
		return c.Defaults
	}
	return DefaultHEKAttributes()
}

func (c HEKConfig) maxSpan() time.Duration {
	if c.MaxSpan > 0 {
		return c.MaxSpan
	}
	return 60 * 24 * time.Hour
}

func (c HEKConfig) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 5
}

// TimeInterval is one half-open sub-range of a search window.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// PartitionIntervals splits [start, end) into consecutive sub-intervals no
// longer than maxSpan, the last one truncated to end. The provider silently
// caps results per query; keeping each sub-query short stays under the cap.
func PartitionIntervals(start, end time.Time, maxSpan time.Duration) []TimeInterval {
	var intervals []TimeInterval
	for current := start; current.Before(end); current = current.Add(maxSpan) {
		next := current.Add(maxSpan)
		if next.After(end) {
			next = end
		}
		intervals = append(intervals, TimeInterval{Start: current, End: next})
	}
	return intervals
}

// HEKClient searches the event provider over a time window by fanning the
// window out across bounded concurrent sub-queries and merging the decoded
// events under a single lock.
type HEKClient struct {
	cfg      HEKConfig
	httpc    *http.Client
	requests RequestStore
	events   EventStore

	start    time.Time
	end      time.Time
	attrs    []Attribute
	status   Status
	recordID uint

	mu    sync.Mutex
	found []models.SolarEvent
}

// NewHEKClient builds a search client for [start, end) with caller overrides
// merged over the provider defaults.
func NewHEKClient(cfg HEKConfig, httpc *http.Client, requests RequestStore, events EventStore, start, end time.Time, overrides []Attribute) *HEKClient {
	attrs := Merge(cfg.defaults(), overrides)
	attrs = Merge(attrs, []Attribute{
		NewTimeAttribute("start_time", start, "event_starttime", cfg.TimeFormat),
		NewTimeAttribute("end_time", end, "event_endtime", cfg.TimeFormat),
	})
	return &HEKClient{
		cfg:      cfg,
		httpc:    httpc,
		requests: requests,
		events:   events,
		start:    start,
		end:      end,
		attrs:    attrs,
		status:   StatusUnsubmitted,
	}
}

// HEKFromRecord rebuilds a search client from a persisted request record so
// a search can be replayed with its exact original parameters.
func HEKFromRecord(cfg HEKConfig, httpc *http.Client, requests RequestStore, events EventStore, rec *RequestRecord) (*HEKClient, error) {
	attrs := Merge(cfg.defaults(), rec.Attributes)
	startAttr, okStart := Find(attrs, "start_time")
	endAttr, okEnd := Find(attrs, "end_time")
	if !okStart || !okEnd {
		return nil, fmt.Errorf("request record %d has no search window", rec.ID)
	}
	start, okStart := startAttr.Value.(time.Time)
	end, okEnd := endAttr.Value.(time.Time)
	if !okStart || !okEnd {
		return nil, fmt.Errorf("request record %d has a malformed search window", rec.ID)
	}

	status := rec.Status
	if status == "" {
		status = StatusUnsubmitted
	}
	return &HEKClient{
		cfg:      cfg,
		httpc:    httpc,
		requests: requests,
		events:   events,
		start:    start,
		end:      end,
		attrs:    attrs,
		status:   status,
		recordID: rec.ID,
	}, nil
}

// Submit marks the search submitted. The provider answers each sub-query
// synchronously, so there is no job to register ahead of time.
func (h *HEKClient) Submit(ctx context.Context) error {
	if h.status != StatusUnsubmitted {
		return nil
	}
	next, err := h.status.Advance(StatusSubmitted)
	if err != nil {
		return err
	}
	h.status = next
	return nil
}

// Fetch partitions the search window, runs the sub-queries on a bounded
// worker pool and blocks until every worker finishes. A failed sub-interval
// loses only its own slice of the window; the rest of the search proceeds.
func (h *HEKClient) Fetch(ctx context.Context) error {
	if err := h.Submit(ctx); err != nil {
		return err
	}

	intervals := PartitionIntervals(h.start, h.end, h.cfg.maxSpan())
	jobs := make(chan TimeInterval)

	var wg sync.WaitGroup
	for i := 0; i < h.cfg.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for interval := range jobs {
				if err := h.fetchInterval(ctx, interval); err != nil {
					logger.Log.WithError(err).WithFields(map[string]interface{}{
						"start": interval.Start,
						"end":   interval.End,
					}).Warn("Event search sub-query failed")
				}
			}
		}()
	}

	for _, interval := range intervals {
		jobs <- interval
	}
	close(jobs)
	wg.Wait()

	next, err := h.status.Advance(StatusCompleted)
	if err != nil {
		return err
	}
	h.status = next
	metrics.RequestCompleted()
	metrics.EventsDiscovered(len(h.found))

	logger.Log.WithField("events", len(h.found)).Info("Event search completed")
	return nil
}

func (h *HEKClient) fetchInterval(ctx context.Context, interval TimeInterval) error {
	attrs := Merge(h.attrs, []Attribute{
		NewTimeAttribute("start_time", interval.Start, "event_starttime", h.cfg.TimeFormat),
		NewTimeAttribute("end_time", interval.End, "event_endtime", h.cfg.TimeFormat),
	})

	body, err := fetchBody(ctx, h.httpc, queryURL(h.cfg.BaseURL, attrs))
	if err != nil {
		return err
	}

	var payload struct {
		Result []map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return fmt.Errorf("decoding event search response: %w", err)
	}

	decoded := make([]models.SolarEvent, 0, len(payload.Result))
	for _, raw := range payload.Result {
		event, err := models.SolarEventFromHEK(raw, h.cfg.TimeFormat, "HEK")
		if err != nil {
			logger.Log.WithError(err).Warn("Skipping malformed event record")
			continue
		}
		decoded = append(decoded, event)
	}

	// The accumulator is the only state shared between workers; appends are
	// serialized and deduplicated by event id under the lock.
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, event := range decoded {
		if !h.hasEventLocked(event.EventID) {
			h.found = append(h.found, event)
		}
	}
	return nil
}

func (h *HEKClient) hasEventLocked(eventID string) bool {
	for _, e := range h.found {
		if e.EventID == eventID {
			return true
		}
	}
	return false
}

// Save upserts the persisted request record with the full attribute set so
// the search can be replicated later. A search that never started persists
// nothing.
func (h *HEKClient) Save(ctx context.Context) error {
	if h.status == StatusUnsubmitted {
		return nil
	}

	rec := &RequestRecord{
		ID:         h.recordID,
		Kind:       ProviderEventSearch,
		Status:     h.status,
		Attributes: h.attrs,
	}
	if err := h.requests.SaveRequest(ctx, rec); err != nil {
		return fmt.Errorf("saving event search request: %w", err)
	}
	h.recordID = rec.ID
	return nil
}

// SaveData upserts every found event. The first persisted row for an event
// id stays authoritative, so re-running a search never duplicates events.
func (h *HEKClient) SaveData(ctx context.Context) error {
	for i := range h.found {
		stored, err := h.events.UpsertEvent(ctx, h.found[i])
		if err != nil {
			return fmt.Errorf("saving event %s: %w", h.found[i].EventID, err)
		}
		h.found[i] = stored
	}
	return nil
}

func (h *HEKClient) Status() Status { return h.status }

func (h *HEKClient) RecordID() uint { return h.recordID }

// Events returns the accumulated search results.
func (h *HEKClient) Events() []models.SolarEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.SolarEvent, len(h.found))
	copy(out, h.found)
	return out
}
