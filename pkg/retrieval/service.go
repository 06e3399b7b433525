package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/helioscope/platform/pkg/common/config"
	"github.com/helioscope/platform/pkg/common/logger"
	"github.com/helioscope/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// Publisher is the event-bus surface the service needs; the kafka producer
// satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Service is the orchestration facade driving searches and cutout batches
// end to end: client construction, dedup, dispatch, persistence and event
// publication.
type Service struct {
	hekCfg      HEKConfig
	cutoutCfg   CutoutConfig
	httpc       *http.Client
	requests    RequestStore
	files       FileStore
	events      EventStore
	discoveries Publisher
	completions Publisher
	redis       *redis.Client
	dispatcher  *Dispatcher
	dedupTTL    time.Duration
}

// NewService wires the retrieval core from configuration. The publishers and
// rdb may be nil; publication and the cross-process in-flight guard are then
// disabled. discoveries and completions are separate because the kafka
// producer is bound to a single topic.
func NewService(cfg *config.Config, defaults Defaults, httpc *http.Client, requests RequestStore, files FileStore, events EventStore, discoveries, completions Publisher, rdb *redis.Client) *Service {
	return &Service{
		hekCfg: HEKConfig{
			BaseURL:    cfg.HEKBaseURL,
			Workers:    cfg.SearchWorkers,
			MaxSpan:    time.Duration(cfg.SearchIntervalDays) * 24 * time.Hour,
			TimeFormat: cfg.TimeFormatHEK,
			Defaults:   defaults.HEK,
		},
		cutoutCfg: CutoutConfig{
			BaseURL:         cfg.CutoutBaseURL,
			DataURLTemplate: cfg.CutoutDataURLTemplate,
			PollInterval:    cfg.PollInterval,
			PollMaxAttempts: cfg.PollMaxAttempts,
			MinFieldOfView:  cfg.MinFieldOfView,
			TimeFormat:      cfg.TimeFormatHEK,
			FileSavePath:    cfg.FileSavePath,
			FitsPathFormat:  cfg.FitsPathFormat,
			Defaults:        defaults.Cutout,
		},
		httpc:       httpc,
		requests:    requests,
		files:       files,
		events:      events,
		discoveries: discoveries,
		completions: completions,
		redis:       rdb,
		dispatcher:  NewDispatcher(cfg.DispatcherWorkers),
		dedupTTL:    cfg.CutoutDedupTTL,
	}
}

// SearchEvents runs a full HEK search over [start, end), persists the request
// and every found event, and publishes a discovery event per stored event.
func (s *Service) SearchEvents(ctx context.Context, start, end time.Time, overrides []Attribute) ([]models.SolarEvent, error) {
	client := NewHEKClient(s.hekCfg, s.httpc, s.requests, s.events, start, end, overrides)

	if err := client.Fetch(ctx); err != nil {
		return nil, err
	}
	if err := client.Save(ctx); err != nil {
		return nil, err
	}
	if err := client.SaveData(ctx); err != nil {
		return nil, err
	}

	found := client.Events()
	for _, event := range found {
		s.publish(ctx, s.discoveries, "event.discovered", map[string]interface{}{
			"event_id":     event.EventID,
			"sol_standard": event.SOLStandard,
			"start_time":   event.StartTime,
			"end_time":     event.EndTime,
		})
	}
	return found, nil
}

// RequestCutouts builds one cutout client per event id, dedup-first, and
// drives the batch through the dispatcher. Events already being worked on by
// another process are skipped via a redis in-flight marker. The returned
// clients are in completion order.
func (s *Service) RequestCutouts(ctx context.Context, eventIDs []string, extra []Attribute) ([]*CutoutClient, error) {
	requests := make([]ServiceRequest, 0, len(eventIDs))
	for _, eventID := range eventIDs {
		event, err := s.events.FindEvent(ctx, eventID)
		if errors.Is(err, ErrNotFound) {
			logger.Log.WithField("event_id", eventID).Warn("Skipping unknown event")
			continue
		}
		if err != nil {
			return nil, err
		}

		if !s.markInFlight(ctx, eventID) {
			logger.Log.WithField("event_id", eventID).Info("Cutout already in flight elsewhere, skipping")
			continue
		}

		client, err := NewCutoutClientFromEvent(ctx, s.cutoutCfg, s.httpc, s.requests, s.files, *event, extra)
		if err != nil {
			return nil, fmt.Errorf("building cutout client for %s: %w", eventID, err)
		}
		requests = append(requests, client)
	}

	finished := s.dispatcher.Run(ctx, requests)

	clients := make([]*CutoutClient, 0, len(finished))
	for _, req := range finished {
		client := req.(*CutoutClient)
		clients = append(clients, client)
		s.publish(ctx, s.completions, "cutout.completed", map[string]interface{}{
			"job_id": client.JobID(),
			"status": string(client.Status()),
			"files":  len(client.Files()),
		})
	}
	return clients, nil
}

// GetRequest returns a persisted request record by id.
func (s *Service) GetRequest(ctx context.Context, id uint) (*RequestRecord, error) {
	return s.requests.FindRequestByID(ctx, id)
}

// markInFlight claims an event for this process. The marker expires on its
// own; a crashed worker never wedges an event permanently.
func (s *Service) markInFlight(ctx context.Context, eventID string) bool {
	if s.redis == nil {
		return true
	}
	ok, err := s.redis.SetNX(ctx, "cutout:inflight:"+eventID, "1", s.dedupTTL).Result()
	if err != nil {
		logger.Log.WithError(err).Warn("In-flight marker unavailable, proceeding")
		return true
	}
	return ok
}

func (s *Service) publish(ctx context.Context, pub Publisher, eventType string, data map[string]interface{}) {
	if pub == nil {
		return
	}
	if err := pub.PublishEvent(ctx, eventType, "retrieval", data); err != nil {
		logger.Log.WithError(err).WithField("type", eventType).Error("Failed to publish event")
	}
}
