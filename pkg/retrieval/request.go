package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/helioscope/platform/pkg/common/models"
)

var (
	// ErrNotFound is returned by stores when no record matches a lookup.
	ErrNotFound = errors.New("record not found")
	// ErrPollTimeout is returned when a provider job does not become ready
	// within the configured attempt budget.
	ErrPollTimeout = errors.New("provider poll timed out")
)

// ProviderKind identifies which external provider a request targets.
type ProviderKind string

const (
	ProviderEventSearch ProviderKind = "event-search"
	ProviderCutout      ProviderKind = "cutout"
)

// Status tracks a request through its provider lifecycle. Transitions only
// move forward: unsubmitted -> submitted -> completed, with failed reachable
// from submitted.
type Status string

const (
	StatusUnsubmitted Status = "unsubmitted"
	StatusSubmitted   Status = "submitted"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusUnsubmitted:
		return 0
	case StatusSubmitted:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// Advance returns the next status, refusing any transition that would move
// the request backwards or reach failed from anywhere but submitted.
func (s Status) Advance(next Status) (Status, error) {
	if next == StatusFailed && s != StatusSubmitted {
		return s, fmt.Errorf("cannot fail a %s request", s)
	}
	if next.rank() <= s.rank() && next != s {
		return s, fmt.Errorf("cannot move status from %s to %s", s, next)
	}
	return next, nil
}

// ServiceRequest is the lifecycle every provider client implements. Submit
// registers the work with the provider, Fetch blocks until results are
// available, Save upserts the persisted request record and SaveData persists
// the derived domain records.
type ServiceRequest interface {
	Submit(ctx context.Context) error
	Fetch(ctx context.Context) error
	Save(ctx context.Context) error
	SaveData(ctx context.Context) error
}

// RequestRecord is the durable representation of a provider request.
type RequestRecord struct {
	ID         uint
	Kind       ProviderKind
	Status     Status
	JobID      string
	EventID    string
	Attributes []Attribute
}

// RequestStore is the persistence boundary for request records. SaveRequest
// upserts: an existing record with the same identity is updated in place and
// attributes reconcile by name.
type RequestStore interface {
	FindRequestByID(ctx context.Context, id uint) (*RequestRecord, error)
	FindRequestByJobID(ctx context.Context, kind ProviderKind, jobID string) (*RequestRecord, error)
	FindRequestByEvent(ctx context.Context, kind ProviderKind, eventID string) (*RequestRecord, error)
	SaveRequest(ctx context.Context, rec *RequestRecord) error
}

// FileStore persists fits file records, deduplicating on source URL.
type FileStore interface {
	FindFileBySourceURL(ctx context.Context, sourceURL string) (*models.FitsFile, error)
	InsertFile(ctx context.Context, file *models.FitsFile) error
}

// EventStore persists solar events. The first persisted row for an event id
// is authoritative: upserting an already-stored event returns the stored row.
type EventStore interface {
	UpsertEvent(ctx context.Context, event models.SolarEvent) (models.SolarEvent, error)
	FindEvent(ctx context.Context, eventID string) (*models.SolarEvent, error)
}
