package retrieval

import (
	"context"
	"sync"

	"github.com/helioscope/platform/pkg/common/models"
)

// memStore is an in-memory implementation of the store interfaces with the
// same upsert semantics as the gorm repository.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	requests  map[uint]*RequestRecord
	files     map[string]models.FitsFile
	events    map[string]models.SolarEvent
	nextFile  uint
	saveCalls int
}

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[uint]*RequestRecord),
		files:    make(map[string]models.FitsFile),
		events:   make(map[string]models.SolarEvent),
	}
}

func cloneRecord(rec *RequestRecord) *RequestRecord {
	out := *rec
	out.Attributes = make([]Attribute, len(rec.Attributes))
	copy(out.Attributes, rec.Attributes)
	return &out
}

func (m *memStore) FindRequestByID(ctx context.Context, id uint) (*RequestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.requests[id]; ok {
		return cloneRecord(rec), nil
	}
	return nil, ErrNotFound
}

func (m *memStore) FindRequestByJobID(ctx context.Context, kind ProviderKind, jobID string) (*RequestRecord, error) {
	if jobID == "" {
		return nil, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.requests {
		if rec.Kind == kind && rec.JobID == jobID {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindRequestByEvent(ctx context.Context, kind ProviderKind, eventID string) (*RequestRecord, error) {
	if eventID == "" {
		return nil, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.requests {
		if rec.Kind == kind && rec.EventID == eventID {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) SaveRequest(ctx context.Context, rec *RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++

	if rec.ID == 0 && rec.JobID != "" {
		for _, existing := range m.requests {
			if existing.Kind == rec.Kind && existing.JobID == rec.JobID {
				rec.ID = existing.ID
				break
			}
		}
	}
	if rec.ID == 0 {
		m.nextID++
		rec.ID = m.nextID
	}
	m.requests[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *memStore) FindFileBySourceURL(ctx context.Context, sourceURL string) (*models.FitsFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if file, ok := m.files[sourceURL]; ok {
		out := file
		return &out, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) InsertFile(ctx context.Context, file *models.FitsFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.files[file.SourceURL]; ok {
		*file = existing
		return nil
	}
	m.nextFile++
	file.ID = m.nextFile
	m.files[file.SourceURL] = *file
	return nil
}

func (m *memStore) UpsertEvent(ctx context.Context, event models.SolarEvent) (models.SolarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.events[event.EventID]; ok {
		return existing, nil
	}
	m.events[event.EventID] = event
	return event, nil
}

func (m *memStore) FindEvent(ctx context.Context, eventID string) (*models.SolarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event, ok := m.events[eventID]; ok {
		out := event
		return &out, nil
	}
	return nil, ErrNotFound
}
