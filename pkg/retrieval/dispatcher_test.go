package retrieval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRequest records which lifecycle steps ran and can simulate a failing
// fetch or a slow provider.
type fakeRequest struct {
	mu        sync.Mutex
	fetched   bool
	saved     bool
	savedData bool
	fetchErr  error
	delay     time.Duration
}

func (f *fakeRequest) Submit(ctx context.Context) error { return nil }

func (f *fakeRequest) Fetch(ctx context.Context) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.fetched = true
	f.mu.Unlock()
	return f.fetchErr
}

func (f *fakeRequest) Save(ctx context.Context) error {
	f.mu.Lock()
	f.saved = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRequest) SaveData(ctx context.Context) error {
	f.mu.Lock()
	f.savedData = true
	f.mu.Unlock()
	return nil
}

func TestDispatcherProcessesEveryRequest(t *testing.T) {
	requests := make([]ServiceRequest, 20)
	for i := range requests {
		requests[i] = &fakeRequest{}
	}

	finished := NewDispatcher(4).Run(context.Background(), requests)
	if len(finished) != len(requests) {
		t.Fatalf("expected %d finished requests, got %d", len(requests), len(finished))
	}

	seen := make(map[ServiceRequest]bool)
	for _, req := range finished {
		if seen[req] {
			t.Fatal("request dispatched twice")
		}
		seen[req] = true

		fake := req.(*fakeRequest)
		if !fake.fetched || !fake.saved || !fake.savedData {
			t.Fatal("request missing a lifecycle step")
		}
	}
}

func TestDispatcherSkipsDataSaveOnFetchFailure(t *testing.T) {
	failing := &fakeRequest{fetchErr: errors.New("provider down")}
	healthy := &fakeRequest{}

	finished := NewDispatcher(2).Run(context.Background(), []ServiceRequest{failing, healthy})
	if len(finished) != 2 {
		t.Fatalf("a failed request must not abort its siblings, got %d finished", len(finished))
	}

	if !failing.saved {
		t.Fatal("failed request must still be saved")
	}
	if failing.savedData {
		t.Fatal("failed request must not persist data")
	}
	if !healthy.savedData {
		t.Fatal("healthy request must persist data")
	}
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	var active, peak int32

	requests := make([]ServiceRequest, 12)
	for i := range requests {
		requests[i] = &countingRequest{active: &active, peak: &peak}
	}

	NewDispatcher(3).Run(context.Background(), requests)

	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Fatalf("worker pool exceeded its bound: %d concurrent fetches", p)
	}
}

func TestDispatcherReturnsCompletionOrder(t *testing.T) {
	slow := &fakeRequest{delay: 50 * time.Millisecond}
	fast := &fakeRequest{}

	finished := NewDispatcher(2).Run(context.Background(), []ServiceRequest{slow, fast})
	if len(finished) != 2 {
		t.Fatalf("expected 2 finished requests, got %d", len(finished))
	}
	if finished[0] != ServiceRequest(fast) {
		t.Fatal("expected the fast request to finish first")
	}
}

func TestDispatcherEmptyInput(t *testing.T) {
	if got := NewDispatcher(4).Run(context.Background(), nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

type countingRequest struct {
	active *int32
	peak   *int32
}

func (c *countingRequest) Submit(ctx context.Context) error { return nil }

func (c *countingRequest) Fetch(ctx context.Context) error {
	n := atomic.AddInt32(c.active, 1)
	for {
		p := atomic.LoadInt32(c.peak)
		if n <= p || atomic.CompareAndSwapInt32(c.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(c.active, -1)
	return nil
}

func (c *countingRequest) Save(ctx context.Context) error { return nil }

func (c *countingRequest) SaveData(ctx context.Context) error { return nil }
