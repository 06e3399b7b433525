package retrieval

import (
	"context"
	"sync"

	"github.com/helioscope/platform/pkg/common/logger"
)

// Dispatcher drives many independent request lifecycles on a bounded worker
// pool. Each request runs Fetch (which submits if needed), then Save; SaveData
// runs only when the fetch succeeded. A failed request is saved in its failed
// state and never aborts its siblings.
type Dispatcher struct {
	workers int
}

func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{workers: workers}
}

// Run executes every request and returns them in completion order, which is
// unrelated to input order. Progress is logged after each completion.
func (d *Dispatcher) Run(ctx context.Context, requests []ServiceRequest) []ServiceRequest {
	total := len(requests)
	if total == 0 {
		return nil
	}

	workers := d.workers
	if workers > total {
		workers = total
	}

	jobs := make(chan ServiceRequest)
	results := make(chan ServiceRequest)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				d.process(ctx, req)
				results <- req
			}
		}()
	}

	go func() {
		for _, req := range requests {
			jobs <- req
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	finished := make([]ServiceRequest, 0, total)
	for req := range results {
		finished = append(finished, req)
		logger.Log.WithFields(map[string]interface{}{
			"finished": len(finished),
			"pending":  total - len(finished),
		}).Info("Dispatcher progress")
	}
	return finished
}

func (d *Dispatcher) process(ctx context.Context, req ServiceRequest) {
	fetchErr := req.Fetch(ctx)
	if fetchErr != nil {
		logger.Log.WithError(fetchErr).Error("Request fetch failed")
	}

	if err := req.Save(ctx); err != nil {
		logger.Log.WithError(err).Error("Request save failed")
	}

	if fetchErr == nil {
		if err := req.SaveData(ctx); err != nil {
			logger.Log.WithError(err).Error("Request data save failed")
		}
	}
}
