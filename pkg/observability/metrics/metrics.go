package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	requestsSubmitted atomic.Int64
	requestsCompleted atomic.Int64
	requestsFailed    atomic.Int64
	pollAttempts      atomic.Int64
	eventsDiscovered  atomic.Int64
	filesRegistered   atomic.Int64
)

func RequestSubmitted() { requestsSubmitted.Add(1) }

func RequestCompleted() { requestsCompleted.Add(1) }

func RequestFailed() { requestsFailed.Add(1) }

func PollAttempt() { pollAttempts.Add(1) }

func EventsDiscovered(n int) { eventsDiscovered.Add(int64(n)) }

func FilesRegistered(n int) { filesRegistered.Add(int64(n)) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP helioscope_retrieval_requests_submitted_total Provider jobs submitted since process start.\n")
	fmt.Fprintf(w, "# TYPE helioscope_retrieval_requests_submitted_total counter\n")
	fmt.Fprintf(w, "helioscope_retrieval_requests_submitted_total %d\n", requestsSubmitted.Load())

	fmt.Fprintf(w, "# HELP helioscope_retrieval_requests_completed_total Provider jobs that reached completed status.\n")
	fmt.Fprintf(w, "# TYPE helioscope_retrieval_requests_completed_total counter\n")
	fmt.Fprintf(w, "helioscope_retrieval_requests_completed_total %d\n", requestsCompleted.Load())

	fmt.Fprintf(w, "# HELP helioscope_retrieval_requests_failed_total Provider jobs that reached failed status.\n")
	fmt.Fprintf(w, "# TYPE helioscope_retrieval_requests_failed_total counter\n")
	fmt.Fprintf(w, "helioscope_retrieval_requests_failed_total %d\n", requestsFailed.Load())

	fmt.Fprintf(w, "# HELP helioscope_retrieval_poll_attempts_total Status-page polls issued against the cutout provider.\n")
	fmt.Fprintf(w, "# TYPE helioscope_retrieval_poll_attempts_total counter\n")
	fmt.Fprintf(w, "helioscope_retrieval_poll_attempts_total %d\n", pollAttempts.Load())

	fmt.Fprintf(w, "# HELP helioscope_retrieval_events_discovered_total Solar events accumulated from HEK searches.\n")
	fmt.Fprintf(w, "# TYPE helioscope_retrieval_events_discovered_total counter\n")
	fmt.Fprintf(w, "helioscope_retrieval_events_discovered_total %d\n", eventsDiscovered.Load())

	fmt.Fprintf(w, "# HELP helioscope_retrieval_files_registered_total Fits file records derived from cutout listings.\n")
	fmt.Fprintf(w, "# TYPE helioscope_retrieval_files_registered_total counter\n")
	fmt.Fprintf(w, "helioscope_retrieval_files_registered_total %d\n", filesRegistered.Load())
}
