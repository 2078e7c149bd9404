// Registers:
//
//	#ratewatch_poll_success_total
//	#ratewatch_poll_errors_total
//	#ratewatch_readings_ingested_total
//	#go_* and process_* system metrics
//
// The exposition handler is mounted on the dashboard router at /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once             sync.Once
	pollSuccess      *prometheus.CounterVec
	pollErrors       *prometheus.CounterVec
	readingsIngested prometheus.Counter
)

func Init() {
	once.Do(func() {
		pollSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_poll_success_total",
				Help: "Number of feed fetches applied to the cache",
			},
			[]string{"mode"},
		)

		pollErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_poll_errors_total",
				Help: "Number of feed fetches that failed and were dropped",
			},
			[]string{"mode"},
		)

		readingsIngested = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratewatch_readings_ingested_total",
				Help: "Number of normalized readings merged into the feed cache",
			},
		)

		_ = prometheus.Register(pollSuccess)
		_ = prometheus.Register(pollErrors)
		_ = prometheus.Register(readingsIngested)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncrementPollSuccess increases the success counter for a polling mode.
func IncrementPollSuccess(mode string) {
	if pollSuccess != nil {
		pollSuccess.WithLabelValues(mode).Inc()
	}
}

// IncrementPollError increases the error counter for a polling mode.
func IncrementPollError(mode string) {
	if pollErrors != nil {
		pollErrors.WithLabelValues(mode).Inc()
	}
}

// AddReadingsIngested increases the ingested readings counter.
func AddReadingsIngested(n int) {
	if readingsIngested != nil && n > 0 {
		readingsIngested.Add(float64(n))
	}
}
