package metrics

import (
	"fmt"

	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	storageCompilations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provision",
			Subsystem: "curtin",
			Name:      "storage_compilations_total",
			Help:      "A counter for compiled machine storage configurations.",
		},
		[]string{"outcome"},
	)

	counter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provision",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "A counter for requests to the whole provision api.",
		},
		[]string{"code", "method"},
	)

	duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provision",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "A histogram of latencies for requests.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route", "method"},
	)
)

func init() {
	prometheus.MustRegister(storageCompilations, counter, duration)
}

// CountStorageCompilation counts one storage configuration compilation with
// the given outcome, e.g. "ok" or "malformed-graph".
func CountStorageCompilation(outcome string) {
	storageCompilations.WithLabelValues(outcome).Inc()
}

func RestfulMetrics(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	n := time.Now()
	chain.ProcessFilter(req, resp)
	counter.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode()), req.Request.Method).Inc()
	duration.WithLabelValues(req.SelectedRoutePath(), req.Request.Method).Observe(time.Since(n).Seconds())
}
