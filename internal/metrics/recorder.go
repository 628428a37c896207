package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jordanella.com/autoclick-go/internal/acquire"
	"jordanella.com/autoclick-go/internal/cv"
)

const namespace = "autoclick"

// Recorder exports search progress to Prometheus. It implements acquire.Observer.
type Recorder struct {
	registry *prometheus.Registry

	searches        *prometheus.CounterVec
	iterations      prometheus.Counter
	captureFailures prometheus.Counter
	scoringFailures prometheus.Counter
	actionErrors    prometheus.Counter
	bestScore       prometheus.Histogram
	duration        *prometheus.HistogramVec
	active          prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Finished searches by terminal state.",
		}, []string{"outcome"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Completed capture and score iterations.",
		}),
		captureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Monitor captures that failed and were skipped.",
		}),
		scoringFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "Template pairings that could not be scored.",
		}),
		actionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_errors_total",
			Help:      "Searches whose click or key press failed after a match.",
		}),
		bestScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "best_score",
			Help:      "Best similarity score of each finished search.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time from search start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "searches_active",
			Help:      "Searches currently in progress.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
	}

	r.registry.MustRegister(
		r.searches, r.iterations, r.captureFailures, r.scoringFailures, r.actionErrors,
		r.bestScore, r.duration, r.active, r.httpRequests, r.httpDuration,
	)
	return r
}

// Registry exposes the underlying registry for extra collectors
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) SearchStarted(acquire.SearchInfo) {
	r.active.Inc()
}

func (r *Recorder) IterationCompleted(report acquire.IterationReport) {
	r.iterations.Inc()
	r.captureFailures.Add(float64(report.CaptureFailures))
	r.scoringFailures.Add(float64(report.ScoringFailures))
}

func (r *Recorder) SearchFinished(result acquire.Result) {
	r.active.Dec()
	outcome := string(result.State)
	r.searches.WithLabelValues(outcome).Inc()
	r.duration.WithLabelValues(outcome).Observe(result.Elapsed.Seconds())
	if result.BestScore != cv.NoScore {
		r.bestScore.Observe(result.BestScore)
	}
	if result.ActionErr != nil {
		r.actionErrors.Inc()
	}
}
