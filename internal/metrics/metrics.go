package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_engine"

var (
	interviewTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interview_transitions_total",
		Help:      "Interview status transitions by target status",
	}, []string{"status"})

	turnsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_appended_total",
		Help:      "Questions appended to interview ledgers",
	}, []string{"mandatory"})

	degradedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collaborator_degraded_total",
		Help:      "Collaborator calls that fell back to a canned result",
	}, []string{"kind"})

	collaboratorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "collaborator_call_duration_seconds",
		Help:      "Duration of calls to generation, evaluation and transcription providers",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"kind"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	realtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connections",
		Help:      "Open realtime interview connections",
	})
)

func RecordTransition(status string) {
	interviewTransitions.WithLabelValues(status).Inc()
}

func RecordTurn(mandatory bool) {
	turnsAppended.WithLabelValues(strconv.FormatBool(mandatory)).Inc()
}

func RecordDegraded(kind string) {
	degradedCalls.WithLabelValues(kind).Inc()
}

func ObserveCollaborator(kind string, started time.Time) {
	collaboratorLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func ConnectionOpened() { realtimeConnections.Inc() }
func ConnectionClosed() { realtimeConnections.Dec() }

// FiberMiddleware records request counts and latency using the route
// pattern rather than the raw path.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Route().Path
		labels := []string{c.Method(), path, strconv.Itoa(status)}
		httpRequests.WithLabelValues(labels...).Inc()
		httpLatency.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

		return err
	}
}
