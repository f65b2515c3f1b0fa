package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	submissionCounter     *prometheus.CounterVec
	consumerCounter       *prometheus.CounterVec
	consumerRetryCounter  prometheus.Counter
	publishFailureCounter *prometheus.CounterVec
	staleCreatedGauge     prometheus.Gauge
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		submissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_submissions_total",
			Help: "Transaction submissions by outcome (created, replayed, race_lost, rejected)",
		}, []string{"outcome"})

		consumerCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Consumed transaction events by outcome",
		}, []string{"outcome"})

		consumerRetryCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consumer_retries_total",
			Help: "Handler re-invocations after a retryable failure",
		})

		publishFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Events that could not be handed to the broker",
		}, []string{"topic"})

		staleCreatedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transactions_stale_created",
			Help: "Transactions still CREATED past the reconciliation threshold",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			submissionCounter,
			consumerCounter,
			consumerRetryCounter,
			publishFailureCounter,
			staleCreatedGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementSubmission(outcome string) {
	if submissionCounter == nil {
		return
	}
	submissionCounter.WithLabelValues(outcome).Inc()
}

func IncrementConsumerOutcome(outcome string) {
	if consumerCounter == nil {
		return
	}
	consumerCounter.WithLabelValues(outcome).Inc()
}

func IncrementConsumerRetry() {
	if consumerRetryCounter == nil {
		return
	}
	consumerRetryCounter.Inc()
}

func IncrementPublishFailure(topic string) {
	if publishFailureCounter == nil {
		return
	}
	publishFailureCounter.WithLabelValues(topic).Inc()
}

func SetStaleCreated(count int64) {
	if staleCreatedGauge == nil {
		return
	}
	staleCreatedGauge.Set(float64(count))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
