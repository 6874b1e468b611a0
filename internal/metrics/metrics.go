// Package metrics exposes Prometheus instrumentation for the gateway transport.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SendQueueFullRetry counts every retry a send made because the target
	// queue was at capacity (a send that retried three times counts three).
	SendQueueFullRetry = promauto.NewCounter(prometheus.CounterOpts{
		Name: "send_queue_full_retry_total",
		Help: "Total number of send retries made because the target queue was full",
	})

	// SendQueueFullRetryAttempt breaks the above down by attempt number, so
	// operators can see whether most sends succeed on the first retry or
	// exhaust the budget.
	SendQueueFullRetryAttempt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "send_queue_full_retry_attempt_total",
		Help: "Total retries by attempt number",
	}, []string{"attempt"})

	// SendErrors counts send failures by kind: message_too_large, unknown,
	// redis_queue_full.
	SendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "send_errors_total",
		Help: "Total send errors by kind",
	}, []string{"kind"})

	// SendSerializeDuration times payload serialization before enqueue.
	SendSerializeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "send_serialize_seconds",
		Help:    "Time spent serializing a message payload",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	// SendGetConnectionDuration times backend connection acquisition,
	// including any Sentinel master lookup.
	SendGetConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "send_get_connection_seconds",
		Help:    "Time spent obtaining a backend connection",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	// SendEnqueueDuration times the RPUSH/capacity-script round trip,
	// including queue-full retries.
	SendEnqueueDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "send_enqueue_seconds",
		Help:    "Time spent enqueuing a message onto the backend, including retries",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	// ReceiveTimeout counts receives that returned without a message,
	// whether from a real BLPOP timeout or a discarded expired message.
	ReceiveTimeout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receive_timeout_total",
		Help: "Total number of receives that returned no message before their deadline",
	})

	// ChunkReassemblyDuration times client-side reassembly of a chunked
	// message from its first chunk arriving to the last.
	ChunkReassemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chunk_reassembly_seconds",
		Help:    "Time spent reassembling a chunked message on the receiving side",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
)

// RecordQueueFullRetry records a single queue-full retry at the given
// attempt number (1-based).
func RecordQueueFullRetry(attempt int) {
	SendQueueFullRetry.Inc()
	SendQueueFullRetryAttempt.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// RecordSendError records a send failure by kind.
func RecordSendError(kind string) {
	SendErrors.WithLabelValues(kind).Inc()
}

// RecordReceiveTimeout records a receive that returned with no message.
func RecordReceiveTimeout() {
	ReceiveTimeout.Inc()
}
