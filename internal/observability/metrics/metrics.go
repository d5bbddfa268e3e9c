// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wyoming_stt"

// Finalize outcomes.
const (
	OutcomeTranscript = "transcript"
	OutcomeEmpty      = "empty"
	OutcomeError      = "error"
)

// Connection outcomes.
const (
	ConnClosed    = "closed"
	ConnMalformed = "malformed"
	ConnIOError   = "io_error"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Connection metrics
	ConnectionsTotal   prometheus.Counter
	ConnectionsActive  prometheus.Gauge
	ConnectionsEnded   *prometheus.CounterVec
	ConnectionDuration prometheus.Histogram

	// Protocol metrics
	EventsReceived  *prometheus.CounterVec
	MalformedFrames prometheus.Counter

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter
	BufferOverflows     prometheus.Counter

	// Utterance metrics
	Finalizes     *prometheus.CounterVec
	UtteranceSize prometheus.Histogram

	// STT metrics
	STTLatency *prometheus.HistogramVec
	STTErrors  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Live feed
	LiveSubscribers prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of Wyoming connections accepted",
		}),
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open Wyoming connections",
		}),
		ConnectionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_ended_total",
			Help:      "Total number of Wyoming connections ended, by outcome",
		}, []string{"outcome"}),
		ConnectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Duration of Wyoming connections in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of Wyoming events received, by type",
		}, []string{"type"}),
		MalformedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Total number of undecodable frames",
		}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks received",
		}),
		BufferOverflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_overflows_total",
			Help:      "Total number of audio chunks rejected by the utterance size cap",
		}),

		Finalizes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizes_total",
			Help:      "Total number of audio-stop finalizations, by outcome",
		}, []string{"outcome"}),
		UtteranceSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_audio_bytes",
			Help:      "Size of finalized utterances in bytes",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),

		STTLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech-to-text request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider", "outcome"}),
		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "kind"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		LiveSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Number of connected live transcript subscribers",
		}),
	}
}

// RecordConnectionStart records a new connection.
func (m *Metrics) RecordConnectionStart() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionEnd records a connection ending.
func (m *Metrics) RecordConnectionEnd(outcome string, durationSeconds float64) {
	m.ConnectionsActive.Dec()
	m.ConnectionDuration.Observe(durationSeconds)
	m.ConnectionsEnded.WithLabelValues(outcome).Inc()
}

// RecordEvent records an inbound event by type.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordMalformedFrame records an undecodable frame.
func (m *Metrics) RecordMalformedFrame() {
	m.MalformedFrames.Inc()
}

// RecordAudioReceived records one audio chunk.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordBufferOverflow records a chunk rejected by the size cap.
func (m *Metrics) RecordBufferOverflow() {
	m.BufferOverflows.Inc()
}

// RecordFinalize records the outcome of an audio-stop.
func (m *Metrics) RecordFinalize(outcome string, audioBytes int) {
	m.Finalizes.WithLabelValues(outcome).Inc()
	if audioBytes > 0 {
		m.UtteranceSize.Observe(float64(audioBytes))
	}
}

// RecordSTTRequest records one provider request.
func (m *Metrics) RecordSTTRequest(provider, outcome string, latencySeconds float64) {
	m.STTLatency.WithLabelValues(provider, outcome).Observe(latencySeconds)
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, kind string) {
	m.STTErrors.WithLabelValues(provider, kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
