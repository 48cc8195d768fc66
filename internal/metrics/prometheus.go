package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dubbing merge service
type Metrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Recording metrics
	RecordingsStored *prometheus.CounterVec
	RecordingSize    prometheus.Histogram

	// Capture take metrics
	TakesStarted   prometheus.Counter
	TakesCompleted prometheus.Counter
	FramesReceived prometheus.Counter
	FramesLost     prometheus.Counter

	// Merge metrics
	Merges              *prometheus.CounterVec
	MergeDuration       prometheus.Histogram
	MergedAudioDuration prometheus.Histogram
	SubstitutedSegments prometheus.Counter

	// Assessment metrics
	AssessmentRequests  prometheus.Counter
	AssessmentSuccesses prometheus.Counter
	AssessmentFailures  prometheus.Counter
	AssessmentDuration  prometheus.Histogram

	// Event metrics
	EventsPublished *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all Prometheus metrics and registers them with reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP packet metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_packets_received_total",
			Help: "Total number of UDP capture packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_packets_processed_total",
			Help: "Total number of UDP capture packets successfully processed",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dubbing_packet_queue_size",
			Help: "Current number of packets in processing queue",
		}),

		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dubbing_active_sessions",
			Help: "Current number of open recording sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_sessions_created_total",
			Help: "Total number of recording sessions created",
		}),
		SessionsDestroyed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_sessions_destroyed_total",
			Help: "Total number of recording sessions removed or expired",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dubbing_session_duration_seconds",
			Help:    "Lifetime of recording sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~85 minutes
		}),

		// Recording metrics
		RecordingsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dubbing_recordings_stored_total",
			Help: "Total number of sentence recordings stored",
		}, []string{"source"}),
		RecordingSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dubbing_recording_size_bytes",
			Help:    "Size of stored sentence recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Capture take metrics
		TakesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_takes_started_total",
			Help: "Total number of streamed capture takes started",
		}),
		TakesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_takes_completed_total",
			Help: "Total number of streamed capture takes stored as recordings",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_frames_received_total",
			Help: "Total number of PCM frames received for capture takes",
		}),
		FramesLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_frames_lost_total",
			Help: "Total number of PCM frames never received for capture takes",
		}),

		// Merge metrics
		Merges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dubbing_merges_total",
			Help: "Total number of merge requests",
		}, []string{"status"}),
		MergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dubbing_merge_processing_seconds",
			Help:    "Time spent building merged recordings",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		MergedAudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dubbing_merged_audio_duration_seconds",
			Help:    "Duration of merged recordings in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		SubstitutedSegments: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_substituted_segments_total",
			Help: "Total number of recordings replaced by silence during merges",
		}),

		// Assessment metrics
		AssessmentRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_assessment_requests_total",
			Help: "Total number of pronunciation assessment requests sent",
		}),
		AssessmentSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_assessment_successes_total",
			Help: "Total number of successful pronunciation assessments",
		}),
		AssessmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dubbing_assessment_failures_total",
			Help: "Total number of failed pronunciation assessments",
		}),
		AssessmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dubbing_assessment_duration_seconds",
			Help:    "Duration of pronunciation assessment requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Event metrics
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dubbing_events_published_total",
			Help: "Total number of merged-recording events published",
		}, []string{"topic", "status"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dubbing_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dubbing_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dubbing_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// SetActiveSessions sets the current number of open sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionDestroyed increments the sessions destroyed counter and records its lifetime
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	m.SessionsDestroyed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordRecordingStored records a stored sentence recording; source is "upload" or "capture"
func (m *Metrics) RecordRecordingStored(source string, sizeBytes int) {
	m.RecordingsStored.WithLabelValues(source).Inc()
	m.RecordingSize.Observe(float64(sizeBytes))
}

// RecordTakeStarted increments the takes started counter
func (m *Metrics) RecordTakeStarted() {
	m.TakesStarted.Inc()
}

// RecordTakeCompleted records a finished take and its frame statistics
func (m *Metrics) RecordTakeCompleted(framesReceived, framesLost uint64) {
	m.TakesCompleted.Inc()
	m.FramesReceived.Add(float64(framesReceived))
	m.FramesLost.Add(float64(framesLost))
}

// RecordMergeSuccess records a successful merge
func (m *Metrics) RecordMergeSuccess(processingSeconds, audioSeconds float64, substituted int) {
	m.Merges.WithLabelValues("success").Inc()
	m.MergeDuration.Observe(processingSeconds)
	m.MergedAudioDuration.Observe(audioSeconds)
	m.SubstitutedSegments.Add(float64(substituted))
}

// RecordMergeFailure records a failed merge
func (m *Metrics) RecordMergeFailure(processingSeconds float64) {
	m.Merges.WithLabelValues("failure").Inc()
	m.MergeDuration.Observe(processingSeconds)
}

// RecordAssessmentRequest increments assessment requests counter
func (m *Metrics) RecordAssessmentRequest() {
	m.AssessmentRequests.Inc()
}

// RecordAssessmentSuccess records a successful assessment
func (m *Metrics) RecordAssessmentSuccess(durationSeconds float64) {
	m.AssessmentSuccesses.Inc()
	m.AssessmentDuration.Observe(durationSeconds)
}

// RecordAssessmentFailure records a failed assessment
func (m *Metrics) RecordAssessmentFailure(durationSeconds float64) {
	m.AssessmentFailures.Inc()
	m.AssessmentDuration.Observe(durationSeconds)
}

// RecordEventPublished records an event publish attempt
func (m *Metrics) RecordEventPublished(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(topic, status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
