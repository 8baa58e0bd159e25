package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Allocator metrics
	AllocatorOwnedSegments    *prometheus.GaugeVec
	AllocatorReusableSegments *prometheus.GaugeVec
	AllocationFailures        *prometheus.CounterVec

	// Buffer metrics
	EntriesAppended     *prometheus.CounterVec
	AppendsRejected     *prometheus.CounterVec
	EntriesRead         *prometheus.CounterVec
	BufferSegments      *prometheus.GaugeVec
	BufferPayloadLength *prometheus.GaugeVec

	// Workload metrics
	EventsProduced    *prometheus.CounterVec
	BackpressureWaits *prometheus.CounterVec
	EventsDrained     *prometheus.CounterVec
	StagingLatency    *prometheus.HistogramVec

	// Sink metrics
	FilesWritten      *prometheus.CounterVec
	SinkWriteDuration *prometheus.HistogramVec
	FileSize          *prometheus.HistogramVec
	SinkErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Allocator metrics
		AllocatorOwnedSegments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_allocator_owned_segments",
				Help: "Segments currently held by buffers",
			},
			[]string{"allocator"},
		),
		AllocatorReusableSegments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_allocator_reusable_segments",
				Help: "Released segments retained by the allocator for reuse",
			},
			[]string{"allocator"},
		),
		AllocationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_allocation_failures_total",
				Help: "Total number of segment allocations rejected by the ceiling",
			},
			[]string{"allocator"},
		),

		// Buffer metrics
		EntriesAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_entries_appended_total",
				Help: "Total number of successful appends",
			},
			[]string{"buffer"},
		),
		AppendsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_appends_rejected_total",
				Help: "Total number of appends rejected for lack of space",
			},
			[]string{"buffer"},
		),
		EntriesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_entries_read_total",
				Help: "Total number of entries or unit runs consumed",
			},
			[]string{"buffer"},
		),
		BufferSegments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_buffer_segments",
				Help: "Segments in the in-use chain of a buffer",
			},
			[]string{"buffer"},
		),
		BufferPayloadLength: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_buffer_payload_units",
				Help: "Buffered units including length prefixes",
			},
			[]string{"buffer"},
		),

		// Workload metrics
		EventsProduced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_workload_events_produced_total",
				Help: "Total number of events staged by producers",
			},
			[]string{"buffer", "producer"},
		),
		BackpressureWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_workload_backpressure_total",
				Help: "Total number of producer retries caused by a full buffer",
			},
			[]string{"buffer"},
		),
		EventsDrained: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_workload_events_drained_total",
				Help: "Total number of events drained by consumers",
			},
			[]string{"buffer", "status"},
		),
		StagingLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "membuf_workload_staging_latency_seconds",
				Help:    "Time an entry spent in its buffer",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
			},
			[]string{"buffer"},
		),

		// Sink metrics
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_sink_files_written_total",
				Help: "Total number of batch files written",
			},
			[]string{"buffer", "format", "status"},
		),
		SinkWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "membuf_sink_write_duration_seconds",
				Help:    "Duration of batch writes including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"buffer"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "membuf_sink_file_size_bytes",
				Help:    "Size of batch files written",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"buffer", "format"},
		),
		SinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_sink_errors_total",
				Help: "Total number of sink errors",
			},
			[]string{"operation"},
		),
	}
}

// SetAllocatorSegments sets the allocator segment gauges.
func (m *Metrics) SetAllocatorSegments(allocator string, owned, reusable int) {
	m.AllocatorOwnedSegments.WithLabelValues(allocator).Set(float64(owned))
	m.AllocatorReusableSegments.WithLabelValues(allocator).Set(float64(reusable))
}

// IncAllocationFailures increments the allocation failures counter.
func (m *Metrics) IncAllocationFailures(allocator string) {
	m.AllocationFailures.WithLabelValues(allocator).Inc()
}

// IncEntriesAppended increments the appended counter.
func (m *Metrics) IncEntriesAppended(buffer string) {
	m.EntriesAppended.WithLabelValues(buffer).Inc()
}

// IncAppendsRejected increments the rejected appends counter.
func (m *Metrics) IncAppendsRejected(buffer string) {
	m.AppendsRejected.WithLabelValues(buffer).Inc()
}

// IncEntriesRead increments the read counter.
func (m *Metrics) IncEntriesRead(buffer string) {
	m.EntriesRead.WithLabelValues(buffer).Inc()
}

// SetBufferUsage sets the buffer segment and payload gauges.
func (m *Metrics) SetBufferUsage(buffer string, segments int, payloadLength int64) {
	m.BufferSegments.WithLabelValues(buffer).Set(float64(segments))
	m.BufferPayloadLength.WithLabelValues(buffer).Set(float64(payloadLength))
}

// IncEventsProduced increments the produced events counter.
func (m *Metrics) IncEventsProduced(buffer string, producer int) {
	m.EventsProduced.WithLabelValues(buffer, strconv.Itoa(producer)).Inc()
}

// IncBackpressureWaits increments the backpressure counter.
func (m *Metrics) IncBackpressureWaits(buffer string) {
	m.BackpressureWaits.WithLabelValues(buffer).Inc()
}

// IncEventsDrained increments the drained events counter.
func (m *Metrics) IncEventsDrained(buffer string, status string) {
	m.EventsDrained.WithLabelValues(buffer, status).Inc()
}

// ObserveStagingLatency observes the time an entry spent buffered.
func (m *Metrics) ObserveStagingLatency(buffer string, seconds float64) {
	m.StagingLatency.WithLabelValues(buffer).Observe(seconds)
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(buffer, format, status string) {
	m.FilesWritten.WithLabelValues(buffer, format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(buffer, format string, size float64) {
	m.FileSize.WithLabelValues(buffer, format).Observe(size)
}

// ObserveSinkWriteDuration observes sink write duration.
func (m *Metrics) ObserveSinkWriteDuration(buffer string, duration float64) {
	m.SinkWriteDuration.WithLabelValues(buffer).Observe(duration)
}

// IncSinkErrors increments sink errors counter.
func (m *Metrics) IncSinkErrors(operation string) {
	m.SinkErrors.WithLabelValues(operation).Inc()
}
