// Package observability holds the Prometheus metrics for the processing
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for meeting processing.
type PipelineMetrics struct {
	// Run metrics
	MeetingsProcessedTotal *prometheus.CounterVec
	StageSeconds           *prometheus.HistogramVec
	StageFailuresTotal     *prometheus.CounterVec

	// Analysis metrics
	ChunksMappedTotal   *prometheus.CounterVec
	SectionsMergedTotal *prometheus.CounterVec
	TranscriptChars     prometheus.Histogram

	// Upload metrics
	UploadChunksTotal *prometheus.CounterVec
	UploadBytesTotal  prometheus.Counter
	UploadsResumed    prometheus.Counter
}

// NewPipelineMetrics creates a new set of pipeline metrics.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		MeetingsProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minute_meetings_processed_total",
				Help: "Total processing runs by final status",
			},
			[]string{"status"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minute_stage_seconds",
				Help:    "Wall time per pipeline stage",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
			},
			[]string{"stage"},
		),
		StageFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minute_stage_failures_total",
				Help: "Failures per pipeline stage by error code",
			},
			[]string{"stage", "code"},
		),
		ChunksMappedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minute_chunks_mapped_total",
				Help: "Transcript chunks extracted, by outcome",
			},
			[]string{"outcome"},
		),
		SectionsMergedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minute_sections_merged_total",
				Help: "Section merges, by outcome",
			},
			[]string{"outcome"},
		),
		TranscriptChars: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "minute_transcript_chars",
				Help:    "Transcript length in characters",
				Buckets: []float64{500, 1000, 2000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
		),
		UploadChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minute_upload_chunks_total",
				Help: "Upload chunk attempts by status",
			},
			[]string{"status"},
		),
		UploadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "minute_upload_bytes_total",
				Help: "Bytes uploaded across all sessions",
			},
		),
		UploadsResumed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "minute_uploads_resumed_total",
				Help: "Upload sessions resumed rather than restarted",
			},
		),
	}
}

// RecordRun records a finished processing run.
func (m *PipelineMetrics) RecordRun(status string) {
	m.MeetingsProcessedTotal.WithLabelValues(status).Inc()
}

// RecordStage records the wall time of one completed stage.
func (m *PipelineMetrics) RecordStage(stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordStageFailure records a stage failure with its error code.
func (m *PipelineMetrics) RecordStageFailure(stage, code string) {
	m.StageFailuresTotal.WithLabelValues(stage, code).Inc()
}

// RecordChunkMapped records one map-phase result.
func (m *PipelineMetrics) RecordChunkMapped(outcome string) {
	m.ChunksMappedTotal.WithLabelValues(outcome).Inc()
}

// RecordSectionMerged records one reduce-phase result.
func (m *PipelineMetrics) RecordSectionMerged(outcome string) {
	m.SectionsMergedTotal.WithLabelValues(outcome).Inc()
}

// RecordTranscript records the transcript size.
func (m *PipelineMetrics) RecordTranscript(chars int) {
	m.TranscriptChars.Observe(float64(chars))
}

// RecordUploadChunk records one chunk upload attempt.
func (m *PipelineMetrics) RecordUploadChunk(status string, bytes int) {
	m.UploadChunksTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		m.UploadBytesTotal.Add(float64(bytes))
	}
}

// RecordUploadResumed records a resumed upload session.
func (m *PipelineMetrics) RecordUploadResumed() {
	m.UploadsResumed.Inc()
}
