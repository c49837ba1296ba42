// Package pipeline orchestrates meeting processing: transcription, chunking,
// map/reduce/refine analysis, and email draft generation.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otherjamesbrown/minute-cli/pkg/audio"
	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
	"github.com/otherjamesbrown/minute-cli/pkg/pipeline/observability"
)

// DirectUploadLimit is the audio size above which the chunked upload path is
// taken instead of an inline transcription call.
const DirectUploadLimit = 10 * 1024 * 1024

// Transcriber turns audio into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio []byte) (string, error)
	TranscribeStored(ctx context.Context, fileKey string) (string, error)
}

// Analyzer runs map/reduce/refine over transcript chunks.
type Analyzer interface {
	Analyze(ctx context.Context, title string, chunks []string) (*meeting.Artifacts, error)
}

// EmailGenerator drafts a follow-up email from final artifacts.
type EmailGenerator interface {
	Generate(ctx context.Context, m *meeting.Meeting, artifacts *meeting.Artifacts) *meeting.EmailDraft
}

// Uploader pushes large audio through the resumable chunked upload protocol
// and returns the stored file key.
type Uploader interface {
	Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
}

// Chunker splits transcripts into bounded segments.
type Chunker interface {
	Split(transcript string) []string
}

// Result is what one processing run produces.
type Result struct {
	Transcript string
	Artifacts  *meeting.Artifacts
	EmailDraft *meeting.EmailDraft
}

// Pipeline drives a meeting from stored audio to completed artifacts. Only
// one run per meeting may be in flight in this process at a time.
type Pipeline struct {
	meetings    meeting.Store
	audio       audio.Store
	transcriber Transcriber
	chunker     Chunker
	analyzer    Analyzer
	email       EmailGenerator
	uploader    Uploader
	reporter    *Reporter
	metrics     *observability.PipelineMetrics
	logger      logging.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithUploader enables the chunked upload path for large audio.
func WithUploader(u Uploader) PipelineOption {
	return func(p *Pipeline) { p.uploader = u }
}

// WithReporter sets the progress reporter.
func WithReporter(r *Reporter) PipelineOption {
	return func(p *Pipeline) { p.reporter = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.PipelineMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

func New(meetings meeting.Store, audioStore audio.Store, transcriber Transcriber, chunker Chunker, analyzer Analyzer, email EmailGenerator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		meetings:    meetings,
		audio:       audioStore,
		transcriber: transcriber,
		chunker:     chunker,
		analyzer:    analyzer,
		email:       email,
		reporter:    NewReporter(nil),
		logger:      logging.NewNopLogger(),
		inflight:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reporter returns the pipeline's progress reporter for polling.
func (p *Pipeline) Reporter() *Reporter {
	return p.reporter
}

// Process runs the full pipeline for one meeting. Any escaping error marks
// the meeting as errored and comes back classified with a user-readable
// message.
func (p *Pipeline) Process(ctx context.Context, meetingID string) (*Result, error) {
	if !p.acquire(meetingID) {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, mterrors.ErrAlreadyProcessing)
	}
	defer p.release(meetingID)

	p.reporter.Reset()

	result, stage, err := p.run(ctx, meetingID)
	if err != nil {
		classified := mterrors.ClassifyError(err, stage)
		p.recordFailure(stage, classified)
		p.markError(ctx, meetingID, classified)
		return nil, classified
	}

	if p.metrics != nil {
		p.metrics.RecordRun("completed")
	}
	return result, nil
}

// RetryProcessing resets an errored meeting back to processing and runs the
// pipeline again.
func (p *Pipeline) RetryProcessing(ctx context.Context, meetingID string) (*Result, error) {
	m, err := meeting.Get(ctx, p.meetings, meetingID)
	if err != nil {
		return nil, err
	}

	m.Status = meeting.StatusProcessing
	m.ErrorMessage = ""
	if err := meeting.Upsert(ctx, p.meetings, m); err != nil {
		return nil, err
	}
	return p.Process(ctx, meetingID)
}

func (p *Pipeline) run(ctx context.Context, meetingID string) (*Result, string, error) {
	m, err := meeting.Get(ctx, p.meetings, meetingID)
	if err != nil {
		return nil, "load", err
	}

	// A meeting with artifacts but no audio can only have its email draft
	// regenerated.
	if m.AudioURI == "" && m.Artifacts != nil {
		result, err := p.regenerateEmail(ctx, m)
		return result, string(meeting.StageGeneratingEmail), err
	}

	logger := p.logger.With(logging.F("meeting_id", meetingID))
	started := time.Now()

	transcript, err := p.transcribe(ctx, m, logger)
	if err != nil {
		return nil, string(meeting.StageTranscribing), err
	}
	p.recordStage(meeting.StageTranscribing, started)

	m.Transcript = transcript
	if err := meeting.Upsert(ctx, p.meetings, m); err != nil {
		return nil, string(meeting.StageTranscribing), err
	}
	if p.metrics != nil {
		p.metrics.RecordTranscript(len(transcript))
	}

	p.reporter.Set(meeting.ProcessingProgress{
		Stage:    meeting.StageChunking,
		Message:  "splitting transcript",
		Progress: 0,
	})
	stageStart := time.Now()
	chunks := p.chunker.Split(transcript)
	p.recordStage(meeting.StageChunking, stageStart)
	logger.Info("transcript chunked", logging.F("chunks", len(chunks)))

	stageStart = time.Now()
	artifacts, err := p.analyzer.Analyze(ctx, m.Title, chunks)
	if err != nil {
		return nil, string(meeting.StageMapping), err
	}
	p.recordStage(meeting.StageRefining, stageStart)

	p.reporter.Set(meeting.ProcessingProgress{
		Stage:   meeting.StageGeneratingEmail,
		Message: "drafting follow-up email",
	})
	stageStart = time.Now()
	draft := p.email.Generate(ctx, m, artifacts)
	artifacts.EmailDraft = draft
	p.recordStage(meeting.StageGeneratingEmail, stageStart)

	m.Artifacts = artifacts
	m.Status = meeting.StatusCompleted
	if err := meeting.Upsert(ctx, p.meetings, m); err != nil {
		return nil, string(meeting.StageGeneratingEmail), err
	}

	p.reporter.Set(meeting.ProcessingProgress{
		Stage:    meeting.StageCompleted,
		Progress: 100,
		Message:  "processing complete",
	})
	logger.Info("meeting processed",
		logging.F("duration", time.Since(started).String()),
		logging.F("action_items", len(artifacts.ActionItems)))

	return &Result{Transcript: transcript, Artifacts: artifacts, EmailDraft: draft}, "", nil
}

func (p *Pipeline) transcribe(ctx context.Context, m *meeting.Meeting, logger logging.Logger) (string, error) {
	p.reporter.Set(meeting.ProcessingProgress{
		Stage:   meeting.StageTranscribing,
		Message: "transcribing audio",
	})

	raw, err := p.audio.Retrieve(ctx, m.AudioURI)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", mterrors.ErrEmptyAudio
	}

	fileName := m.AudioURI + ".webm"
	if p.uploader != nil && len(raw) > DirectUploadLimit {
		logger.Info("audio over direct limit, using chunked upload",
			logging.F("bytes", len(raw)))
		fileKey, err := p.uploader.Upload(ctx, fileName, "audio/webm", raw)
		if err != nil {
			return "", err
		}
		return p.transcriber.TranscribeStored(ctx, fileKey)
	}
	return p.transcriber.Transcribe(ctx, fileName, raw)
}

func (p *Pipeline) regenerateEmail(ctx context.Context, m *meeting.Meeting) (*Result, error) {
	p.reporter.Set(meeting.ProcessingProgress{
		Stage:   meeting.StageGeneratingEmail,
		Message: "regenerating follow-up email",
	})

	draft := p.email.Generate(ctx, m, m.Artifacts)
	m.Artifacts.EmailDraft = draft
	m.Status = meeting.StatusCompleted
	if err := meeting.Upsert(ctx, p.meetings, m); err != nil {
		return nil, err
	}

	p.reporter.Set(meeting.ProcessingProgress{
		Stage:    meeting.StageCompleted,
		Progress: 100,
		Message:  "email draft regenerated",
	})
	return &Result{Transcript: m.Transcript, Artifacts: m.Artifacts, EmailDraft: draft}, nil
}

func (p *Pipeline) markError(ctx context.Context, meetingID string, cause error) {
	m, err := meeting.Get(ctx, p.meetings, meetingID)
	if err != nil {
		p.logger.Error("cannot mark meeting errored", logging.F("meeting_id", meetingID), logging.Err(err))
		return
	}
	m.Status = meeting.StatusError
	m.ErrorMessage = mterrors.UserMessage(cause)
	if err := meeting.Upsert(ctx, p.meetings, m); err != nil {
		p.logger.Error("cannot persist meeting error state", logging.F("meeting_id", meetingID), logging.Err(err))
	}
}

func (p *Pipeline) acquire(meetingID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[meetingID] {
		return false
	}
	p.inflight[meetingID] = true
	return true
}

func (p *Pipeline) release(meetingID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, meetingID)
}

func (p *Pipeline) recordStage(stage meeting.Stage, started time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStage(string(stage), time.Since(started).Seconds())
	}
}

func (p *Pipeline) recordFailure(stage string, classified *mterrors.PipelineError) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordRun("error")
	p.metrics.RecordStageFailure(stage, string(classified.Code))
}
