package upload

import (
	"context"
	"fmt"
	"math"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/retry"
)

// Progress is one byte-level progress event during an upload.
type Progress struct {
	UploadedBytes int64 `json:"uploaded_bytes"`
	TotalBytes    int64 `json:"total_bytes"`
	Percentage    int   `json:"percentage"`
	CurrentChunk  int   `json:"current_chunk"`
	TotalChunks   int   `json:"total_chunks"`
}

// ProgressFunc receives progress events.
type ProgressFunc func(Progress)

// Metrics records chunk upload outcomes. Status is "ok", "retried" for each
// failed attempt before a success, or "failed" once retries are exhausted.
type Metrics interface {
	RecordUploadChunk(status string, bytes int)
	RecordUploadResumed()
}

// Manager splits audio into fixed-size chunks, uploads them with retry,
// tracks resumable session state, and finalizes into a stored file key.
type Manager struct {
	client     *Client
	sessions   SessionStore
	chunkSize  int64
	policy     retry.Policy
	logger     logging.Logger
	onProgress ProgressFunc
	metrics    Metrics
}

// Option configures the manager.
type Option func(*Manager)

// WithChunkSize overrides the 5 MB default chunk size.
func WithChunkSize(size int64) Option {
	return func(m *Manager) {
		if size > 0 {
			m.chunkSize = size
		}
	}
}

// WithRetryPolicy overrides the per-chunk retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithLogger sets a custom logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Manager) { m.onProgress = fn }
}

// WithMetrics registers the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates an upload manager.
func NewManager(client *Client, sessions SessionStore, opts ...Option) *Manager {
	m := &Manager{
		client:    client,
		sessions:  sessions,
		chunkSize: DefaultChunkSize,
		policy:    retry.DefaultPolicy(),
		logger:    logging.MustGlobal(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logging.F("component", "upload_manager"))
	return m
}

// Initiate opens a new resumable session for the given file.
func (m *Manager) Initiate(ctx context.Context, fileName string, size int64, mimeType string) (*Session, error) {
	uploadID, err := m.client.Initiate(ctx, fileName, size, mimeType)
	if err != nil {
		return nil, fmt.Errorf("initiating upload: %w", err)
	}

	session := NewSession(uploadID, fileName, mimeType, size, m.chunkSize)
	if err := m.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("persisting upload session: %w", err)
	}

	m.logger.Info("Upload initiated",
		logging.F("upload_id", uploadID),
		logging.F("file_name", fileName),
		logging.F("total_bytes", size),
		logging.F("total_chunks", session.TotalChunks))
	return session, nil
}

// Upload runs the whole protocol for data: initiate, upload every chunk,
// finalize. It returns the stored file key.
func (m *Manager) Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	session, err := m.Initiate(ctx, fileName, int64(len(data)), mimeType)
	if err != nil {
		return "", err
	}
	if err := m.uploadMissing(ctx, session, data); err != nil {
		return "", err
	}
	return m.Finalize(ctx, session)
}

// Resume continues an interrupted upload. Only chunks absent from the
// session's uploaded set are sent; re-uploading an acknowledged chunk is a
// correctness violation, not just waste.
func (m *Manager) Resume(ctx context.Context, uploadID string, data []byte) (string, error) {
	session, err := m.sessions.Get(ctx, uploadID)
	if err != nil {
		if !mterrors.IsNotFound(err) {
			return "", err
		}
		// Local state lost; rebuild it from the server.
		session, err = m.fetchSession(ctx, uploadID)
		if err != nil {
			return "", err
		}
	}

	m.logger.Info("Resuming upload",
		logging.F("upload_id", uploadID),
		logging.F("uploaded_chunks", len(session.UploadedChunks)),
		logging.F("total_chunks", session.TotalChunks))
	if m.metrics != nil {
		m.metrics.RecordUploadResumed()
	}

	if err := m.uploadMissing(ctx, session, data); err != nil {
		return "", err
	}
	return m.Finalize(ctx, session)
}

// fetchSession rebuilds session state from the server's status endpoint.
func (m *Manager) fetchSession(ctx context.Context, uploadID string) (*Session, error) {
	status, err := m.client.Status(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("fetching upload status: %w", err)
	}

	chunkSize := m.chunkSize
	session := NewSession(uploadID, status.FileName, "", status.TotalSize, chunkSize)
	session.TotalChunks = status.TotalChunks
	for i, idx := range status.UploadedChunks {
		etag := ""
		if i < len(status.ETags) {
			etag = status.ETags[i]
		}
		session.MarkUploaded(idx, etag)
	}
	return session, nil
}

// uploadMissing sends every chunk not yet acknowledged, in index order.
func (m *Manager) uploadMissing(ctx context.Context, session *Session, data []byte) error {
	if int64(len(data)) != session.TotalSize {
		return fmt.Errorf("data size %d does not match session size %d", len(data), session.TotalSize)
	}

	for _, index := range session.MissingChunks() {
		start := int64(index) * session.ChunkSize
		end := start + session.ChunkSize
		if end > session.TotalSize {
			end = session.TotalSize
		}
		chunk := data[start:end]

		attempts := 0
		etag, err := retry.DoValue(ctx, m.policy, func() (string, error) {
			attempts++
			return m.client.UploadChunk(ctx, session.UploadID, index, chunk)
		})
		m.recordChunk(attempts, len(chunk), err)
		if err != nil {
			m.logger.Error("Chunk upload exhausted retries",
				logging.F("upload_id", session.UploadID),
				logging.F("chunk_index", index),
				logging.Err(err))
			return &mterrors.ChunkUploadError{Index: index, Cause: err}
		}

		session.MarkUploaded(index, etag)
		if err := m.sessions.Save(ctx, session); err != nil {
			return fmt.Errorf("persisting upload session: %w", err)
		}
		m.reportProgress(session, index)
	}
	return nil
}

// recordChunk translates one chunk's retry.DoValue outcome into metrics:
// every failed attempt before the final one counts as "retried".
func (m *Manager) recordChunk(attempts, size int, err error) {
	if m.metrics == nil {
		return
	}
	for i := 1; i < attempts; i++ {
		m.metrics.RecordUploadChunk("retried", 0)
	}
	if err != nil {
		m.metrics.RecordUploadChunk("failed", 0)
	} else {
		m.metrics.RecordUploadChunk("ok", size)
	}
}

// Finalize completes the upload. It rejects sessions that do not cover
// every chunk index.
func (m *Manager) Finalize(ctx context.Context, session *Session) (string, error) {
	if !session.IsComplete() {
		return "", fmt.Errorf("uploaded %d of %d chunks: %w",
			len(session.UploadedChunks), session.TotalChunks, mterrors.ErrIncompleteUpload)
	}

	fileKey, err := m.client.Finalize(ctx, session.UploadID, session.OrderedETags())
	if err != nil {
		return "", fmt.Errorf("finalizing upload: %w", err)
	}

	if err := m.sessions.Delete(ctx, session.UploadID); err != nil {
		m.logger.Warn("Finished upload session not deleted",
			logging.F("upload_id", session.UploadID),
			logging.Err(err))
	}

	m.logger.Info("Upload finalized",
		logging.F("upload_id", session.UploadID),
		logging.F("file_key", fileKey))
	return fileKey, nil
}

func (m *Manager) reportProgress(session *Session, currentChunk int) {
	if m.onProgress == nil {
		return
	}
	uploaded := session.UploadedBytes()
	pct := 0
	if session.TotalSize > 0 {
		pct = int(math.Round(float64(uploaded) / float64(session.TotalSize) * 100))
	}
	m.onProgress(Progress{
		UploadedBytes: uploaded,
		TotalBytes:    session.TotalSize,
		Percentage:    pct,
		CurrentChunk:  currentChunk,
		TotalChunks:   session.TotalChunks,
	})
}
