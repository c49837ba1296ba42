package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/pipeline/observability"
	"github.com/otherjamesbrown/minute-cli/pkg/retry"
)

// fakeGateway is an in-memory implementation of the upload protocol.
type fakeGateway struct {
	mu          sync.Mutex
	nextID      int
	sessions    map[string]*fakeServerSession
	chunkCalls  map[string][]int // uploadID -> chunk indices received, in order
	failChunks  map[int]int      // chunk index -> remaining failures to inject
	failAlways  map[int]bool
}

type fakeServerSession struct {
	fileName string
	size     int64
	chunks   map[int][]byte
	etags    map[int]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:   make(map[string]*fakeServerSession),
		chunkCalls: make(map[string][]int),
		failChunks: make(map[int]int),
		failAlways: make(map[int]bool),
	}
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /uploads/initiate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FileName string `json:"fileName"`
			FileSize int64  `json:"fileSize"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		g.mu.Lock()
		g.nextID++
		id := fmt.Sprintf("up-%d", g.nextID)
		g.sessions[id] = &fakeServerSession{
			fileName: req.FileName,
			size:     req.FileSize,
			chunks:   make(map[int][]byte),
			etags:    make(map[int]string),
		}
		g.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]string{"uploadId": id})
	})
	mux.HandleFunc("POST /uploads/{id}/chunk", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		index, _ := strconv.Atoi(r.FormValue("chunkIndex"))
		file, _, err := r.FormFile("chunk")
		if err != nil {
			http.Error(w, "missing chunk", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)

		g.mu.Lock()
		defer g.mu.Unlock()

		if g.failAlways[index] {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		if g.failChunks[index] > 0 {
			g.failChunks[index]--
			http.Error(w, "injected transient failure", http.StatusServiceUnavailable)
			return
		}

		sess := g.sessions[id]
		sess.chunks[index] = data
		etag := fmt.Sprintf("etag-%d", index)
		sess.etags[index] = etag
		g.chunkCalls[id] = append(g.chunkCalls[id], index)
		_ = json.NewEncoder(w).Encode(map[string]string{"etag": etag})
	})
	mux.HandleFunc("POST /uploads/{id}/finalize", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		g.mu.Lock()
		defer g.mu.Unlock()
		sess := g.sessions[id]
		_ = json.NewEncoder(w).Encode(map[string]string{"fileKey": "files/" + sess.fileName})
	})
	mux.HandleFunc("GET /uploads/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		g.mu.Lock()
		defer g.mu.Unlock()
		sess, ok := g.sessions[id]
		if !ok {
			http.Error(w, "unknown upload", http.StatusNotFound)
			return
		}
		indices := make([]int, 0, len(sess.chunks))
		for i := range sess.chunks {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		etags := make([]string, 0, len(indices))
		for _, i := range indices {
			etags = append(etags, sess.etags[i])
		}
		_ = json.NewEncoder(w).Encode(StatusResponse{
			FileName:       sess.fileName,
			TotalSize:      sess.size,
			TotalChunks:    int((sess.size + 7) / 8), // chunk size 8 in these tests
			UploadedChunks: indices,
			ETags:          etags,
		})
	})
	return mux
}

// assembled returns the concatenated chunks for the upload.
func (g *fakeGateway) assembled(uploadID string) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess := g.sessions[uploadID]
	indices := make([]int, 0, len(sess.chunks))
	for i := range sess.chunks {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	var buf bytes.Buffer
	for _, i := range indices {
		buf.Write(sess.chunks[i])
	}
	return buf.Bytes()
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, BackoffFactor: 2.0}
}

func newTestManager(t *testing.T, gw *fakeGateway, opts ...Option) *Manager {
	t.Helper()
	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "test-key", srv.Client())
	base := []Option{
		WithChunkSize(8),
		WithRetryPolicy(fastRetry()),
		WithLogger(logging.NewNopLogger()),
	}
	return NewManager(client, NewFileSessionStore(t.TempDir()), append(base, opts...)...)
}

func TestSession_TotalChunks(t *testing.T) {
	tests := []struct {
		size      int64
		chunkSize int64
		want      int
	}{
		{0, 8, 0},
		{1, 8, 1},
		{8, 8, 1},
		{9, 8, 2},
		{16, 8, 2},
		{17, 8, 3},
		{5*1024*1024 + 1, DefaultChunkSize, 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("size_%d", tt.size), func(t *testing.T) {
			s := NewSession("u", "f", "audio/webm", tt.size, tt.chunkSize)
			assert.Equal(t, tt.want, s.TotalChunks)
		})
	}
}

func TestUpload_AllChunksArriveInOrder(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(t, gw)

	data := []byte("0123456701234567012345") // 22 bytes -> 3 chunks of size 8
	key, err := m.Upload(context.Background(), "meeting.webm", "audio/webm", data)
	require.NoError(t, err)
	assert.Equal(t, "files/meeting.webm", key)
	assert.Equal(t, data, gw.assembled("up-1"))
	assert.Equal(t, []int{0, 1, 2}, gw.chunkCalls["up-1"])
}

func TestUpload_TransientChunkFailureRetried(t *testing.T) {
	gw := newFakeGateway()
	gw.failChunks[1] = 2 // chunk 1 fails twice, then succeeds
	m := newTestManager(t, gw)

	data := bytes.Repeat([]byte("a"), 20)
	_, err := m.Upload(context.Background(), "m.webm", "audio/webm", data)
	require.NoError(t, err)
	assert.Equal(t, data, gw.assembled("up-1"))
}

func TestUpload_ExhaustedRetriesFailWithChunkIndex(t *testing.T) {
	gw := newFakeGateway()
	gw.failAlways[2] = true
	m := newTestManager(t, gw)

	data := bytes.Repeat([]byte("b"), 24) // 3 chunks
	_, err := m.Upload(context.Background(), "m.webm", "audio/webm", data)
	require.Error(t, err)

	var cue *mterrors.ChunkUploadError
	require.ErrorAs(t, err, &cue)
	assert.Equal(t, 2, cue.Index)
}

func TestResume_OnlyMissingChunksUploaded(t *testing.T) {
	gw := newFakeGateway()
	sessions := NewFileSessionStore(t.TempDir())

	srv := httptest.NewServer(gw.handler())
	defer srv.Close()
	client := NewClient(srv.URL, "", srv.Client())

	m := NewManager(client, sessions,
		WithChunkSize(8),
		WithRetryPolicy(fastRetry()),
		WithLogger(logging.NewNopLogger()))

	ctx := context.Background()
	data := bytes.Repeat([]byte("x"), 40) // 5 chunks

	// First attempt dies after 3 chunks.
	gw.failAlways[3] = true
	session, err := m.Initiate(ctx, "m.webm", int64(len(data)), "audio/webm")
	require.NoError(t, err)
	err = m.uploadMissing(ctx, session, data)
	require.Error(t, err)
	require.Len(t, gw.chunkCalls[session.UploadID], 3)

	// Second attempt resumes: only the remaining 2 chunks go out.
	gw.mu.Lock()
	delete(gw.failAlways, 3)
	gw.mu.Unlock()

	key, err := m.Resume(ctx, session.UploadID, data)
	require.NoError(t, err)
	assert.Equal(t, "files/m.webm", key)
	assert.Equal(t, data, gw.assembled(session.UploadID))

	calls := gw.chunkCalls[session.UploadID]
	assert.Equal(t, []int{0, 1, 2, 3, 4}, calls, "acknowledged chunks must not be re-uploaded")
}

func TestFinalize_IncompleteUploadRejected(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(t, gw)

	session := NewSession("up-9", "m.webm", "audio/webm", 24, 8)
	session.MarkUploaded(0, "etag-0")

	_, err := m.Finalize(context.Background(), session)
	assert.ErrorIs(t, err, mterrors.ErrIncompleteUpload)
}

func TestUpload_ProgressEvents(t *testing.T) {
	gw := newFakeGateway()

	var events []Progress
	m := newTestManager(t, gw, WithProgress(func(p Progress) {
		events = append(events, p)
	}))

	data := bytes.Repeat([]byte("p"), 20) // chunks of 8, 8, 4
	_, err := m.Upload(context.Background(), "m.webm", "audio/webm", data)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, int64(8), events[0].UploadedBytes)
	assert.Equal(t, 40, events[0].Percentage)
	assert.Equal(t, int64(20), events[2].UploadedBytes)
	assert.Equal(t, 100, events[2].Percentage)
	assert.Equal(t, 3, events[2].TotalChunks)

	// Percentages never regress.
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percentage, events[i-1].Percentage)
	}
}

func TestSession_MissingChunks(t *testing.T) {
	s := NewSession("u", "f", "", 40, 8)
	s.MarkUploaded(1, "e1")
	s.MarkUploaded(3, "e3")
	assert.Equal(t, []int{0, 2, 4}, s.MissingChunks())
	assert.False(t, s.IsComplete())
}

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileSessionStore(t.TempDir())

	s := NewSession("up-1", "m.webm", "audio/webm", 24, 8)
	s.MarkUploaded(0, "etag-0")
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, "up-1")
	require.NoError(t, err)
	assert.Equal(t, s.UploadID, got.UploadID)
	assert.Equal(t, s.TotalChunks, got.TotalChunks)
	assert.True(t, got.UploadedChunks[0])
	assert.Equal(t, "etag-0", got.ETags[0])

	_, err = store.Get(ctx, "absent")
	assert.True(t, mterrors.IsNotFound(err))

	require.NoError(t, store.Delete(ctx, "up-1"))
	_, err = store.Get(ctx, "up-1")
	assert.True(t, mterrors.IsNotFound(err))
}

func TestClient_ServiceErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", srv.Client())
	_, err := client.Initiate(context.Background(), "big.webm", 1<<30, "audio/webm")
	require.Error(t, err)

	var se *mterrors.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusRequestEntityTooLarge, se.StatusCode)
	assert.True(t, strings.Contains(se.Body, "too large"))
}

func TestUpload_MetricsCountChunksBytesAndRetries(t *testing.T) {
	gw := newFakeGateway()
	gw.failChunks[1] = 2 // chunk 1 fails twice, then succeeds
	metrics := observability.NewPipelineMetrics(prometheus.NewRegistry())
	m := newTestManager(t, gw, WithMetrics(metrics))

	data := bytes.Repeat([]byte("a"), 20) // 3 chunks of size 8
	_, err := m.Upload(context.Background(), "m.webm", "audio/webm", data)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.UploadChunksTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.UploadChunksTotal.WithLabelValues("retried")))
	assert.Equal(t, 20.0, testutil.ToFloat64(metrics.UploadBytesTotal), "only acknowledged bytes count")
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.UploadsResumed))
}

func TestResume_MetricsCountResumedSession(t *testing.T) {
	gw := newFakeGateway()
	metrics := observability.NewPipelineMetrics(prometheus.NewRegistry())
	m := newTestManager(t, gw, WithMetrics(metrics))

	ctx := context.Background()
	data := bytes.Repeat([]byte("y"), 20)

	session, err := m.Initiate(ctx, "m.webm", int64(len(data)), "audio/webm")
	require.NoError(t, err)

	_, err = m.Resume(ctx, session.UploadID, data)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UploadsResumed))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.UploadChunksTotal.WithLabelValues("ok")))
}
