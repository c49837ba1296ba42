package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
	"github.com/otherjamesbrown/minute-cli/pkg/pipeline/observability"
)

// fakeModel answers completion calls per pipeline step, keyed off the system
// prompt. Unset steps return a minimal valid payload.
type fakeModel struct {
	mu          sync.Mutex
	mapCalls    int
	reduceCalls int
	refineCalls int
	emailCalls  int

	failMapCalls map[int]bool // 1-based call number -> fail
	failReduce   bool
	failRefine   bool
	failEmail    bool

	mapPayload    func(call int) string
	reducePayload func(call int) string
	refinePayload string
	emailPayload  string
}

func (f *fakeModel) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		system := req.Messages[0].Content

		f.mu.Lock()
		defer f.mu.Unlock()

		var out string
		switch {
		case strings.Contains(system, "extract structured facts"):
			f.mapCalls++
			if f.failMapCalls[f.mapCalls] {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			if f.mapPayload != nil {
				out = f.mapPayload(f.mapCalls)
			} else {
				out = fmt.Sprintf(`{"summary":"chunk %d summary","action_items":[],"decisions":[],"open_questions":[]}`, f.mapCalls)
			}
		case strings.Contains(system, "merge partial meeting analyses"):
			f.reduceCalls++
			if f.failReduce {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			if f.reducePayload != nil {
				out = f.reducePayload(f.reduceCalls)
			} else {
				out = fmt.Sprintf(`{"summary":"section %d summary","action_items":[],"decisions":[],"open_questions":[]}`, f.reduceCalls)
			}
		case strings.Contains(system, "final analysis of a meeting"):
			f.refineCalls++
			if f.failRefine {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			out = f.refinePayload
			if out == "" {
				out = `{"summaries":{"executive":"exec","detailed":"detail","bullets":["a"]},"action_items":[],"decisions":[],"open_questions":[]}`
			}
		case strings.Contains(system, "draft a follow-up email"):
			f.emailCalls++
			if f.failEmail {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			out = f.emailPayload
			if out == "" {
				out = `{"subject":"Notes","body_markdown":"body","recipients_suggested":[],"cc_suggested":[]}`
			}
		default:
			http.Error(w, "unexpected prompt", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"completion": out})
	})
}

func newTestAnalyzer(t *testing.T, model *fakeModel, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	srv := httptest.NewServer(model.handler())
	t.Cleanup(srv.Close)

	client := NewCompletionClient(srv.URL, "", srv.Client())
	base := []AnalyzerOption{WithInterCallDelay(time.Millisecond)}
	return NewAnalyzer(client, append(base, opts...)...)
}

func chunksOf(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("Chunk %d has enough discussion content to analyze properly.", i)
	}
	return chunks
}

func TestAnalyze_SingleChunkSkipsReduce(t *testing.T) {
	model := &fakeModel{}
	a := newTestAnalyzer(t, model)

	artifacts, err := a.Analyze(context.Background(), "Standup", chunksOf(1))
	require.NoError(t, err)
	require.NotNil(t, artifacts)

	assert.Equal(t, 1, model.mapCalls)
	assert.Equal(t, 0, model.reduceCalls, "single chunk must not trigger reduce calls")
	assert.Equal(t, 1, model.refineCalls)
}

func TestAnalyze_GroupsOfThree(t *testing.T) {
	model := &fakeModel{}
	a := newTestAnalyzer(t, model)

	_, err := a.Analyze(context.Background(), "Planning", chunksOf(7))
	require.NoError(t, err)

	assert.Equal(t, 7, model.mapCalls)
	assert.Equal(t, 3, model.reduceCalls, "7 chunks should merge as groups of 3+3+1")
}

func TestAnalyze_SectionsPartitionChunkIDs(t *testing.T) {
	model := &fakeModel{failReduce: true} // naive union keeps the source ids visible
	srv := httptest.NewServer(model.handler())
	defer srv.Close()
	a := NewAnalyzer(NewCompletionClient(srv.URL, "", srv.Client()), WithInterCallDelay(time.Millisecond))

	summaries, err := a.mapChunks(context.Background(), chunksOf(7))
	require.NoError(t, err)
	sections := a.reduce(context.Background(), summaries)
	require.Len(t, sections, 3)

	seen := map[int]int{}
	for _, s := range sections {
		for _, id := range s.SourceChunkIDs {
			seen[id]++
		}
	}
	for id := 0; id < 7; id++ {
		assert.Equal(t, 1, seen[id], "chunk %d must appear in exactly one section", id)
	}
}

func TestAnalyze_MapFailureYieldsFallbackSummary(t *testing.T) {
	model := &fakeModel{failMapCalls: map[int]bool{2: true}}
	a := newTestAnalyzer(t, model)

	chunks := chunksOf(3)
	summaries, err := a.mapChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.False(t, summaries[0].Fallback)
	assert.True(t, summaries[1].Fallback)
	assert.Equal(t, chunks[1], summaries[1].Summary, "fallback summary is the raw chunk text")
	assert.Empty(t, summaries[1].ActionItems)
	assert.False(t, summaries[2].Fallback)
}

func TestAnalyze_MapFailureDoesNotAbortRun(t *testing.T) {
	model := &fakeModel{failMapCalls: map[int]bool{1: true}}
	a := newTestAnalyzer(t, model)

	artifacts, err := a.Analyze(context.Background(), "Retro", chunksOf(4))
	require.NoError(t, err)
	require.NotNil(t, artifacts)
	assert.NotEmpty(t, artifacts.Summaries.Executive)
}

func TestAnalyze_ReduceFailureFallsBackToUnion(t *testing.T) {
	actionItem := func(title string) string {
		return fmt.Sprintf(`{"title":%q,"assignee":"alice","priority":"High","status":"open","source_quote":"q","confidence":0.9,"tags":[]}`, title)
	}
	model := &fakeModel{
		failReduce: true,
		mapPayload: func(call int) string {
			return fmt.Sprintf(`{"summary":"chunk %d","action_items":[%s],"decisions":[],"open_questions":[]}`, call, actionItem(fmt.Sprintf("task %d", call)))
		},
	}
	srv := httptest.NewServer(model.handler())
	defer srv.Close()
	a := NewAnalyzer(NewCompletionClient(srv.URL, "", srv.Client()), WithInterCallDelay(time.Millisecond))

	summaries, err := a.mapChunks(context.Background(), chunksOf(3))
	require.NoError(t, err)
	sections := a.reduce(context.Background(), summaries)
	require.Len(t, sections, 1)

	// Naive union: every chunk's facts survive, no dedupe applied.
	assert.Len(t, sections[0].ActionItems, 3)
	assert.Contains(t, sections[0].Summary, "chunk 1")
	assert.Contains(t, sections[0].Summary, "chunk 3")
}

func TestDedupeActionItems_PrefersDueDated(t *testing.T) {
	a := NewAnalyzer(nil)
	due := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)

	items := []meeting.ActionItem{
		{Title: "Ship the rollout", Assignee: "Alice"},
		{Title: "ship  the ROLLOUT", Assignee: "alice", DueDate: &due},
		{Title: "Ship the rollout", Assignee: "Bob"},
	}

	out := a.dedupeActionItems(items)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].DueDate)
	assert.Equal(t, due, *out[0].DueDate)
	assert.Equal(t, "Bob", out[1].Assignee)
}

func TestRefine_FailureFallsBackToTruncation(t *testing.T) {
	model := &fakeModel{failRefine: true}
	srv := httptest.NewServer(model.handler())
	defer srv.Close()
	a := NewAnalyzer(NewCompletionClient(srv.URL, "", srv.Client()), WithInterCallDelay(time.Millisecond))

	sections := make([]meeting.SectionSummary, 20)
	for i := range sections {
		sections[i] = meeting.SectionSummary{
			SectionID: i,
			Summary:   strings.Repeat("word ", 40),
		}
	}

	artifacts := a.refine(context.Background(), "Big meeting", sections)
	require.NotNil(t, artifacts)
	assert.LessOrEqual(t, len(strings.Fields(artifacts.Summaries.Executive)), 120)
	assert.LessOrEqual(t, len(strings.Fields(artifacts.Summaries.Detailed)), 400)
	assert.LessOrEqual(t, len(artifacts.Summaries.Bullets), 12)
}

func TestAnalyze_SummaryBoundsEnforced(t *testing.T) {
	model := &fakeModel{
		refinePayload: fmt.Sprintf(
			`{"summaries":{"executive":%q,"detailed":%q,"bullets":["a","b","c","d","e","f","g","h","i","j","k","l","m","n"]},"action_items":[],"decisions":[],"open_questions":[]}`,
			strings.Repeat("word ", 200), strings.Repeat("word ", 600)),
	}
	a := newTestAnalyzer(t, model)

	artifacts, err := a.Analyze(context.Background(), "Long", chunksOf(4))
	require.NoError(t, err)
	assert.Len(t, strings.Fields(artifacts.Summaries.Executive), 120)
	assert.Len(t, strings.Fields(artifacts.Summaries.Detailed), 400)
	assert.Len(t, artifacts.Summaries.Bullets, 12)
}

func TestAnalyze_ContextCancellationStopsMapping(t *testing.T) {
	model := &fakeModel{}
	a := newTestAnalyzer(t, model, WithInterCallDelay(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Analyze(ctx, "Cancelled", chunksOf(5))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyze_MetricsCountMapAndMergeOutcomes(t *testing.T) {
	model := &fakeModel{failMapCalls: map[int]bool{2: true}}
	metrics := observability.NewPipelineMetrics(prometheus.NewRegistry())
	a := newTestAnalyzer(t, model, WithAnalyzerMetrics(metrics))

	_, err := a.Analyze(context.Background(), "Sync", chunksOf(4))
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ChunksMappedTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChunksMappedTotal.WithLabelValues("fallback")))
	// 4 chunks with group size 3 reduce into two sections.
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SectionsMergedTotal.WithLabelValues("ok")))
}

func TestAnalyze_MetricsCountMergeFallback(t *testing.T) {
	model := &fakeModel{failReduce: true}
	metrics := observability.NewPipelineMetrics(prometheus.NewRegistry())
	a := newTestAnalyzer(t, model, WithAnalyzerMetrics(metrics))

	_, err := a.Analyze(context.Background(), "Sync", chunksOf(4))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SectionsMergedTotal.WithLabelValues("fallback")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SectionsMergedTotal.WithLabelValues("ok")))
}
