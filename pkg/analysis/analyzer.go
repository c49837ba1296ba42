package analysis

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
)

const (
	// DefaultGroupSize is how many chunk summaries are merged per section
	// during the reduce phase.
	DefaultGroupSize = 3

	// DefaultInterCallDelay spaces out completion calls to stay under the
	// backing service's rate limits.
	DefaultInterCallDelay = 500 * time.Millisecond

	// fallbackSummaryLength bounds the raw-text summary substituted when a
	// map call fails.
	fallbackSummaryLength = 500

	maxExecutiveWords = 120
	maxDetailedWords  = 400
	maxBullets        = 12
)

// ProgressFunc receives stage and chunk-level progress during an analysis
// run.
type ProgressFunc func(meeting.ProcessingProgress)

// Metrics records map and reduce outcomes. Outcome is "ok" for a parsed
// service response and "fallback" when the degraded path was taken.
type Metrics interface {
	RecordChunkMapped(outcome string)
	RecordSectionMerged(outcome string)
}

// Analyzer runs the map/reduce/refine pipeline over transcript chunks. Every
// external call is fallible; per-chunk and per-group failures degrade the
// result with deterministic fallbacks instead of aborting the run.
type Analyzer struct {
	client     *CompletionClient
	logger     logging.Logger
	groupSize  int
	delay      time.Duration
	onProgress ProgressFunc
	metrics    Metrics

	fold cases.Caser
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithGroupSize sets the reduce group size.
func WithGroupSize(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.groupSize = n
		}
	}
}

// WithInterCallDelay sets the pause between completion calls.
func WithInterCallDelay(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) { a.delay = d }
}

// WithAnalyzerLogger sets the logger.
func WithAnalyzerLogger(logger logging.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = logger }
}

// WithAnalyzerProgress registers the progress callback.
func WithAnalyzerProgress(fn ProgressFunc) AnalyzerOption {
	return func(a *Analyzer) { a.onProgress = fn }
}

// WithAnalyzerMetrics registers the metrics sink.
func WithAnalyzerMetrics(m Metrics) AnalyzerOption {
	return func(a *Analyzer) { a.metrics = m }
}

func NewAnalyzer(client *CompletionClient, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		client:    client,
		logger:    logging.NewNopLogger(),
		groupSize: DefaultGroupSize,
		delay:     DefaultInterCallDelay,
		fold:      cases.Fold(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze maps every chunk to a ChunkSummary, reduces the summaries into
// sections, and refines the sections into final artifacts.
func (a *Analyzer) Analyze(ctx context.Context, title string, chunks []string) (*meeting.Artifacts, error) {
	summaries, err := a.mapChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	a.report(meeting.StageReducing, 0, "merging chunk summaries", 0, 0)
	sections := a.reduce(ctx, summaries)

	a.report(meeting.StageRefining, 0, "refining sections", 0, 0)
	artifacts := a.refine(ctx, title, sections)
	return artifacts, nil
}

func (a *Analyzer) mapChunks(ctx context.Context, chunks []string) ([]meeting.ChunkSummary, error) {
	summaries := make([]meeting.ChunkSummary, 0, len(chunks))
	for i, chunk := range chunks {
		a.report(meeting.StageMapping, percent(i, len(chunks)), "extracting facts", i+1, len(chunks))

		summary := a.mapOne(ctx, i, chunk)
		summaries = append(summaries, summary)

		if i < len(chunks)-1 {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return summaries, nil
}

// mapOne extracts facts from one chunk, substituting a truncated-raw-text
// fallback when the call or the parse fails.
func (a *Analyzer) mapOne(ctx context.Context, id int, chunk string) meeting.ChunkSummary {
	fallback := meeting.ChunkSummary{
		ChunkID:  id,
		Summary:  truncateChars(chunk, fallbackSummaryLength),
		Fallback: true,
	}

	raw, err := a.client.Complete(ctx, mapMessages(chunk))
	if err != nil {
		a.logger.Warn("chunk extraction failed, using fallback summary",
			logging.F("chunk", id), logging.Err(err))
		a.recordMapped(fallback)
		return fallback
	}

	result := DecodeOrFallback(a.logger, "map", raw, fallback)
	result.ChunkID = id
	a.recordMapped(result)
	return result
}

func (a *Analyzer) recordMapped(cs meeting.ChunkSummary) {
	if a.metrics == nil {
		return
	}
	if cs.Fallback {
		a.metrics.RecordChunkMapped("fallback")
	} else {
		a.metrics.RecordChunkMapped("ok")
	}
}

func (a *Analyzer) reduce(ctx context.Context, summaries []meeting.ChunkSummary) []meeting.SectionSummary {
	if len(summaries) == 1 {
		only := summaries[0]
		return []meeting.SectionSummary{{
			SectionID:      0,
			Summary:        only.Summary,
			ActionItems:    only.ActionItems,
			Decisions:      only.Decisions,
			OpenQuestions:  only.OpenQuestions,
			SourceChunkIDs: []int{only.ChunkID},
		}}
	}

	var sections []meeting.SectionSummary
	for start := 0; start < len(summaries); start += a.groupSize {
		end := min(start+a.groupSize, len(summaries))
		group := summaries[start:end]
		section := a.reduceGroup(ctx, len(sections), group)
		sections = append(sections, section)
	}
	return sections
}

// reduceGroup merges one group of chunk summaries. Failures fall back to a
// naive union of the group's facts.
func (a *Analyzer) reduceGroup(ctx context.Context, id int, group []meeting.ChunkSummary) meeting.SectionSummary {
	section := naiveUnion(id, group)

	raw, err := a.client.Complete(ctx, reduceMessages(group))
	if err != nil {
		a.logger.Warn("section merge failed, using naive union",
			logging.F("section", id), logging.Err(err))
		if a.metrics != nil {
			a.metrics.RecordSectionMerged("fallback")
		}
		return section
	}
	if a.metrics != nil {
		a.metrics.RecordSectionMerged("ok")
	}

	merged := DecodeOrFallback(a.logger, "reduce", raw, section)
	merged.SectionID = id
	merged.SourceChunkIDs = section.SourceChunkIDs
	merged.ActionItems = a.dedupeActionItems(merged.ActionItems)
	return merged
}

// naiveUnion concatenates the group's facts without deduplication.
func naiveUnion(id int, group []meeting.ChunkSummary) meeting.SectionSummary {
	section := meeting.SectionSummary{SectionID: id}
	var parts []string
	for _, cs := range group {
		parts = append(parts, cs.Summary)
		section.ActionItems = append(section.ActionItems, cs.ActionItems...)
		section.Decisions = append(section.Decisions, cs.Decisions...)
		section.OpenQuestions = append(section.OpenQuestions, cs.OpenQuestions...)
		section.SourceChunkIDs = append(section.SourceChunkIDs, cs.ChunkID)
	}
	section.Summary = strings.Join(parts, " ")
	return section
}

func (a *Analyzer) refine(ctx context.Context, title string, sections []meeting.SectionSummary) *meeting.Artifacts {
	fallback := a.concatSections(sections)

	raw, err := a.client.Complete(ctx, refineMessages(title, sections))
	if err != nil {
		a.logger.Warn("refine call failed, using concatenated sections", logging.Err(err))
		return fallback
	}

	var out struct {
		Summaries     meeting.Summaries      `json:"summaries"`
		ActionItems   []meeting.ActionItem   `json:"action_items"`
		Decisions     []meeting.Decision     `json:"decisions"`
		OpenQuestions []meeting.OpenQuestion `json:"open_questions"`
	}
	decoded := DecodeOrFallback(a.logger, "refine", raw, out)
	if decoded.Summaries.Executive == "" && decoded.Summaries.Detailed == "" {
		return fallback
	}

	artifacts := &meeting.Artifacts{
		ActionItems:   a.dedupeActionItems(decoded.ActionItems),
		Decisions:     decoded.Decisions,
		OpenQuestions: decoded.OpenQuestions,
		Summaries:     clampSummaries(decoded.Summaries),
	}
	return artifacts
}

// concatSections is the refine fallback: union the section facts and build
// summaries by truncation to the standard bounds.
func (a *Analyzer) concatSections(sections []meeting.SectionSummary) *meeting.Artifacts {
	artifacts := &meeting.Artifacts{}
	var parts []string
	var bullets []string
	for _, s := range sections {
		parts = append(parts, s.Summary)
		bullets = append(bullets, truncateWords(s.Summary, 15))
		artifacts.ActionItems = append(artifacts.ActionItems, s.ActionItems...)
		artifacts.Decisions = append(artifacts.Decisions, s.Decisions...)
		artifacts.OpenQuestions = append(artifacts.OpenQuestions, s.OpenQuestions...)
	}
	artifacts.ActionItems = a.dedupeActionItems(artifacts.ActionItems)

	full := strings.Join(parts, " ")
	artifacts.Summaries = clampSummaries(meeting.Summaries{
		Executive: full,
		Detailed:  full,
		Bullets:   bullets,
	})
	return artifacts
}

// dedupeActionItems collapses items sharing a case-folded title+assignee
// key, preferring the duplicate that carries a due date.
func (a *Analyzer) dedupeActionItems(items []meeting.ActionItem) []meeting.ActionItem {
	seen := make(map[string]int, len(items))
	out := make([]meeting.ActionItem, 0, len(items))
	for _, item := range items {
		key := a.normalizeKey(item.Title) + "\x00" + a.normalizeKey(item.Assignee)
		if idx, ok := seen[key]; ok {
			if out[idx].DueDate == nil && item.DueDate != nil {
				out[idx] = item
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, item)
	}
	return out
}

func (a *Analyzer) normalizeKey(s string) string {
	return strings.Join(strings.Fields(a.fold.String(s)), " ")
}

func clampSummaries(s meeting.Summaries) meeting.Summaries {
	s.Executive = truncateWords(s.Executive, maxExecutiveWords)
	s.Detailed = truncateWords(s.Detailed, maxDetailedWords)
	if len(s.Bullets) > maxBullets {
		s.Bullets = s.Bullets[:maxBullets]
	}
	return s
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(words[:n], " ")
}

func truncateChars(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}

func (a *Analyzer) report(stage meeting.Stage, progress int, msg string, current, total int) {
	if a.onProgress == nil {
		return
	}
	a.onProgress(meeting.ProcessingProgress{
		Stage:        stage,
		Progress:     progress,
		Message:      msg,
		CurrentChunk: current,
		TotalChunks:  total,
	})
}
