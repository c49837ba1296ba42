// Package meeting defines the domain model for recorded meetings and the
// artifacts derived from them.
package meeting

import "time"

// Status is the lifecycle state of a meeting.
type Status string

const (
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Priority classifies an action item's urgency.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Meeting represents one recorded session and its derived artifacts.
//
// Status only reaches "processing" once AudioURI is set and Duration is
// positive; it only reaches "completed" once Artifacts is set.
type Meeting struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Date            time.Time  `json:"date"`
	DurationSeconds int        `json:"duration_seconds"`
	Attendees       []string   `json:"attendees"`
	Status          Status     `json:"status"`
	AudioURI        string     `json:"audio_uri,omitempty"`
	Transcript      string     `json:"transcript,omitempty"`
	Artifacts       *Artifacts `json:"artifacts,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// Artifacts is the structured output of transcript analysis.
type Artifacts struct {
	ActionItems   []ActionItem   `json:"action_items"`
	Decisions     []Decision     `json:"decisions"`
	OpenQuestions []OpenQuestion `json:"open_questions"`
	Summaries     Summaries      `json:"summaries"`
	EmailDraft    *EmailDraft    `json:"email_draft,omitempty"`
}

// Summaries holds the three bounded summary forms.
type Summaries struct {
	Executive string   `json:"executive"` // at most 120 words
	Detailed  string   `json:"detailed"`  // at most 400 words
	Bullets   []string `json:"bullets"`   // at most 12 entries
}

// ActionItem is a task extracted from the transcript. Action items are
// created by the map phase and merged by reduce/refine; they are never
// deleted, only accumulated.
type ActionItem struct {
	Title       string     `json:"title"`
	Assignee    string     `json:"assignee"`
	Priority    Priority   `json:"priority"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	SourceQuote string     `json:"source_quote"`
	Confidence  float64    `json:"confidence"`
	Tags        []string   `json:"tags,omitempty"`
}

// Decision is a decision captured from the transcript.
type Decision struct {
	Statement   string  `json:"statement"`
	Rationale   string  `json:"rationale,omitempty"`
	SourceQuote string  `json:"source_quote"`
	Confidence  float64 `json:"confidence"`
}

// OpenQuestion is an unresolved question captured from the transcript.
type OpenQuestion struct {
	Question    string  `json:"question"`
	Owner       string  `json:"owner,omitempty"`
	SourceQuote string  `json:"source_quote"`
	Confidence  float64 `json:"confidence"`
}

// EmailDraft is the follow-up email generated from final artifacts.
type EmailDraft struct {
	Subject             string   `json:"subject"`
	BodyMarkdown        string   `json:"body_markdown"`
	RecipientsSuggested []string `json:"recipients_suggested"`
	CCSuggested         []string `json:"cc_suggested"`
}

// ChunkSummary is the per-text-chunk extraction result from the map phase.
type ChunkSummary struct {
	ChunkID       int            `json:"chunk_id"`
	Summary       string         `json:"summary"`
	ActionItems   []ActionItem   `json:"action_items"`
	Decisions     []Decision     `json:"decisions"`
	OpenQuestions []OpenQuestion `json:"open_questions"`
	Fallback      bool           `json:"fallback,omitempty"`
}

// SectionSummary merges a fixed-size group of ChunkSummaries. SourceChunkIDs
// carries the ids of the chunks it was built from; every chunk id appears in
// exactly one section.
type SectionSummary struct {
	SectionID      int            `json:"section_id"`
	Summary        string         `json:"summary"`
	ActionItems    []ActionItem   `json:"action_items"`
	Decisions      []Decision     `json:"decisions"`
	OpenQuestions  []OpenQuestion `json:"open_questions"`
	SourceChunkIDs []int          `json:"source_chunk_ids"`
}

// Stage identifies a processing pipeline stage. Stages are strictly ordered.
type Stage string

const (
	StageTranscribing    Stage = "transcribing"
	StageChunking        Stage = "chunking"
	StageMapping         Stage = "mapping"
	StageReducing        Stage = "reducing"
	StageRefining        Stage = "refining"
	StageGeneratingEmail Stage = "generating_email"
	StageCompleted       Stage = "completed"
)

// stageOrder maps each stage to its position in the pipeline.
var stageOrder = map[Stage]int{
	StageTranscribing:    0,
	StageChunking:        1,
	StageMapping:         2,
	StageReducing:        3,
	StageRefining:        4,
	StageGeneratingEmail: 5,
	StageCompleted:       6,
}

// Order returns the stage's position in the pipeline, or -1 for an unknown stage.
func (s Stage) Order() int {
	if ord, ok := stageOrder[s]; ok {
		return ord
	}
	return -1
}

// Before reports whether s comes strictly before other in the pipeline.
func (s Stage) Before(other Stage) bool {
	return s.Order() < other.Order()
}

// ProcessingProgress is the ordered stage/percentage status object surfaced
// to callers during a pipeline run.
type ProcessingProgress struct {
	Stage        Stage  `json:"stage"`
	Progress     int    `json:"progress"` // 0..100
	Message      string `json:"message"`
	CurrentChunk int    `json:"current_chunk,omitempty"`
	TotalChunks  int    `json:"total_chunks,omitempty"`
}
