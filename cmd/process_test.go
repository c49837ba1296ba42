package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/otherjamesbrown/minute-cli/config"
	"github.com/otherjamesbrown/minute-cli/pkg/audio"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
	"github.com/otherjamesbrown/minute-cli/pkg/pipeline"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, fileName string, audio []byte) (string, error) {
	return s.text, s.err
}

func (s *stubTranscriber) TranscribeStored(ctx context.Context, fileKey string) (string, error) {
	return s.text, s.err
}

type stubAnalyzer struct {
	artifacts *meeting.Artifacts
}

func (s *stubAnalyzer) Analyze(ctx context.Context, title string, chunks []string) (*meeting.Artifacts, error) {
	return s.artifacts, nil
}

type stubEmail struct{}

func (stubEmail) Generate(ctx context.Context, m *meeting.Meeting, artifacts *meeting.Artifacts) *meeting.EmailDraft {
	return &meeting.EmailDraft{Subject: "Notes: " + m.Title, BodyMarkdown: "See artifacts."}
}

type stubChunker struct{}

func (stubChunker) Split(transcript string) []string { return []string{transcript} }

// newStubRuntime wires a runtime whose pipeline runs entirely on stubs.
func newStubRuntime(t *testing.T, transcriber pipeline.Transcriber) (*runtime, meeting.Store, audio.Store) {
	t.Helper()

	meetings := meeting.NewFileStore(t.TempDir())
	audioStore := audio.NewMemStore()
	reporter := pipeline.NewReporter(nil)

	analyzer := &stubAnalyzer{artifacts: &meeting.Artifacts{
		ActionItems: []meeting.ActionItem{{Title: "Follow up on budget", Assignee: "bob", Priority: meeting.PriorityMedium}},
		Summaries:   meeting.Summaries{Executive: "Budget approved."},
	}}

	rt := &runtime{
		cfg:      config.DefaultConfig(),
		logger:   logging.NewNopLogger(),
		meetings: meetings,
		audio:    audioStore,
		reporter: reporter,
		pipeline: pipeline.New(meetings, audioStore, transcriber, stubChunker{}, analyzer, stubEmail{},
			pipeline.WithReporter(reporter),
		),
	}
	return rt, meetings, audioStore
}

func newProcessDeps(rt *runtime) (*ProcessCommandDeps, *bytes.Buffer) {
	out := &bytes.Buffer{}
	deps := &ProcessCommandDeps{
		LoadConfig:   func() (*config.CLIConfig, error) { return config.DefaultConfig(), nil },
		BuildRuntime: func(cfg *config.CLIConfig) (*runtime, error) { return rt, nil },
		Output:       out,
	}
	return deps, out
}

func TestProcessCommand_Structure(t *testing.T) {
	cmd := NewProcessCommand(nil)

	found := false
	for _, sub := range cmd.Commands() {
		if sub.Name() == "retry" {
			found = true
		}
	}
	if !found {
		t.Error("process command missing retry subcommand")
	}
}

func TestRunProcess_CompletesMeeting(t *testing.T) {
	ctx := context.Background()
	rt, meetings, audioStore := newStubRuntime(t, &stubTranscriber{text: "We approved the budget for next quarter after a long discussion."})

	seedMeeting(t, meetings, &meeting.Meeting{
		ID:              "m-1",
		Title:           "Budget review",
		Date:            time.Now(),
		DurationSeconds: 600,
		Status:          meeting.StatusProcessing,
		AudioURI:        "m-1",
	})
	if err := audioStore.Store(ctx, "m-1", bytes.Repeat([]byte("a"), 4096)); err != nil {
		t.Fatalf("seeding audio: %v", err)
	}

	deps, out := newProcessDeps(rt)
	if err := runProcess(ctx, deps, "m-1", false); err != nil {
		t.Fatalf("runProcess() error = %v", err)
	}

	output := out.String()
	for _, want := range []string{"Budget approved.", "Follow up on budget", "Notes: Budget review"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got: %s", want, output)
		}
	}

	m, err := meeting.Get(ctx, meetings, "m-1")
	if err != nil {
		t.Fatalf("loading meeting: %v", err)
	}
	if m.Status != meeting.StatusCompleted {
		t.Errorf("Status = %q, want %q", m.Status, meeting.StatusCompleted)
	}
}

func TestRunProcess_RendersProgress(t *testing.T) {
	ctx := context.Background()
	rt, meetings, audioStore := newStubRuntime(t, &stubTranscriber{text: "A perfectly ordinary meeting transcript with enough words."})

	seedMeeting(t, meetings, &meeting.Meeting{
		ID:              "m-2",
		Title:           "Standup",
		Date:            time.Now(),
		DurationSeconds: 300,
		Status:          meeting.StatusProcessing,
		AudioURI:        "m-2",
	})
	if err := audioStore.Store(ctx, "m-2", bytes.Repeat([]byte("b"), 4096)); err != nil {
		t.Fatalf("seeding audio: %v", err)
	}

	deps, out := newProcessDeps(rt)
	if err := runProcess(ctx, deps, "m-2", false); err != nil {
		t.Fatalf("runProcess() error = %v", err)
	}

	if !strings.Contains(out.String(), "transcribing") {
		t.Errorf("expected progress lines in output, got: %s", out.String())
	}
}

func TestRunProcess_UnknownMeeting(t *testing.T) {
	rt, _, _ := newStubRuntime(t, &stubTranscriber{text: "unused"})

	deps, _ := newProcessDeps(rt)
	err := runProcess(context.Background(), deps, "missing", false)
	if err == nil {
		t.Fatal("runProcess() expected error for unknown meeting")
	}
}

func TestRunProcess_TranscriptionFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	rt, meetings, audioStore := newStubRuntime(t, &stubTranscriber{err: errors.New("service exploded")})

	seedMeeting(t, meetings, &meeting.Meeting{
		ID:              "m-3",
		Title:           "Doomed",
		Date:            time.Now(),
		DurationSeconds: 120,
		Status:          meeting.StatusProcessing,
		AudioURI:        "m-3",
	})
	if err := audioStore.Store(ctx, "m-3", bytes.Repeat([]byte("c"), 4096)); err != nil {
		t.Fatalf("seeding audio: %v", err)
	}

	deps, _ := newProcessDeps(rt)
	if err := runProcess(ctx, deps, "m-3", false); err == nil {
		t.Fatal("runProcess() expected error when transcription fails")
	}

	m, err := meeting.Get(ctx, meetings, "m-3")
	if err != nil {
		t.Fatalf("loading meeting: %v", err)
	}
	if m.Status != meeting.StatusError {
		t.Errorf("Status = %q, want %q", m.Status, meeting.StatusError)
	}
}

func TestRunProcess_RetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	transcriber := &stubTranscriber{err: errors.New("transient outage")}
	rt, meetings, audioStore := newStubRuntime(t, transcriber)

	seedMeeting(t, meetings, &meeting.Meeting{
		ID:              "m-4",
		Title:           "Recoverable",
		Date:            time.Now(),
		DurationSeconds: 120,
		Status:          meeting.StatusProcessing,
		AudioURI:        "m-4",
	})
	if err := audioStore.Store(ctx, "m-4", bytes.Repeat([]byte("d"), 4096)); err != nil {
		t.Fatalf("seeding audio: %v", err)
	}

	deps, _ := newProcessDeps(rt)
	if err := runProcess(ctx, deps, "m-4", false); err == nil {
		t.Fatal("first run should fail")
	}

	transcriber.err = nil
	transcriber.text = "The outage was resolved and the meeting went ahead as planned."
	if err := runProcess(ctx, deps, "m-4", true); err != nil {
		t.Fatalf("retry error = %v", err)
	}

	m, err := meeting.Get(ctx, meetings, "m-4")
	if err != nil {
		t.Fatalf("loading meeting: %v", err)
	}
	if m.Status != meeting.StatusCompleted {
		t.Errorf("Status after retry = %q, want %q", m.Status, meeting.StatusCompleted)
	}
}

func TestRenderProgress_Format(t *testing.T) {
	out := &bytes.Buffer{}
	renderProgress(out, meeting.ProcessingProgress{
		Stage:        meeting.StageMapping,
		Progress:     40,
		Message:      "mapping chunks",
		CurrentChunk: 2,
		TotalChunks:  5,
	})

	line := out.String()
	for _, want := range []string{"40%", "mapping", "(2/5)"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}
