package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minute-cli/config"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
)

// ProcessCommandDeps holds dependencies for the process command.
type ProcessCommandDeps struct {
	LoadConfig   func() (*config.CLIConfig, error)
	BuildRuntime func(cfg *config.CLIConfig) (*runtime, error)
	Output       io.Writer
}

// DefaultProcessDeps returns default dependencies for production use.
func DefaultProcessDeps() *ProcessCommandDeps {
	return &ProcessCommandDeps{
		LoadConfig:   loadConfig,
		BuildRuntime: buildRuntime,
		Output:       os.Stdout,
	}
}

// NewProcessCommand creates the 'process' command with its retry subcommand.
func NewProcessCommand(deps *ProcessCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultProcessDeps()
	}

	cmd := &cobra.Command{
		Use:   "process <meeting-id>",
		Short: "Process a recorded meeting",
		Long: `Run the processing pipeline for a recorded meeting: transcription,
analysis (action items, decisions, open questions, summaries), and a
follow-up email draft.

A meeting whose processing failed can be rerun with 'minute process retry'.
A completed meeting passed to process again only regenerates its email draft.

Examples:
  # Process a recording
  minute process 2f1c9c6e-4b7a-4a87-a2d5-0f0f4f9a2d31

  # Retry after a failure
  minute process retry 2f1c9c6e-4b7a-4a87-a2d5-0f0f4f9a2d31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), deps, args[0], false)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <meeting-id>",
		Short: "Retry processing a failed meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), deps, args[0], true)
		},
	})

	return cmd
}

// runProcess executes the process command.
func runProcess(ctx context.Context, deps *ProcessCommandDeps, meetingID string, retry bool) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	rt, err := deps.BuildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := deps.Output
	if out == nil {
		out = os.Stdout
	}

	return processMeeting(ctx, rt, meetingID, retry, out)
}

// processMeeting runs the pipeline for one meeting, rendering progress as it
// goes, and prints the resulting artifacts.
func processMeeting(ctx context.Context, rt *runtime, meetingID string, retry bool, out io.Writer) error {
	if rt.reporter != nil {
		rt.reporter.SetCallback(func(p meeting.ProcessingProgress) {
			renderProgress(out, p)
		})
		defer rt.reporter.SetCallback(nil)
	}

	var err error
	if retry {
		_, err = rt.pipeline.RetryProcessing(ctx, meetingID)
	} else {
		_, err = rt.pipeline.Process(ctx, meetingID)
	}
	if err != nil {
		return fmt.Errorf("processing meeting %s: %w", meetingID, err)
	}

	m, err := getMeeting(ctx, rt, meetingID)
	if err != nil {
		return fmt.Errorf("loading meeting: %w", err)
	}

	fmt.Fprintln(out)
	return outputMeetingText(out, m, false)
}

// renderProgress prints one progress update line.
func renderProgress(out io.Writer, p meeting.ProcessingProgress) {
	if p.TotalChunks > 0 {
		fmt.Fprintf(out, "  [%3d%%] %-16s %s (%d/%d)\n", p.Progress, p.Stage, p.Message, p.CurrentChunk, p.TotalChunks)
		return
	}
	fmt.Fprintf(out, "  [%3d%%] %-16s %s\n", p.Progress, p.Stage, p.Message)
}
