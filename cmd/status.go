package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/minute-cli/config"
)

// Status command flags.
var (
	statusOutputFormat string
	statusRemote       bool
)

// StatusCommandDeps holds dependencies for the status command.
type StatusCommandDeps struct {
	LoadConfig   func() (*config.CLIConfig, error)
	BuildRuntime func(cfg *config.CLIConfig) (*runtime, error)
	Output       io.Writer
}

// DefaultStatusDeps returns default dependencies for production use.
func DefaultStatusDeps() *StatusCommandDeps {
	return &StatusCommandDeps{
		LoadConfig:   loadConfig,
		BuildRuntime: buildLocalRuntime,
		Output:       os.Stdout,
	}
}

// NewStatusCommand creates the 'status' command.
func NewStatusCommand(deps *StatusCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultStatusDeps()
	}

	cmd := &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show a resumable upload's status",
		Long: `Show how much of a chunked upload has been acknowledged and which
chunks are still missing.

By default the locally persisted session is shown; --remote queries
the server instead.

Examples:
  # Local session state
  minute status up-7f3a

  # Ask the server
  minute status up-7f3a --remote`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), deps, args[0])
		},
	}

	cmd.Flags().BoolVar(&statusRemote, "remote", false, "Query the server instead of local state")
	cmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// uploadStatus is the output shape for the status command.
type uploadStatus struct {
	UploadID       string `json:"upload_id" yaml:"upload_id"`
	FileName       string `json:"file_name" yaml:"file_name"`
	TotalSize      int64  `json:"total_size" yaml:"total_size"`
	TotalChunks    int    `json:"total_chunks" yaml:"total_chunks"`
	UploadedChunks int    `json:"uploaded_chunks" yaml:"uploaded_chunks"`
	MissingChunks  []int  `json:"missing_chunks" yaml:"missing_chunks"`
	Complete       bool   `json:"complete" yaml:"complete"`
}

// runStatus executes the status command.
func runStatus(ctx context.Context, deps *StatusCommandDeps, uploadID string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	format, err := resolveOutputFormat(cfg, statusOutputFormat)
	if err != nil {
		return err
	}

	var status uploadStatus
	if statusRemote {
		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		resp, err := rt.uploadClient.Status(ctx, uploadID)
		if err != nil {
			return fmt.Errorf("querying upload status: %w", err)
		}
		missing := make([]int, 0)
		uploaded := make(map[int]bool, len(resp.UploadedChunks))
		for _, i := range resp.UploadedChunks {
			uploaded[i] = true
		}
		for i := 0; i < resp.TotalChunks; i++ {
			if !uploaded[i] {
				missing = append(missing, i)
			}
		}
		status = uploadStatus{
			UploadID:       uploadID,
			FileName:       resp.FileName,
			TotalSize:      resp.TotalSize,
			TotalChunks:    resp.TotalChunks,
			UploadedChunks: len(resp.UploadedChunks),
			MissingChunks:  missing,
			Complete:       len(missing) == 0 && resp.TotalChunks > 0,
		}
	} else {
		rt, err := deps.BuildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		session, err := rt.sessions.Get(ctx, uploadID)
		if err != nil {
			return fmt.Errorf("loading upload session: %w", err)
		}
		status = uploadStatus{
			UploadID:       session.UploadID,
			FileName:       session.FileName,
			TotalSize:      session.TotalSize,
			TotalChunks:    session.TotalChunks,
			UploadedChunks: len(session.UploadedChunks),
			MissingChunks:  session.MissingChunks(),
			Complete:       session.IsComplete(),
		}
	}

	out := deps.Output
	if out == nil {
		out = os.Stdout
	}

	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case config.OutputFormatYAML:
		return yaml.NewEncoder(out).Encode(status)
	default:
		fmt.Fprintf(out, "Upload:   %s\n", status.UploadID)
		fmt.Fprintf(out, "File:     %s (%d bytes)\n", status.FileName, status.TotalSize)
		fmt.Fprintf(out, "Chunks:   %d/%d uploaded\n", status.UploadedChunks, status.TotalChunks)
		if status.Complete {
			fmt.Fprintln(out, "Complete: yes")
		} else {
			fmt.Fprintf(out, "Missing:  %v\n", status.MissingChunks)
		}
		return nil
	}
}
