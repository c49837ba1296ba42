package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minute-cli/config"
	"github.com/otherjamesbrown/minute-cli/pkg/audio"
	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/recording"
)

// Record command flags.
var (
	recordTitle     string
	recordAttendees []string
	recordConsent   bool
	recordProcess   bool
)

// RecordCommandDeps holds dependencies for the record command.
type RecordCommandDeps struct {
	LoadConfig func() (*config.CLIConfig, error)

	// NewDeviceFactory builds the capture device factory. Tests inject a
	// fake device here.
	NewDeviceFactory func(cfg *config.CLIConfig, dataDir string, source io.Reader) recording.DeviceFactory

	Input  io.Reader
	Output io.Writer
}

// DefaultRecordDeps returns default dependencies for production use.
func DefaultRecordDeps() *RecordCommandDeps {
	return &RecordCommandDeps{
		LoadConfig:       loadConfig,
		NewDeviceFactory: newDeviceFactory,
		Input:            os.Stdin,
		Output:           os.Stdout,
	}
}

// newDeviceFactory selects the capture strategy from config. A configured
// capture command records to a file; otherwise audio is streamed from source
// (normally stdin, for piping a capture program into the CLI).
func newDeviceFactory(cfg *config.CLIConfig, dataDir string, source io.Reader) recording.DeviceFactory {
	return func(meetingID string) (audio.Device, error) {
		if cfg.Recording.Command != "" {
			outputPath := filepath.Join(dataDir, "capture", meetingID+".webm")
			if err := os.MkdirAll(filepath.Dir(outputPath), 0700); err != nil {
				return nil, fmt.Errorf("creating capture directory: %w", err)
			}
			return audio.NewFileDevice(cfg.Recording.Command, cfg.Recording.CommandArgs, outputPath, "audio/webm"), nil
		}
		return audio.NewBufferDevice(source, "audio/webm", 32*1024), nil
	}
}

// NewRecordCommand creates the 'record' command.
func NewRecordCommand(deps *RecordCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultRecordDeps()
	}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting",
		Long: `Record a meeting and store the audio for processing.

All participants must consent to being recorded. Pass --consent to confirm,
or answer the interactive prompt.

With a capture command configured (recording.command in config), the CLI
drives that program and accepts pause/resume/stop controls on stdin.
Without one, raw audio is read from stdin until interrupted:

  capture-program | minute record --title "Weekly sync" --consent

Examples:
  # Interactive recording with a configured capture command
  minute record --title "Weekly sync" --attendee alice@example.com --attendee bob@example.com

  # Record piped audio, then process immediately
  some-capture | minute record --title "1:1" --consent --process`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVarP(&recordTitle, "title", "t", "", "Meeting title (required)")
	cmd.Flags().StringArrayVar(&recordAttendees, "attendee", nil, "Attendee email (repeatable)")
	cmd.Flags().BoolVar(&recordConsent, "consent", false, "Confirm all participants consent to recording")
	cmd.Flags().BoolVar(&recordProcess, "process", false, "Process the meeting immediately after recording")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

// runRecord executes the record command.
func runRecord(ctx context.Context, deps *RecordCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	out := deps.Output
	if out == nil {
		out = os.Stdout
	}
	in := deps.Input
	if in == nil {
		in = os.Stdin
	}

	reader := bufio.NewReader(in)

	if !recordConsent {
		fmt.Fprint(out, "All participants consent to being recorded? [y/N]: ")
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("recording requires consent (pass --consent or answer the prompt)")
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			return fmt.Errorf("recording requires consent from all participants")
		}
	}

	rt, err := buildLocalRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}

	factory := deps.NewDeviceFactory(cfg, dataDir, in)
	sess := recording.NewSession(factory, rt.audio, rt.meetings, recording.Config{
		MaxDuration: cfg.Recording.MaxDuration,
	}, rt.logger)
	defer sess.Close()

	sess.SetConsent(true)
	meetingID, err := sess.Start(ctx, recordTitle, recordAttendees)
	if err != nil {
		return fmt.Errorf("starting recording: %w", err)
	}

	fmt.Fprintf(out, "Recording started (meeting %s)\n", meetingID)
	fmt.Fprintf(out, "Limit: %s\n", cfg.Recording.MaxDuration)

	if cfg.Recording.Command != "" {
		// Capture command owns the audio; stdin carries controls.
		fmt.Fprintln(out, "Controls: [p]ause  [r]esume  [s]top")
		controlLoop(ctx, sess, reader, out)
	} else {
		// Audio comes from stdin; only an interrupt can stop early.
		fmt.Fprintln(out, "Reading audio from stdin; press Ctrl-C to stop.")
		<-ctx.Done()
	}

	// Stop with a fresh context so an interrupt still persists the audio.
	stoppedID, err := sess.Stop(context.Background())
	if err != nil {
		// The automatic stop at the recording limit may have fired first and
		// already persisted the meeting; report it instead of failing.
		if mterrors.IsInvalidState(err) && sess.State() == recording.StateIdle {
			stoppedID = meetingID
		} else {
			return fmt.Errorf("stopping recording: %w", err)
		}
	}

	m, err := getMeeting(context.Background(), rt, stoppedID)
	if err != nil {
		return fmt.Errorf("loading meeting: %w", err)
	}

	fmt.Fprintf(out, "\nRecording stopped.\n")
	fmt.Fprintf(out, "  Meeting:  %s\n", m.ID)
	fmt.Fprintf(out, "  Title:    %s\n", m.Title)
	fmt.Fprintf(out, "  Duration: %s\n", formatSeconds(m.DurationSeconds))
	fmt.Fprintf(out, "  Status:   %s\n", m.Status)

	if !recordProcess {
		fmt.Fprintf(out, "\nProcess it with: minute process %s\n", m.ID)
		return nil
	}

	prt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Fprintf(out, "\nCannot process now: %v\n", err)
		fmt.Fprintf(out, "Process later with: minute process %s\n", m.ID)
		return nil
	}
	defer prt.Close()

	return processMeeting(context.Background(), prt, m.ID, false, out)
}

// controlLoop reads pause/resume/stop words from the reader until stop, EOF
// or context cancellation.
func controlLoop(ctx context.Context, sess *recording.Session, reader *bufio.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				lines <- strings.ToLower(strings.TrimSpace(line))
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "p", "pause":
				if err := sess.Pause(); err != nil {
					fmt.Fprintf(out, "pause: %v\n", err)
				} else {
					fmt.Fprintln(out, "Paused.")
				}
			case "r", "resume":
				if err := sess.Resume(); err != nil {
					fmt.Fprintf(out, "resume: %v\n", err)
				} else {
					fmt.Fprintln(out, "Resumed.")
				}
			case "s", "stop", "q", "":
				return
			default:
				fmt.Fprintln(out, "Controls: [p]ause  [r]esume  [s]top")
			}
		}
	}
}

// formatSeconds renders a duration in seconds as mm:ss or hh:mm:ss.
func formatSeconds(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
