package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/minute-cli/config"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
)

// Meeting command flags.
var (
	meetingOutputFormat   string
	meetingStatusFilter   string
	meetingLimit          int
	meetingShowTranscript bool
)

// MeetingCommandDeps holds dependencies for meeting commands.
type MeetingCommandDeps struct {
	LoadConfig   func() (*config.CLIConfig, error)
	BuildRuntime func(cfg *config.CLIConfig) (*runtime, error)
	Output       io.Writer
}

// DefaultMeetingDeps returns default dependencies for production use.
func DefaultMeetingDeps() *MeetingCommandDeps {
	return &MeetingCommandDeps{
		LoadConfig:   loadConfig,
		BuildRuntime: buildLocalRuntime,
		Output:       os.Stdout,
	}
}

// NewMeetingCommand creates the root meeting command with all subcommands.
func NewMeetingCommand(deps *MeetingCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultMeetingDeps()
	}

	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Manage recorded meetings",
		Long: `Manage recorded meetings: list them, inspect their artifacts, and
delete the ones you no longer need.

Examples:
  # List all meetings
  minute meeting list

  # Show a meeting's artifacts
  minute meeting show 2f1c9c6e-4b7a-4a87-a2d5-0f0f4f9a2d31

  # Output as JSON
  minute meeting list -o json`,
		Aliases: []string{"meetings"},
	}

	cmd.AddCommand(newMeetingListCommand(deps))
	cmd.AddCommand(newMeetingShowCommand(deps))
	cmd.AddCommand(newMeetingDeleteCommand(deps))

	return cmd
}

// newMeetingListCommand creates the 'meeting list' subcommand.
func newMeetingListCommand(deps *MeetingCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		Long: `List meetings in reverse chronological order (most recent first).

Examples:
  # List all meetings
  minute meeting list

  # Only failed meetings
  minute meeting list --status error

  # Limit results, output as JSON
  minute meeting list --limit 10 -o json`,
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingList(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVar(&meetingStatusFilter, "status", "", "Filter by status: recording, processing, completed, error")
	cmd.Flags().IntVarP(&meetingLimit, "limit", "l", 50, "Maximum number of results")
	cmd.Flags().StringVarP(&meetingOutputFormat, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newMeetingShowCommand creates the 'meeting show' subcommand.
func newMeetingShowCommand(deps *MeetingCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show a meeting's details and artifacts",
		Long: `Show one meeting: metadata, summaries, action items, decisions, open
questions, and the follow-up email draft.

Examples:
  # Show a meeting
  minute meeting show 2f1c9c6e-4b7a-4a87-a2d5-0f0f4f9a2d31

  # Include the full transcript
  minute meeting show 2f1c9c6e --transcript

  # Output as JSON
  minute meeting show 2f1c9c6e -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingShow(cmd.Context(), deps, args[0])
		},
	}

	cmd.Flags().BoolVar(&meetingShowTranscript, "transcript", false, "Include the full transcript")
	cmd.Flags().StringVarP(&meetingOutputFormat, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newMeetingDeleteCommand creates the 'meeting delete' subcommand.
func newMeetingDeleteCommand(deps *MeetingCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <meeting-id>",
		Short:   "Delete a meeting and its audio",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingDelete(cmd.Context(), deps, args[0])
		},
	}
}

// resolveOutputFormat applies the -o flag over the configured default.
func resolveOutputFormat(cfg *config.CLIConfig, flag string) (config.OutputFormat, error) {
	format := cfg.OutputFormat
	if flag != "" {
		format = config.OutputFormat(flag)
		if !format.IsValid() {
			return "", fmt.Errorf("invalid output format: %s", flag)
		}
	}
	return format, nil
}

// getMeeting resolves a meeting by id, accepting unambiguous id prefixes.
func getMeeting(ctx context.Context, rt *runtime, id string) (*meeting.Meeting, error) {
	m, err := meeting.Get(ctx, rt.meetings, id)
	if err == nil {
		return m, nil
	}

	all, loadErr := rt.meetings.Load(ctx)
	if loadErr != nil {
		return nil, err
	}
	var match *meeting.Meeting
	for _, cand := range all {
		if strings.HasPrefix(cand.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("meeting id %q is ambiguous", id)
			}
			match = cand
		}
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}

// runMeetingList executes the meeting list command.
func runMeetingList(ctx context.Context, deps *MeetingCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	format, err := resolveOutputFormat(cfg, meetingOutputFormat)
	if err != nil {
		return err
	}

	rt, err := deps.BuildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	meetings, err := rt.meetings.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading meetings: %w", err)
	}

	if meetingStatusFilter != "" {
		filtered := meetings[:0]
		for _, m := range meetings {
			if string(m.Status) == meetingStatusFilter {
				filtered = append(filtered, m)
			}
		}
		meetings = filtered
	}

	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].Date.After(meetings[j].Date)
	})
	if meetingLimit > 0 && len(meetings) > meetingLimit {
		meetings = meetings[:meetingLimit]
	}

	out := deps.Output
	if out == nil {
		out = os.Stdout
	}
	return outputMeetingList(out, format, meetings)
}

// runMeetingShow executes the meeting show command.
func runMeetingShow(ctx context.Context, deps *MeetingCommandDeps, id string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	format, err := resolveOutputFormat(cfg, meetingOutputFormat)
	if err != nil {
		return err
	}

	rt, err := deps.BuildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := getMeeting(ctx, rt, id)
	if err != nil {
		return err
	}

	out := deps.Output
	if out == nil {
		out = os.Stdout
	}

	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case config.OutputFormatYAML:
		return yaml.NewEncoder(out).Encode(m)
	default:
		return outputMeetingText(out, m, meetingShowTranscript)
	}
}

// runMeetingDelete executes the meeting delete command.
func runMeetingDelete(ctx context.Context, deps *MeetingCommandDeps, id string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	rt, err := deps.BuildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := getMeeting(ctx, rt, id)
	if err != nil {
		return err
	}

	if m.AudioURI != "" {
		if err := rt.audio.Delete(ctx, m.AudioURI); err != nil {
			rt.logger.Warn("Audio blob not deleted")
		}
	}
	if err := meeting.Remove(ctx, rt.meetings, m.ID); err != nil {
		return fmt.Errorf("deleting meeting: %w", err)
	}

	out := deps.Output
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "Deleted meeting %s (%s)\n", m.ID, m.Title)
	return nil
}

// outputMeetingList formats and outputs the meeting list.
func outputMeetingList(out io.Writer, format config.OutputFormat, meetings []*meeting.Meeting) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"meetings": meetings,
			"count":    len(meetings),
		})
	case config.OutputFormatYAML:
		return yaml.NewEncoder(out).Encode(map[string]interface{}{
			"meetings": meetings,
			"count":    len(meetings),
		})
	default:
		return outputMeetingListText(out, meetings)
	}
}

// outputMeetingListText formats the meeting list for terminal display.
func outputMeetingListText(out io.Writer, meetings []*meeting.Meeting) error {
	if len(meetings) == 0 {
		fmt.Fprintln(out, "No meetings found.")
		return nil
	}

	fmt.Fprintf(out, "Meetings (%d):\n\n", len(meetings))
	fmt.Fprintln(out, "  ID        TITLE                                         DATE        DURATION  STATUS")
	fmt.Fprintln(out, "  --        -----                                         ----        --------  ------")

	for _, m := range meetings {
		title := m.Title
		if len(title) > 45 {
			title = title[:42] + "..."
		}
		fmt.Fprintf(out, "  %-9s %-45s %s  %-8s  %s\n",
			shortID(m.ID), title, m.Date.Format("2006-01-02"), formatSeconds(m.DurationSeconds), m.Status)
	}

	fmt.Fprintln(out)
	return nil
}

// shortID truncates a meeting id for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// outputMeetingText formats one meeting for terminal display.
func outputMeetingText(out io.Writer, m *meeting.Meeting, includeTranscript bool) error {
	fmt.Fprintf(out, "Meeting:  %s\n", m.Title)
	fmt.Fprintf(out, "ID:       %s\n", m.ID)
	fmt.Fprintf(out, "Date:     %s\n", m.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "Duration: %s\n", formatSeconds(m.DurationSeconds))
	fmt.Fprintf(out, "Status:   %s\n", m.Status)
	if len(m.Attendees) > 0 {
		fmt.Fprintf(out, "Attendees: %s\n", strings.Join(m.Attendees, ", "))
	}
	if m.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", m.ErrorMessage)
	}

	if a := m.Artifacts; a != nil {
		if a.Summaries.Executive != "" {
			fmt.Fprintf(out, "\nExecutive Summary:\n%s\n", a.Summaries.Executive)
		}
		if len(a.Summaries.Bullets) > 0 {
			fmt.Fprintln(out, "\nKey Points:")
			for _, b := range a.Summaries.Bullets {
				fmt.Fprintf(out, "  - %s\n", b)
			}
		}
		if len(a.ActionItems) > 0 {
			fmt.Fprintln(out, "\nAction Items:")
			for _, item := range a.ActionItems {
				line := item.Title
				if item.Assignee != "" {
					line += " (" + item.Assignee
					if item.DueDate != nil {
						line += ", due " + item.DueDate.Format("2006-01-02")
					}
					line += ")"
				} else if item.DueDate != nil {
					line += " (due " + item.DueDate.Format("2006-01-02") + ")"
				}
				fmt.Fprintf(out, "  - [%s] %s\n", item.Priority, line)
			}
		}
		if len(a.Decisions) > 0 {
			fmt.Fprintln(out, "\nDecisions:")
			for _, d := range a.Decisions {
				fmt.Fprintf(out, "  - %s\n", d.Statement)
			}
		}
		if len(a.OpenQuestions) > 0 {
			fmt.Fprintln(out, "\nOpen Questions:")
			for _, q := range a.OpenQuestions {
				line := q.Question
				if q.Owner != "" {
					line += " (" + q.Owner + ")"
				}
				fmt.Fprintf(out, "  - %s\n", line)
			}
		}
		if a.EmailDraft != nil {
			fmt.Fprintf(out, "\nEmail Draft:\n")
			fmt.Fprintf(out, "Subject: %s\n", a.EmailDraft.Subject)
			if len(a.EmailDraft.RecipientsSuggested) > 0 {
				fmt.Fprintf(out, "To: %s\n", strings.Join(a.EmailDraft.RecipientsSuggested, ", "))
			}
			fmt.Fprintf(out, "\n%s\n", a.EmailDraft.BodyMarkdown)
		}
	}

	if includeTranscript && m.Transcript != "" {
		fmt.Fprintf(out, "\nTranscript:\n%s\n", m.Transcript)
	}

	return nil
}
