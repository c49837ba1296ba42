package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minute-cli/config"
	"github.com/otherjamesbrown/minute-cli/pkg/buildinfo"
)

// Global flags.
var (
	rootDebug  bool
	rootOutput string
)

// loadConfig loads configuration and applies the global flag overrides.
func loadConfig() (*config.CLIConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if rootDebug {
		cfg.Debug = true
	}
	if rootOutput != "" {
		format := config.OutputFormat(rootOutput)
		if !format.IsValid() {
			return nil, fmt.Errorf("invalid output format: %s", rootOutput)
		}
		cfg.OutputFormat = format
	}
	return cfg, nil
}

// NewRootCommand creates the minute root command with all subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "minute",
		Short: "minute - record meetings and turn them into minutes",
		Long: `minute records meetings, transcribes them, and distills the transcript
into action items, decisions, open questions, summaries, and a
follow-up email draft.

COMMON WORKFLOWS:
  Record a meeting:   minute record --title "Weekly sync" --consent
  Process it:         minute process <meeting-id>
  Read the results:   minute meeting show <meeting-id>
  Check an upload:    minute status <upload-id>

DISCOVERY:
  minute <command> --help   Subcommands, flags, and examples`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&rootDebug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&rootOutput, "output", "", "output format: text, json, yaml")

	root.AddGroup(
		&cobra.Group{ID: "meetings", Title: "Meetings:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	recordCmd := NewRecordCommand(nil)
	recordCmd.GroupID = "meetings"
	root.AddCommand(recordCmd)

	processCmd := NewProcessCommand(nil)
	processCmd.GroupID = "meetings"
	root.AddCommand(processCmd)

	meetingCmd := NewMeetingCommand(nil)
	meetingCmd.GroupID = "meetings"
	root.AddCommand(meetingCmd)

	statusCmd := NewStatusCommand(nil)
	statusCmd.GroupID = "meetings"
	root.AddCommand(statusCmd)

	authCmd := NewAuthCommand()
	authCmd.GroupID = "setup"
	root.AddCommand(authCmd)

	configCmd := NewConfigCommand()
	configCmd.GroupID = "setup"
	root.AddCommand(configCmd)

	versionCmd := newVersionCommand()
	versionCmd.GroupID = "setup"
	root.AddCommand(versionCmd)

	return root
}

// newVersionCommand creates the 'version' command.
func newVersionCommand() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get()
			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Printf("minute version %s\n", info.Version)
			fmt.Printf("  commit:     %s\n", info.Commit)
			fmt.Printf("  built:      %s\n", info.BuildTime)
			fmt.Printf("  go version: %s\n", info.GoVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	return cmd
}
