package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/minute-cli/config"
	"github.com/otherjamesbrown/minute-cli/credentials"
)

// Auth command flags.
var (
	authAPIKey         string
	authNonInteractive bool
)

// NewAuthCommand creates the auth command group.
func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API key",
		Long: `Manage the API key used for transcription and analysis calls.

The key is stored in the system keyring; only non-secret metadata is
written to ~/.minute/credentials.yaml. The MINUTE_API_KEY environment
variable takes precedence over the stored key.`,
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the API key",
		Long: `Store the API key in the system keyring.

Examples:
  # Interactive (prompts with hidden input)
  minute auth set

  # From a flag
  minute auth set --api-key mk-abc123...

  # From the environment
  MINUTE_API_KEY=mk-abc123... minute auth set`,
		RunE: runAuthSet,
	}
	setCmd.Flags().StringVar(&authAPIKey, "api-key", "", "API key to store")
	setCmd.Flags().BoolVar(&authNonInteractive, "non-interactive", false, "Fail instead of prompting for input")

	cmd.AddCommand(setCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored key (masked)",
		RunE:  runAuthShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "clear",
		Short:   "Remove the stored key",
		Aliases: []string{"logout"},
		RunE:    runAuthClear,
	})

	return cmd
}

// runAuthSet handles the auth set command.
func runAuthSet(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	apiKey := authAPIKey
	if apiKey == "" {
		if envKey := os.Getenv(credentials.EnvAPIKey); envKey != "" {
			apiKey = envKey
			fmt.Printf("Using API key from %s environment variable\n", credentials.EnvAPIKey)
		}
	}

	if apiKey == "" {
		if authNonInteractive {
			return fmt.Errorf("no API key provided and --non-interactive flag set")
		}
		apiKey, err = promptForAPIKey()
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
	}

	if len(apiKey) < 8 {
		return fmt.Errorf("API key is too short")
	}

	cfg, err := config.LoadConfig()
	meta := credentials.Metadata{LastUpdated: time.Now()}
	if err == nil {
		meta.ServiceURL = cfg.ServiceBaseURL
	}

	if err := store.Save(apiKey, meta); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}

	fmt.Println("API key stored.")
	fmt.Printf("  Key:     %s\n", credentials.MaskAPIKey(apiKey))
	fmt.Printf("  Storage: %s\n", credentials.KeyringDescription())
	return nil
}

// promptForAPIKey prompts for the key with hidden input, falling back to a
// plain read when stdin is not a terminal.
func promptForAPIKey() (string, error) {
	fmt.Print("API Key: ")
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		keyBytes = []byte(line)
	}

	apiKey := strings.TrimSpace(string(keyBytes))
	if apiKey == "" {
		return "", fmt.Errorf("no API key provided")
	}
	return apiKey, nil
}

// runAuthShow handles the auth show command.
func runAuthShow(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	if envKey := os.Getenv(credentials.EnvAPIKey); envKey != "" {
		fmt.Printf("%s: %s (active)\n", credentials.EnvAPIKey, credentials.MaskAPIKey(envKey))
	}

	apiKey, err := store.Load()
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			fmt.Println("Stored key: none")
			if os.Getenv(credentials.EnvAPIKey) == "" {
				fmt.Println("\nNot authenticated. Run 'minute auth set' to store an API key.")
			}
			return nil
		}
		return fmt.Errorf("loading API key: %w", err)
	}

	fmt.Printf("Stored key: %s\n", credentials.MaskAPIKey(apiKey))
	fmt.Printf("Storage:    %s\n", credentials.KeyringDescription())

	meta, err := store.LoadMetadata()
	if err == nil {
		if meta.ServiceURL != "" {
			fmt.Printf("Service:    %s\n", meta.ServiceURL)
		}
		if !meta.LastUpdated.IsZero() {
			fmt.Printf("Updated:    %s\n", meta.LastUpdated.Format(time.RFC3339))
		}
	}

	if os.Getenv(credentials.EnvAPIKey) != "" {
		fmt.Printf("\nActive source: environment (%s takes precedence)\n", credentials.EnvAPIKey)
	}
	return nil
}

// runAuthClear handles the auth clear command.
func runAuthClear(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	if !store.Exists() {
		fmt.Println("No stored API key found.")
		return nil
	}

	if err := store.Delete(); err != nil {
		return fmt.Errorf("removing API key: %w", err)
	}

	fmt.Println("Stored API key removed.")
	if os.Getenv(credentials.EnvAPIKey) != "" {
		fmt.Printf("\nNote: %s environment variable is still set.\n", credentials.EnvAPIKey)
	}
	return nil
}
