// Package credentials provides secure API key storage for the minute CLI.
// The key lives in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI and headless environments, set MINUTE_API_KEY instead; it takes
// precedence over the keyring.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// keyringService is the service name used in the system keyring.
	keyringService = "minute-cli"
	// keyringUser is the user/account name used in the system keyring.
	keyringUser = "api-key"

	// DefaultCredentialsDir holds the non-secret credential metadata.
	DefaultCredentialsDir = ".minute"
	// DefaultCredentialsFile is the metadata file name.
	DefaultCredentialsFile = "credentials.yaml"

	// EnvAPIKey overrides the stored key when set.
	EnvAPIKey = "MINUTE_API_KEY"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no API key is stored.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
)

// Metadata holds the non-secret facts about the stored key. The key itself
// never touches this file.
type Metadata struct {
	// ServiceURL is the service this key is for.
	ServiceURL string `yaml:"service_url,omitempty"`
	// Subject is the account identifier, if known.
	Subject string `yaml:"subject,omitempty"`
	// LastUpdated is when the key was last stored.
	LastUpdated time.Time `yaml:"last_updated"`
}

// Store manages API key storage.
type Store struct {
	// metadataDir is the directory containing the metadata file.
	metadataDir string
}

// NewStore creates a credential store rooted at the default directory.
func NewStore() (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}
	return &Store{metadataDir: dir}, nil
}

// CredentialsDir returns the credentials directory path.
// Uses $MINUTE_CONFIG_DIR if set, otherwise ~/.minute
func CredentialsDir() (string, error) {
	if dir := os.Getenv("MINUTE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultCredentialsDir), nil
}

// Save stores the API key in the system keyring and writes the metadata file.
func (s *Store) Save(apiKey string, meta Metadata) error {
	if apiKey == "" {
		return errors.New("api key is empty")
	}

	if err := keyring.Set(keyringService, keyringUser, apiKey); err != nil {
		return fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}

	meta.LastUpdated = time.Now()
	if err := os.MkdirAll(s.metadataDir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshaling credential metadata: %w", err)
	}

	metaPath := filepath.Join(s.metadataDir, DefaultCredentialsFile)
	if err := os.WriteFile(metaPath, data, 0600); err != nil {
		return fmt.Errorf("writing credential metadata: %w", err)
	}

	return nil
}

// Load reads the API key from the system keyring.
func (s *Store) Load() (string, error) {
	apiKey, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoCredentials
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return apiKey, nil
}

// LoadMetadata reads the stored metadata. A missing file yields zero metadata,
// not an error.
func (s *Store) LoadMetadata() (Metadata, error) {
	var meta Metadata

	data, err := os.ReadFile(filepath.Join(s.metadataDir, DefaultCredentialsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, nil
		}
		return meta, fmt.Errorf("reading credential metadata: %w", err)
	}

	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parsing credential metadata: %w", err)
	}
	return meta, nil
}

// Delete removes the stored API key and its metadata.
func (s *Store) Delete() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: deleting key: %v", ErrKeyringUnavailable, err)
	}

	metaPath := filepath.Join(s.metadataDir, DefaultCredentialsFile)
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credential metadata: %w", err)
	}
	return nil
}

// Exists reports whether an API key is stored.
func (s *Store) Exists() bool {
	_, err := s.Load()
	return err == nil
}

// GetActiveAPIKey returns the API key to use. The MINUTE_API_KEY environment
// variable takes precedence over the keyring.
func (s *Store) GetActiveAPIKey() (string, error) {
	if apiKey := os.Getenv(EnvAPIKey); apiKey != "" {
		return apiKey, nil
	}
	return s.Load()
}

// KeyringDescription names the key storage mechanism for the current platform.
func KeyringDescription() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// MaskAPIKey returns a masked version of the key for display.
func MaskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
}
