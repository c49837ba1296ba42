// Package config provides CLI configuration management for the minute
// command-line tool. It supports loading configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/minute-cli/pkg/retry"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultServiceBaseURL       = "https://api.minute.example.com"
	DefaultTimeout              = 10 * time.Minute
	DefaultOutputFormat         = OutputFormatText
	DefaultConfigDir            = ".minute"
	DefaultConfigFile           = "config.yaml"
	DefaultMaxRecordingDuration = 4 * time.Hour
	DefaultLanguage             = ""
)

// RecordingConfig holds audio capture settings.
type RecordingConfig struct {
	// MaxDuration caps one recording; reaching it stops the session.
	MaxDuration time.Duration `yaml:"max_duration"`

	// Command is the external capture program for the single-file
	// recording strategy (e.g. "rec", "arecord"). Empty selects the
	// in-memory streaming strategy.
	Command string `yaml:"command,omitempty"`

	// CommandArgs are passed to the capture program before the output path.
	CommandArgs []string `yaml:"command_args,omitempty"`
}

// RedisConfig holds optional Redis settings. When configured, upload
// sessions (and, if SharedMeetings is set, the meeting list) live in Redis
// instead of the local data directory.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr,omitempty"`

	// Password is the Redis AUTH password.
	Password string `yaml:"password,omitempty"`

	// DB is the Redis database number.
	DB int `yaml:"db,omitempty"`

	// KeyPrefix namespaces all keys written by this CLI.
	KeyPrefix string `yaml:"key_prefix,omitempty"`

	// SharedMeetings stores the meeting list in Redis as well, for use
	// across machines.
	SharedMeetings bool `yaml:"shared_meetings,omitempty"`
}

// IsConfigured returns true if a Redis address is set.
func (c *RedisConfig) IsConfigured() bool {
	return c != nil && c.Addr != ""
}

// GetKeyPrefix returns the key prefix, defaulting to "minute".
func (c *RedisConfig) GetKeyPrefix() string {
	if c == nil || c.KeyPrefix == "" {
		return "minute"
	}
	return c.KeyPrefix
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// ServiceBaseURL is the base URL of the backing service. The upload,
	// transcription and completion endpoints are derived from it unless
	// overridden individually.
	ServiceBaseURL string `yaml:"service_base_url"`

	// TranscriptionURL overrides the derived transcription endpoint.
	TranscriptionURL string `yaml:"transcription_url,omitempty"`

	// CompletionURL overrides the derived completion endpoint.
	CompletionURL string `yaml:"completion_url,omitempty"`

	// Timeout is the default timeout for API requests.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// DataDir is where audio blobs, the meeting list and upload session
	// state are kept. Defaults to the config directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// Language is the transcription language hint (e.g. "en").
	Language string `yaml:"language,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// Recording holds audio capture settings.
	Recording RecordingConfig `yaml:"recording"`

	// Retry is the policy applied to transcription and chunk upload calls.
	Retry retry.Policy `yaml:"retry"`

	// Redis holds optional Redis settings.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		ServiceBaseURL: DefaultServiceBaseURL,
		Timeout:        DefaultTimeout,
		OutputFormat:   DefaultOutputFormat,
		Recording: RecordingConfig{
			MaxDuration: DefaultMaxRecordingDuration,
		},
		Retry: retry.DefaultPolicy(),
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MINUTE_CONFIG_DIR if set, otherwise ~/.minute
func ConfigDir() (string, error) {
	if dir := os.Getenv("MINUTE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.minute/config.yaml or $MINUTE_CONFIG_DIR/config.yaml)
// 3. Environment variables (MINUTE_SERVICE_URL, MINUTE_TIMEOUT, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// We need a temp struct for unmarshaling durations as strings.
	type recordingFile struct {
		MaxDuration string   `yaml:"max_duration"`
		Command     string   `yaml:"command"`
		CommandArgs []string `yaml:"command_args"`
	}
	type retryFile struct {
		MaxRetries     int     `yaml:"max_retries"`
		InitialBackoff string  `yaml:"initial_backoff"`
		MaxBackoff     string  `yaml:"max_backoff"`
		BackoffFactor  float64 `yaml:"backoff_factor"`
	}
	type configFile struct {
		ServiceBaseURL   string        `yaml:"service_base_url"`
		TranscriptionURL string        `yaml:"transcription_url"`
		CompletionURL    string        `yaml:"completion_url"`
		Timeout          string        `yaml:"timeout"`
		OutputFormat     OutputFormat  `yaml:"output_format"`
		DataDir          string        `yaml:"data_dir"`
		Language         string        `yaml:"language"`
		Debug            bool          `yaml:"debug"`
		Recording        recordingFile `yaml:"recording"`
		Retry            *retryFile    `yaml:"retry"`
		Redis            *RedisConfig  `yaml:"redis"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.ServiceBaseURL != "" {
		cfg.ServiceBaseURL = fileCfg.ServiceBaseURL
	}
	if fileCfg.TranscriptionURL != "" {
		cfg.TranscriptionURL = fileCfg.TranscriptionURL
	}
	if fileCfg.CompletionURL != "" {
		cfg.CompletionURL = fileCfg.CompletionURL
	}
	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.DataDir != "" {
		cfg.DataDir = fileCfg.DataDir
	}
	if fileCfg.Language != "" {
		cfg.Language = fileCfg.Language
	}
	cfg.Debug = fileCfg.Debug

	if fileCfg.Recording.MaxDuration != "" {
		d, err := time.ParseDuration(fileCfg.Recording.MaxDuration)
		if err != nil {
			return fmt.Errorf("parsing recording max_duration: %w", err)
		}
		cfg.Recording.MaxDuration = d
	}
	if fileCfg.Recording.Command != "" {
		cfg.Recording.Command = fileCfg.Recording.Command
		cfg.Recording.CommandArgs = fileCfg.Recording.CommandArgs
	}

	if fileCfg.Retry != nil {
		if fileCfg.Retry.MaxRetries > 0 {
			cfg.Retry.MaxRetries = fileCfg.Retry.MaxRetries
		}
		if fileCfg.Retry.InitialBackoff != "" {
			d, err := time.ParseDuration(fileCfg.Retry.InitialBackoff)
			if err != nil {
				return fmt.Errorf("parsing retry initial_backoff: %w", err)
			}
			cfg.Retry.InitialBackoff = d
		}
		if fileCfg.Retry.MaxBackoff != "" {
			d, err := time.ParseDuration(fileCfg.Retry.MaxBackoff)
			if err != nil {
				return fmt.Errorf("parsing retry max_backoff: %w", err)
			}
			cfg.Retry.MaxBackoff = d
		}
		if fileCfg.Retry.BackoffFactor > 0 {
			cfg.Retry.BackoffFactor = fileCfg.Retry.BackoffFactor
		}
	}

	if fileCfg.Redis != nil {
		cfg.Redis = fileCfg.Redis
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("MINUTE_SERVICE_URL"); v != "" {
		cfg.ServiceBaseURL = v
	}

	if v := os.Getenv("MINUTE_TRANSCRIPTION_URL"); v != "" {
		cfg.TranscriptionURL = v
	}

	if v := os.Getenv("MINUTE_COMPLETION_URL"); v != "" {
		cfg.CompletionURL = v
	}

	if v := os.Getenv("MINUTE_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("MINUTE_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("MINUTE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("MINUTE_LANGUAGE"); v != "" {
		cfg.Language = v
	}

	if v := os.Getenv("MINUTE_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("MINUTE_MAX_RECORDING_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recording.MaxDuration = d
		}
	}

	if v := os.Getenv("MINUTE_RECORDING_COMMAND"); v != "" {
		parts := strings.Fields(v)
		cfg.Recording.Command = parts[0]
		cfg.Recording.CommandArgs = parts[1:]
	}

	loadRedisFromEnv(cfg)
}

// loadRedisFromEnv overlays Redis environment variables.
func loadRedisFromEnv(cfg *CLIConfig) {
	addr := os.Getenv("MINUTE_REDIS_ADDR")
	if addr == "" && cfg.Redis == nil {
		return
	}

	if cfg.Redis == nil {
		cfg.Redis = &RedisConfig{}
	}

	if addr != "" {
		cfg.Redis.Addr = addr
	}
	if v := os.Getenv("MINUTE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MINUTE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("MINUTE_REDIS_KEY_PREFIX"); v != "" {
		cfg.Redis.KeyPrefix = v
	}
	if v := os.Getenv("MINUTE_REDIS_SHARED_MEETINGS"); v == "true" || v == "1" {
		cfg.Redis.SharedMeetings = true
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.ServiceBaseURL == "" {
		return fmt.Errorf("service_base_url is required")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.Recording.MaxDuration <= 0 {
		return fmt.Errorf("recording max_duration must be positive")
	}

	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry max_retries must be positive")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	// Convert to YAML-friendly format with durations as strings.
	type recordingFile struct {
		MaxDuration string   `yaml:"max_duration"`
		Command     string   `yaml:"command,omitempty"`
		CommandArgs []string `yaml:"command_args,omitempty"`
	}
	type retryFile struct {
		MaxRetries     int     `yaml:"max_retries"`
		InitialBackoff string  `yaml:"initial_backoff"`
		MaxBackoff     string  `yaml:"max_backoff"`
		BackoffFactor  float64 `yaml:"backoff_factor"`
	}
	type configFile struct {
		ServiceBaseURL   string        `yaml:"service_base_url"`
		TranscriptionURL string        `yaml:"transcription_url,omitempty"`
		CompletionURL    string        `yaml:"completion_url,omitempty"`
		Timeout          string        `yaml:"timeout"`
		OutputFormat     OutputFormat  `yaml:"output_format"`
		DataDir          string        `yaml:"data_dir,omitempty"`
		Language         string        `yaml:"language,omitempty"`
		Debug            bool          `yaml:"debug,omitempty"`
		Recording        recordingFile `yaml:"recording"`
		Retry            retryFile     `yaml:"retry"`
		Redis            *RedisConfig  `yaml:"redis,omitempty"`
	}

	fileCfg := configFile{
		ServiceBaseURL:   cfg.ServiceBaseURL,
		TranscriptionURL: cfg.TranscriptionURL,
		CompletionURL:    cfg.CompletionURL,
		Timeout:          cfg.Timeout.String(),
		OutputFormat:     cfg.OutputFormat,
		DataDir:          cfg.DataDir,
		Language:         cfg.Language,
		Debug:            cfg.Debug,
		Recording: recordingFile{
			MaxDuration: cfg.Recording.MaxDuration.String(),
			Command:     cfg.Recording.Command,
			CommandArgs: cfg.Recording.CommandArgs,
		},
		Retry: retryFile{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: cfg.Retry.InitialBackoff.String(),
			MaxBackoff:     cfg.Retry.MaxBackoff.String(),
			BackoffFactor:  cfg.Retry.BackoffFactor,
		},
		Redis: cfg.Redis,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// GetDataDir returns the expanded data directory, defaulting to the config
// directory.
func (c *CLIConfig) GetDataDir() (string, error) {
	if c.DataDir != "" {
		return ExpandPath(c.DataDir)
	}
	return ConfigDir()
}

// GetUploadBaseURL returns the base URL for the chunked upload endpoints.
func (c *CLIConfig) GetUploadBaseURL() string {
	return strings.TrimRight(c.ServiceBaseURL, "/")
}

// GetTranscriptionURL returns the transcription endpoint.
func (c *CLIConfig) GetTranscriptionURL() string {
	if c.TranscriptionURL != "" {
		return c.TranscriptionURL
	}
	return strings.TrimRight(c.ServiceBaseURL, "/") + "/transcribe"
}

// GetCompletionURL returns the completion endpoint.
func (c *CLIConfig) GetCompletionURL() string {
	if c.CompletionURL != "" {
		return c.CompletionURL
	}
	return strings.TrimRight(c.ServiceBaseURL, "/") + "/complete"
}
