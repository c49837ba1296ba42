// Package cmd provides CLI commands for the minute tool.
package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/minute-cli/config"
	"github.com/otherjamesbrown/minute-cli/credentials"
	"github.com/otherjamesbrown/minute-cli/pkg/analysis"
	"github.com/otherjamesbrown/minute-cli/pkg/audio"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
	"github.com/otherjamesbrown/minute-cli/pkg/pipeline"
	"github.com/otherjamesbrown/minute-cli/pkg/pipeline/observability"
	"github.com/otherjamesbrown/minute-cli/pkg/upload"
)

// runtime holds the wired-up services a command needs. Commands build one
// from the loaded configuration instead of dialing services ad hoc.
type runtime struct {
	cfg    *config.CLIConfig
	logger logging.Logger

	meetings meeting.Store
	audio    audio.Store

	uploadClient *upload.Client
	sessions     upload.SessionStore
	uploads      *upload.Manager

	pipeline *pipeline.Pipeline
	reporter *pipeline.Reporter
	metrics  *observability.PipelineMetrics

	redisClient *redis.Client
}

// newLogger builds the CLI logger from config.
func newLogger(cfg *config.CLIConfig) logging.Logger {
	logCfg := logging.DefaultConfig()
	if cfg.Debug {
		logCfg.Level = logging.LevelDebug
	} else {
		// Interactive commands keep stderr quiet unless something is wrong.
		logCfg.Level = logging.LevelWarn
	}
	return logging.NewLogger(logCfg)
}

// newMeetingStore picks the meeting store backend. Redis is used only when
// configured with shared_meetings; everything else lives in the data dir.
func newMeetingStore(cfg *config.CLIConfig, redisClient *redis.Client) (meeting.Store, error) {
	if cfg.Redis.IsConfigured() && cfg.Redis.SharedMeetings {
		if redisClient == nil {
			return nil, fmt.Errorf("redis configured for shared meetings but not connected")
		}
		return meeting.NewRedisStore(redisClient, cfg.Redis.GetKeyPrefix()), nil
	}
	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return meeting.NewFileStore(dataDir), nil
}

// newRedisClient connects to Redis if configured, otherwise returns nil.
func newRedisClient(cfg *config.CLIConfig) *redis.Client {
	if !cfg.Redis.IsConfigured() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// buildRuntime wires the full processing stack from configuration and stored
// credentials. Commands that only touch local state use buildLocalRuntime
// instead so they work without an API key.
func buildRuntime(cfg *config.CLIConfig) (*runtime, error) {
	rt, err := buildLocalRuntime(cfg)
	if err != nil {
		return nil, err
	}

	credStore, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("initializing credential store: %w", err)
	}
	apiKey, err := credStore.GetActiveAPIKey()
	if err != nil {
		return nil, fmt.Errorf("no API key available (run 'minute auth set'): %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	registry := prometheus.NewRegistry()
	rt.metrics = observability.NewPipelineMetrics(registry)

	rt.uploadClient = upload.NewClient(cfg.GetUploadBaseURL(), apiKey, httpClient)
	rt.uploads = upload.NewManager(rt.uploadClient, rt.sessions,
		upload.WithRetryPolicy(cfg.Retry),
		upload.WithLogger(rt.logger),
		upload.WithMetrics(rt.metrics),
	)

	transcriber := analysis.NewTranscriptionClient(cfg.GetTranscriptionURL(), apiKey, httpClient,
		analysis.WithLanguage(cfg.Language),
		analysis.WithTranscriptionRetry(cfg.Retry),
		analysis.WithTranscriptionLogger(rt.logger),
	)

	completion := analysis.NewCompletionClient(cfg.GetCompletionURL(), apiKey, httpClient)

	rt.reporter = pipeline.NewReporter(nil)
	analyzer := analysis.NewAnalyzer(completion,
		analysis.WithAnalyzerLogger(rt.logger),
		analysis.WithAnalyzerProgress(rt.reporter.Set),
		analysis.WithAnalyzerMetrics(rt.metrics),
	)
	email := analysis.NewEmailDraftGenerator(completion, rt.logger)

	rt.pipeline = pipeline.New(rt.meetings, rt.audio, transcriber, analysis.NewChunker(), analyzer, email,
		pipeline.WithUploader(rt.uploads),
		pipeline.WithReporter(rt.reporter),
		pipeline.WithMetrics(rt.metrics),
		pipeline.WithLogger(rt.logger),
	)

	return rt, nil
}

// buildLocalRuntime wires only the local stores. No credentials required.
func buildLocalRuntime(cfg *config.CLIConfig) (*runtime, error) {
	logger := newLogger(cfg)
	logging.SetGlobal(logger)

	redisClient := newRedisClient(cfg)

	meetings, err := newMeetingStore(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}

	var sessions upload.SessionStore
	if redisClient != nil {
		sessions = upload.NewRedisSessionStore(redisClient, cfg.Redis.GetKeyPrefix(), 0)
	} else {
		sessions = upload.NewFileSessionStore(filepath.Join(dataDir, "uploads"))
	}

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		meetings:    meetings,
		audio:       audio.NewFSStore(filepath.Join(dataDir, "audio")),
		sessions:    sessions,
		redisClient: redisClient,
	}, nil
}

// Close releases runtime resources.
func (rt *runtime) Close() error {
	if rt.redisClient != nil {
		return rt.redisClient.Close()
	}
	return nil
}
