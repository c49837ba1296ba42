// Package recording owns the live capture lifecycle: the session state
// machine, the duration timer, and the automatic stop at the recording limit.
package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/minute-cli/pkg/audio"
	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
)

// State is the session's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// DeviceFactory builds the capture device for a new session. Selecting the
// strategy happens here, once, at session construction.
type DeviceFactory func(meetingID string) (audio.Device, error)

// Config holds session tunables.
type Config struct {
	// MaxDuration caps a recording; a tick reaching it schedules one
	// automatic stop.
	MaxDuration time.Duration

	// TickInterval is the duration-timer period. Production uses one second;
	// tests shrink it.
	TickInterval time.Duration
}

// DefaultConfig returns the production session configuration.
func DefaultConfig() Config {
	return Config{
		MaxDuration:  4 * time.Hour,
		TickInterval: time.Second,
	}
}

// Session is the recording state machine. It owns the capture device and the
// duration timer exclusively; nothing else mutates them.
type Session struct {
	mu sync.Mutex

	state     State
	consent   bool
	meetingID string
	duration  int // seconds, monotonic while recording

	device  audio.Device
	factory DeviceFactory

	cfg      Config
	store    audio.Store
	meetings meeting.Store
	logger   logging.Logger
	tasks    *TaskQueue

	tickStop      chan struct{}
	autoStopArmed bool
}

// NewSession creates an idle session.
func NewSession(factory DeviceFactory, store audio.Store, meetings meeting.Store, cfg Config, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.MustGlobal()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultConfig().MaxDuration
	}
	return &Session{
		state:    StateIdle,
		factory:  factory,
		cfg:      cfg,
		store:    store,
		meetings: meetings,
		logger:   logger.With(logging.F("component", "recording_session")),
		tasks:    NewTaskQueue(),
	}
}

// SetConsent records whether the user has consented to being recorded.
// Start refuses to run until this is set.
func (s *Session) SetConsent(granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consent = granted
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MeetingID returns the id of the meeting being recorded, or "" when idle.
func (s *Session) MeetingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetingID
}

// Duration returns the elapsed recording seconds.
func (s *Session) Duration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Start acquires the capture device and begins recording a new meeting.
// It returns the new meeting's id.
func (s *Session) Start(ctx context.Context, title string, attendees []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.consent {
		return "", mterrors.ErrConsentRequired
	}
	if s.state != StateIdle {
		return "", fmt.Errorf("start from %s: %w", s.state, mterrors.ErrInvalidState)
	}

	meetingID := uuid.New().String()

	device, err := s.factory(meetingID)
	if err != nil {
		return "", fmt.Errorf("acquiring capture device: %w", err)
	}
	if err := device.Start(ctx); err != nil {
		return "", fmt.Errorf("starting capture device: %w", err)
	}

	m := &meeting.Meeting{
		ID:        meetingID,
		Title:     title,
		Date:      time.Now(),
		Attendees: attendees,
		Status:    meeting.StatusRecording,
	}
	if err := meeting.Upsert(ctx, s.meetings, m); err != nil {
		_, _ = device.Stop()
		return "", fmt.Errorf("persisting meeting: %w", err)
	}

	s.device = device
	s.meetingID = meetingID
	s.duration = 0
	s.state = StateRecording
	s.autoStopArmed = false
	s.tickStop = make(chan struct{})
	go s.tickLoop(s.tickStop)

	s.logger.Info("Recording started",
		logging.F("meeting_id", meetingID),
		logging.F("title", title),
		logging.F("attendees", len(attendees)))
	return meetingID, nil
}

// tickLoop increments duration once per tick while recording. When the
// duration reaches the limit it schedules exactly one automatic stop on the
// deferred task queue; stopping inline would re-enter session state from the
// timer callback.
func (s *Session) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	maxSeconds := int(s.cfg.MaxDuration / s.cfg.TickInterval)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state == StateRecording && s.duration < maxSeconds {
				s.duration++
				if s.duration >= maxSeconds && !s.autoStopArmed {
					s.autoStopArmed = true
					s.logger.Warn("Recording limit reached, scheduling automatic stop",
						logging.F("meeting_id", s.meetingID),
						logging.F("duration_seconds", s.duration))
					s.tasks.Schedule(func() {
						if _, err := s.Stop(context.Background()); err != nil {
							s.logger.Error("Automatic stop failed", logging.Err(err))
						}
					})
				}
			}
			s.mu.Unlock()
		}
	}
}

// Pause suspends the device and the duration timer. Device pause failures
// are logged, not raised; recording continues.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return fmt.Errorf("pause from %s: %w", s.state, mterrors.ErrInvalidState)
	}

	if err := s.device.Pause(); err != nil {
		s.logger.Warn("Device pause failed, recording continues",
			logging.F("meeting_id", s.meetingID),
			logging.Err(err))
		return nil
	}

	s.state = StatePaused
	s.logger.Info("Recording paused", logging.F("meeting_id", s.meetingID))
	return nil
}

// Resume continues a paused recording.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("resume from %s: %w", s.state, mterrors.ErrInvalidState)
	}

	if err := s.device.Resume(); err != nil {
		return fmt.Errorf("resuming capture device: %w", err)
	}

	s.state = StateRecording
	s.logger.Info("Recording resumed", logging.F("meeting_id", s.meetingID))
	return nil
}

// Stop ends the recording: it stops the device, persists the raw audio,
// updates the meeting, and resets the session to idle. The state reset
// happens even when persistence fails midway, so Stop is idempotent with
// respect to session state. It returns the meeting id, or "" on total
// failure.
func (s *Session) Stop(ctx context.Context) (string, error) {
	s.mu.Lock()

	if s.state != StateRecording && s.state != StatePaused {
		s.mu.Unlock()
		return "", fmt.Errorf("stop from %s: %w", s.state, mterrors.ErrInvalidState)
	}

	meetingID := s.meetingID
	duration := s.duration
	device := s.device

	close(s.tickStop)
	s.reset()
	s.mu.Unlock()

	raw, err := device.Stop()
	if err != nil {
		s.logger.Error("Capture device stop failed",
			logging.F("meeting_id", meetingID),
			logging.Err(err))
		s.markError(ctx, meetingID, duration, fmt.Sprintf("capture failed: %v", err))
		return "", fmt.Errorf("stopping capture device: %w", err)
	}

	var audioURI string
	var status meeting.Status
	if len(raw.Data) > 0 && duration > 0 {
		if err := s.store.Store(ctx, meetingID, raw.Data); err != nil {
			s.logger.Error("Persisting audio failed",
				logging.F("meeting_id", meetingID),
				logging.Err(err))
			s.markError(ctx, meetingID, duration, fmt.Sprintf("storing audio failed: %v", err))
			return "", fmt.Errorf("persisting audio: %w", err)
		}
		audioURI = meetingID
		status = meeting.StatusProcessing
	} else {
		status = meeting.StatusError
	}

	m, err := meeting.Get(ctx, s.meetings, meetingID)
	if err != nil {
		return "", fmt.Errorf("loading meeting: %w", err)
	}
	m.DurationSeconds = duration
	m.AudioURI = audioURI
	m.Status = status
	if status == meeting.StatusError {
		m.ErrorMessage = "recording produced no audio"
	}
	if err := meeting.Upsert(ctx, s.meetings, m); err != nil {
		return "", fmt.Errorf("persisting meeting: %w", err)
	}

	s.logger.Info("Recording stopped",
		logging.F("meeting_id", meetingID),
		logging.F("duration_seconds", duration),
		logging.F("status", string(status)),
		logging.F("audio_bytes", len(raw.Data)))
	return meetingID, nil
}

// reset clears in-memory session state back to idle. Caller holds the lock.
func (s *Session) reset() {
	s.state = StateIdle
	s.meetingID = ""
	s.duration = 0
	s.device = nil
	s.tickStop = nil
	s.autoStopArmed = false
}

// markError best-effort records a failed stop on the meeting record.
func (s *Session) markError(ctx context.Context, meetingID string, duration int, msg string) {
	m, err := meeting.Get(ctx, s.meetings, meetingID)
	if err != nil {
		return
	}
	m.DurationSeconds = duration
	m.Status = meeting.StatusError
	m.ErrorMessage = msg
	if err := meeting.Upsert(ctx, s.meetings, m); err != nil {
		s.logger.Error("Recording error state not persisted", logging.Err(err))
	}
}

// Close releases the deferred task queue. The session must be idle.
func (s *Session) Close() {
	s.tasks.Close()
}
