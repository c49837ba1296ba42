package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrNotFound, true},
		{"wrapped once", fmt.Errorf("get meeting: %w", ErrNotFound), true},
		{"wrapped twice", fmt.Errorf("store: %w", fmt.Errorf("load: %w", ErrNotFound)), true},
		{"different error", ErrInvalidState, false},
		{"nil error", nil, false},
		{"unrelated error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsConsentRequired(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrConsentRequired, true},
		{"wrapped", fmt.Errorf("start: %w", ErrConsentRequired), true},
		{"different error", ErrNotFound, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConsentRequired(tt.err); got != tt.want {
				t.Errorf("IsConsentRequired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"empty audio", ErrEmptyAudio, true},
		{"too small", fmt.Errorf("check: %w", ErrAudioTooSmall), true},
		{"empty transcript", ErrEmptyTranscript, true},
		{"consent is not validation", ErrConsentRequired, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.want {
				t.Errorf("IsValidation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIncompleteUpload(t *testing.T) {
	if !IsIncompleteUpload(fmt.Errorf("finalize: %w", ErrIncompleteUpload)) {
		t.Error("expected wrapped ErrIncompleteUpload to match")
	}
	if IsIncompleteUpload(errors.New("other")) {
		t.Error("unrelated error must not match")
	}
}

func TestIsAlreadyProcessing(t *testing.T) {
	if !IsAlreadyProcessing(fmt.Errorf("process: %w", ErrAlreadyProcessing)) {
		t.Error("expected wrapped ErrAlreadyProcessing to match")
	}
	if IsAlreadyProcessing(nil) {
		t.Error("nil must not match")
	}
}
