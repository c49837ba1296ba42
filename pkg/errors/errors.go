// Package errors provides common domain error types for the minute application.
//
// This package defines sentinel errors for common domain conditions like "not found"
// or "consent required" that can be used across all packages. Using typed errors
// enables consistent error handling patterns with errors.Is() checks.
//
// Usage:
//
//	import mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
//
//	// Return a domain error
//	return nil, mterrors.ErrNotFound
//
//	// Check for domain errors
//	if mterrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrConsentRequired indicates recording was attempted without the consent flag set.
	ErrConsentRequired = errors.New("recording consent required")

	// ErrEmptyAudio indicates the recorded audio is empty.
	ErrEmptyAudio = errors.New("audio is empty")

	// ErrAudioTooSmall indicates the recorded audio is below the minimum size
	// worth sending to the transcription service.
	ErrAudioTooSmall = errors.New("audio below minimum size")

	// ErrEmptyTranscript indicates the transcription result was empty or too short.
	ErrEmptyTranscript = errors.New("transcript is empty")

	// ErrMalformedResponse indicates a service response was missing every known
	// field the client accepts.
	ErrMalformedResponse = errors.New("malformed service response")

	// ErrIncompleteUpload indicates finalize was attempted before every chunk
	// was acknowledged.
	ErrIncompleteUpload = errors.New("upload incomplete")

	// ErrAlreadyProcessing indicates a processing run is already in flight for
	// the meeting in this process.
	ErrAlreadyProcessing = errors.New("meeting is already being processed")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConsentRequired reports whether any error in err's chain is ErrConsentRequired.
func IsConsentRequired(err error) bool {
	return errors.Is(err, ErrConsentRequired)
}

// IsValidation reports whether err is one of the audio/transcript validation
// errors. Validation failures are fatal to a processing run but user-retryable.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyAudio) ||
		errors.Is(err, ErrAudioTooSmall) ||
		errors.Is(err, ErrEmptyTranscript)
}

// IsIncompleteUpload reports whether any error in err's chain is ErrIncompleteUpload.
func IsIncompleteUpload(err error) bool {
	return errors.Is(err, ErrIncompleteUpload)
}

// IsAlreadyProcessing reports whether any error in err's chain is ErrAlreadyProcessing.
func IsAlreadyProcessing(err error) bool {
	return errors.Is(err, ErrAlreadyProcessing)
}
