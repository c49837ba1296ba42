package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrTimeout            ErrorCode = "timeout"
	ErrNetwork            ErrorCode = "network_error"
	ErrRateLimit          ErrorCode = "rate_limit"
	ErrServiceUnavailable ErrorCode = "service_unavailable"
	ErrInvalidFormat      ErrorCode = "invalid_format"
	ErrPayloadTooLarge    ErrorCode = "payload_too_large"
	ErrUnsupportedCodec   ErrorCode = "unsupported_codec"
	ErrContextCancelled   ErrorCode = "context_cancelled"
	ErrParseError         ErrorCode = "parse_error"
	ErrValidationFailed   ErrorCode = "validation_failed"
	ErrUploadFailed       ErrorCode = "upload_failed"
	ErrProcessingError    ErrorCode = "processing_error"
)

// PipelineError is a structured error for pipeline failures.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ServiceError is a non-2xx response from one of the external services.
// The pipeline classifies it by status code per the user-facing message table.
type ServiceError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ChunkUploadError reports which chunk exhausted its retries.
type ChunkUploadError struct {
	Index int
	Cause error
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("chunk %d upload failed: %v", e.Index, e.Cause)
}

func (e *ChunkUploadError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects an error and returns a *PipelineError with the appropriate code.
// If the error doesn't match any known pattern, it returns a PipelineError with ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	// Already classified: keep the code, prefer the earlier stage annotation.
	var existing *PipelineError
	if errors.As(err, &existing) {
		if existing.Stage == "" {
			existing.Stage = stage
		}
		return existing
	}

	pe := &PipelineError{
		Stage: stage,
		Cause: err,
	}

	// Check for context deadline exceeded (timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
		return pe
	}

	// Check for context cancelled
	if errors.Is(err, context.Canceled) {
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
		return pe
	}

	// Validation sentinels are fatal but user-retryable.
	if IsValidation(err) || errors.Is(err, ErrConsentRequired) {
		pe.Code = ErrValidationFailed
		pe.Message = err.Error()
		return pe
	}

	// Malformed or unparseable service output.
	if errors.Is(err, ErrMalformedResponse) {
		pe.Code = ErrParseError
		pe.Message = err.Error()
		return pe
	}

	// Chunk upload exhaustion.
	var cue *ChunkUploadError
	if errors.As(err, &cue) {
		pe.Code = ErrUploadFailed
		pe.Message = cue.Error()
		return pe
	}
	if errors.Is(err, ErrIncompleteUpload) {
		pe.Code = ErrUploadFailed
		pe.Message = err.Error()
		return pe
	}

	// Non-2xx service responses, classified by status.
	var se *ServiceError
	if errors.As(err, &se) {
		pe.Message = se.Error()
		switch {
		case se.StatusCode == 400:
			pe.Code = ErrInvalidFormat
		case se.StatusCode == 413:
			pe.Code = ErrPayloadTooLarge
		case se.StatusCode == 415:
			pe.Code = ErrUnsupportedCodec
		case se.StatusCode == 429:
			pe.Code = ErrRateLimit
		case se.StatusCode >= 500:
			pe.Code = ErrServiceUnavailable
		default:
			pe.Code = ErrProcessingError
		}
		return pe
	}

	// Transport-level failures.
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			pe.Code = ErrTimeout
			pe.Message = "operation timed out"
			return pe
		}
		pe.Code = ErrNetwork
		pe.Message = err.Error()
		return pe
	}

	// Check error message patterns
	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") {
		pe.Code = ErrRateLimit
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") || strings.Contains(lower, "network is unreachable") {
		pe.Code = ErrNetwork
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "unavailable") || strings.Contains(lower, "503") {
		pe.Code = ErrServiceUnavailable
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") {
		pe.Code = ErrTimeout
		pe.Message = msg
		return pe
	}

	// Default to processing error
	pe.Code = ErrProcessingError
	pe.Message = msg
	return pe
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
// This function checks the error code using the ErrorCodeRegistry.
func IsErrorRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := ErrorCodeRegistry[pe.Code]; ok {
			return info.Retryable
		}
	}
	return false
}

// UserMessage derives a single human-readable message for the error, suitable
// for surfacing to the person who ran the command. Classified errors use the
// registry description; everything else falls back to the raw error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	pe := ClassifyError(err, "")
	if info, ok := ErrorCodeRegistry[pe.Code]; ok {
		return fmt.Sprintf("%s: %s", info.Description, pe.Message)
	}
	return pe.Message
}
