package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Operation exceeded time limit",
		SuggestedAction: "Retry, or raise the timeout in ~/.minute/config.yaml",
	},
	ErrNetwork: {
		Code:            ErrNetwork,
		Retryable:       true,
		Description:     "Network request failed",
		SuggestedAction: "Check connectivity and retry: minute process retry <meeting-id>",
	},
	ErrRateLimit: {
		Code:            ErrRateLimit,
		Retryable:       true,
		Description:     "Service rate limit exceeded",
		SuggestedAction: "Wait a moment and retry; the pipeline already paces its calls",
	},
	ErrServiceUnavailable: {
		Code:            ErrServiceUnavailable,
		Retryable:       true,
		Description:     "Service temporarily unavailable",
		SuggestedAction: "Retry later: minute process retry <meeting-id>",
	},
	ErrInvalidFormat: {
		Code:            ErrInvalidFormat,
		Retryable:       false,
		Description:     "Service rejected the request format",
		SuggestedAction: "Check the recording's audio format with minute meeting show <meeting-id>",
	},
	ErrPayloadTooLarge: {
		Code:            ErrPayloadTooLarge,
		Retryable:       false,
		Description:     "Audio exceeds the service size limit",
		SuggestedAction: "Long recordings are uploaded in chunks; check upload.chunk_size in config",
	},
	ErrUnsupportedCodec: {
		Code:            ErrUnsupportedCodec,
		Retryable:       false,
		Description:     "Audio codec not supported by the service",
		SuggestedAction: "Re-record with a supported capture device configuration",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Operation cancelled",
		SuggestedAction: "Check if cancellation was intentional (Ctrl-C) before retrying",
	},
	ErrParseError: {
		Code:            ErrParseError,
		Retryable:       false,
		Description:     "Service response could not be parsed",
		SuggestedAction: "Analysis steps degrade to fallbacks; re-run to regenerate: minute process retry <meeting-id>",
	},
	ErrValidationFailed: {
		Code:            ErrValidationFailed,
		Retryable:       false,
		Description:     "Recording failed validation",
		SuggestedAction: "Inspect the meeting: minute meeting show <meeting-id>",
	},
	ErrUploadFailed: {
		Code:            ErrUploadFailed,
		Retryable:       true,
		Description:     "Chunked upload failed",
		SuggestedAction: "Resume the upload: completed chunks are never re-sent",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Retryable:       false,
		Description:     "Unclassified processing error",
		SuggestedAction: "Run with --debug for details, then minute process retry <meeting-id>",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Run the command again with --debug for details"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
