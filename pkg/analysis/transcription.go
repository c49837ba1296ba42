package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/retry"
)

const (
	// MinAudioBytes is the smallest audio payload worth a network round
	// trip; anything below it is rejected before calling out.
	MinAudioBytes = 1024

	// MinTranscriptLength is the shortest trimmed transcript accepted
	// from the speech service.
	MinTranscriptLength = 10

	// transcriptionTimeout caps one transcription request. Long meetings
	// take minutes to transcribe, so this is generous.
	transcriptionTimeout = 15 * time.Minute
)

// TranscriptionClient turns raw audio into validated transcript text via the
// external speech endpoint.
type TranscriptionClient struct {
	endpoint    string
	apiKey      string
	language    string
	httpClient  *http.Client
	retryPolicy retry.Policy
	logger      logging.Logger
}

// TranscriptionOption configures a TranscriptionClient.
type TranscriptionOption func(*TranscriptionClient)

// WithLanguage sets the language hint sent with each request.
func WithLanguage(lang string) TranscriptionOption {
	return func(c *TranscriptionClient) { c.language = lang }
}

// WithTranscriptionRetry overrides the retry policy.
func WithTranscriptionRetry(p retry.Policy) TranscriptionOption {
	return func(c *TranscriptionClient) { c.retryPolicy = p }
}

// WithTranscriptionLogger sets the logger.
func WithTranscriptionLogger(logger logging.Logger) TranscriptionOption {
	return func(c *TranscriptionClient) { c.logger = logger }
}

func NewTranscriptionClient(endpoint, apiKey string, httpClient *http.Client, opts ...TranscriptionOption) *TranscriptionClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: transcriptionTimeout}
	}
	c := &TranscriptionClient{
		endpoint:    endpoint,
		apiKey:      apiKey,
		httpClient:  httpClient,
		retryPolicy: retry.DefaultPolicy(),
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe validates the audio payload, calls the speech endpoint with
// retries, and returns the trimmed transcript text.
func (c *TranscriptionClient) Transcribe(ctx context.Context, fileName string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", mterrors.ErrEmptyAudio
	}
	if len(audio) < MinAudioBytes {
		return "", fmt.Errorf("%w: %d bytes", mterrors.ErrAudioTooSmall, len(audio))
	}

	c.logger.Info("transcribing audio",
		logging.F("file", fileName),
		logging.F("bytes", len(audio)))

	text, err := retry.DoValue(ctx, c.retryPolicy, func() (string, error) {
		return c.transcribeOnce(ctx, fileName, audio)
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if len(text) < MinTranscriptLength {
		return "", fmt.Errorf("%w: %d characters", mterrors.ErrEmptyTranscript, len(text))
	}
	return text, nil
}

// TranscribeStored transcribes audio already uploaded through the chunked
// upload protocol, referenced by its stored file key.
func (c *TranscriptionClient) TranscribeStored(ctx context.Context, fileKey string) (string, error) {
	text, err := retry.DoValue(ctx, c.retryPolicy, func() (string, error) {
		return c.transcribeStoredOnce(ctx, fileKey)
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if len(text) < MinTranscriptLength {
		return "", fmt.Errorf("%w: %d characters", mterrors.ErrEmptyTranscript, len(text))
	}
	return text, nil
}

func (c *TranscriptionClient) transcribeStoredOnce(ctx context.Context, fileKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcriptionTimeout)
	defer cancel()

	payload := map[string]string{"file_key": fileKey}
	if c.language != "" {
		payload["language"] = c.language
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling transcription endpoint: %w", err)
	}
	defer resp.Body.Close()
	return c.decodeTranscript(resp)
}

func (c *TranscriptionClient) transcribeOnce(ctx context.Context, fileName string, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcriptionTimeout)
	defer cancel()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", fileName)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio part: %w", err)
	}
	if c.language != "" {
		if err := writer.WriteField("language", c.language); err != nil {
			return "", fmt.Errorf("writing language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finishing transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling transcription endpoint: %w", err)
	}
	defer resp.Body.Close()
	return c.decodeTranscript(resp)
}

func (c *TranscriptionClient) decodeTranscript(resp *http.Response) (string, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &mterrors.ServiceError{
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	// Speech backends disagree on the field name; accept the known ones.
	var out struct {
		Text          string `json:"text"`
		Transcription string `json:"transcription"`
		Transcript    string `json:"transcript"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding transcription response: %w", mterrors.ErrMalformedResponse)
	}
	for _, candidate := range []string{out.Text, out.Transcription, out.Transcript} {
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no transcript field in response: %w", mterrors.ErrMalformedResponse)
}
