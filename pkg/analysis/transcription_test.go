package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/retry"
)

func singleAttempt() retry.Policy {
	return retry.Policy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1}
}

func validAudio() []byte {
	return make([]byte, 4096)
}

func TestTranscribe_RejectsEmptyAudio(t *testing.T) {
	c := NewTranscriptionClient("http://unused", "", nil, WithTranscriptionRetry(singleAttempt()))

	_, err := c.Transcribe(context.Background(), "m.webm", nil)
	assert.ErrorIs(t, err, mterrors.ErrEmptyAudio)
}

func TestTranscribe_RejectsUndersizedAudio(t *testing.T) {
	c := NewTranscriptionClient("http://unused", "", nil, WithTranscriptionRetry(singleAttempt()))

	_, err := c.Transcribe(context.Background(), "m.webm", make([]byte, 100))
	assert.ErrorIs(t, err, mterrors.ErrAudioTooSmall)
}

func TestTranscribe_AcceptsAnyKnownResponseField(t *testing.T) {
	tests := []struct {
		name  string
		field string
	}{
		{"text", "text"},
		{"transcription", "transcription"},
		{"transcript", "transcript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseMultipartForm(32<<20))
				_, _, err := r.FormFile("audio")
				require.NoError(t, err)
				assert.Equal(t, "en", r.FormValue("language"))

				_ = json.NewEncoder(w).Encode(map[string]string{
					tt.field: "  the transcribed meeting text  ",
				})
			}))
			defer srv.Close()

			c := NewTranscriptionClient(srv.URL, "key", srv.Client(),
				WithLanguage("en"),
				WithTranscriptionRetry(singleAttempt()))

			text, err := c.Transcribe(context.Background(), "m.webm", validAudio())
			require.NoError(t, err)
			assert.Equal(t, "the transcribed meeting text", text)
		})
	}
}

func TestTranscribe_MissingTranscriptField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "done"})
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, "", srv.Client(), WithTranscriptionRetry(singleAttempt()))

	_, err := c.Transcribe(context.Background(), "m.webm", validAudio())
	assert.ErrorIs(t, err, mterrors.ErrMalformedResponse)
}

func TestTranscribe_TrimmedTranscriptTooShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "   hi   "})
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, "", srv.Client(), WithTranscriptionRetry(singleAttempt()))

	_, err := c.Transcribe(context.Background(), "m.webm", validAudio())
	assert.ErrorIs(t, err, mterrors.ErrEmptyTranscript)
}

func TestTranscribe_RetriesTransientFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "recovered transcript"})
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, "", srv.Client(),
		WithTranscriptionRetry(retry.Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1}))

	text, err := c.Transcribe(context.Background(), "m.webm", validAudio())
	require.NoError(t, err)
	assert.Equal(t, "recovered transcript", text)
	assert.Equal(t, 3, calls)
}

func TestTranscribe_ServiceErrorAfterExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad codec", http.StatusUnsupportedMediaType)
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, "", srv.Client(), WithTranscriptionRetry(singleAttempt()))

	_, err := c.Transcribe(context.Background(), "m.webm", validAudio())
	require.Error(t, err)

	var se *mterrors.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnsupportedMediaType, se.StatusCode)
}
