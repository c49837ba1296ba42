package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
	"github.com/otherjamesbrown/minute-cli/pkg/logging"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fence with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence on same line", "```{\"a\":1}```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}

func TestCompletionClient_SendsMessagesAndStripsFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "user", req.Messages[1].Role)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"completion": "```json\n{\"summary\":\"ok\"}\n```",
		})
	}))
	defer srv.Close()

	client := NewCompletionClient(srv.URL, "key", srv.Client())
	out, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "instructions"},
		{Role: "user", Content: "text"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)
}

func TestCompletionClient_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewCompletionClient(srv.URL, "", srv.Client())
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
	require.Error(t, err)

	var se *mterrors.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestCompletionClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewCompletionClient(srv.URL, "", srv.Client())
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
	assert.ErrorIs(t, err, mterrors.ErrMalformedResponse)
}

func TestDecodeOrFallback(t *testing.T) {
	logger := logging.NewNopLogger()

	type payload struct {
		Summary string `json:"summary"`
	}

	got := DecodeOrFallback(logger, "test", `{"summary":"parsed"}`, payload{Summary: "fallback"})
	assert.Equal(t, "parsed", got.Summary)

	got = DecodeOrFallback(logger, "test", "not json at all", payload{Summary: "fallback"})
	assert.Equal(t, "fallback", got.Summary)
}
