package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatibleGenerate(t *testing.T) {
	var received struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Page 3 covers it."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "test-model"})
	require.NoError(t, err)

	answer, err := client.Generate(context.Background(), "system text", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "Page 3 covers it.", answer)

	assert.Equal(t, "test-model", received.Model)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Equal(t, "system text", received.Messages[0].Content)
	assert.Equal(t, "user", received.Messages[1].Role)
	assert.Equal(t, "user prompt", received.Messages[1].Content)
}

func TestOpenAICompatibleGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL, APIKey: "bad", Model: "m"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "", "prompt")
	assert.Error(t, err)
}

func TestOpenAICompatibleStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL, APIKey: "sk", Model: "m"})
	require.NoError(t, err)

	var chunks []string
	full, err := client.Stream(context.Background(), "", "prompt", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", full)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestNewOpenAICompatibleClientValidation(t *testing.T) {
	_, err := NewOpenAICompatibleClient(ChatConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenAICompatibleClient(ChatConfig{APIKey: "k"})
	assert.Error(t, err)
}
