package service

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/model"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIChatSendsSystemAndHistory(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"use errors.Is"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.AIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-test"})
	out, err := p.Chat(context.Background(), "be brief", []AIChatMessage{
		{Role: model.ChatRoleUser, Content: "q1"},
		{Role: model.ChatRoleAssistant, Content: "a1"},
		{Role: model.ChatRoleUser, Content: "q2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "use errors.Is", out)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, AIChatMessage{Role: "system", Content: "be brief"}, got.Messages[0])
	assert.Equal(t, "q2", got.Messages[3].Content)
}

func TestOpenAIChatErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.AIConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := p.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	p = NewOpenAIProvider(config.AIConfig{BaseURL: empty.URL, APIKey: "k"})
	_, err = p.Complete(context.Background(), "", "hi")
	assert.Error(t, err)
}
