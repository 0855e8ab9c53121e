package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"findings\":[]}  "}}]}`))
	}))
	defer srv.Close()

	c, err := NewChatClient(ChatConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "m", JSONMode: true}, nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"findings":[]}`, out)

	assert.Equal(t, "m", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
}

func TestChatClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewChatClient(ChatConfig{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	c, err = NewChatClient(ChatConfig{BaseURL: empty.URL, Model: "m"}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestNewChatClient_RequiresModelAndURL(t *testing.T) {
	_, err := NewChatClient(ChatConfig{Model: "m"}, nil)
	assert.Error(t, err)
	_, err = NewChatClient(ChatConfig{BaseURL: "http://x"}, nil)
	assert.Error(t, err)
}
