package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junwei-liu/docgate/internal/core"
)

func TestVLLMChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		fmt.Fprint(w, `{"choices":[{"message":{"content":"the answer"}}]}`)
	}))
	defer srv.Close()

	c := NewVLLMClient(srv.URL, "test-model", "")
	out, err := c.Chat(context.Background(), []core.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)
}

func TestVLLMChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"你好", ", ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewVLLMClient(srv.URL, "test-model", "")
	var got string
	err := c.ChatStream(context.Background(), []core.Message{{Role: "user", Content: "hi"}}, func(tok string) error {
		got += tok
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "你好, world", got)
}

func TestVLLMChatStreamSinkErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 100; i++ {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"t%d\"}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewVLLMClient(srv.URL, "test-model", "")
	calls := 0
	err := c.ChatStream(context.Background(), []core.Message{{Role: "user", Content: "hi"}}, func(string) error {
		calls++
		if calls == 3 {
			return fmt.Errorf("client went away")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestVLLMChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewVLLMClient(srv.URL, "test-model", "")
	_, err := c.Chat(context.Background(), []core.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestVLLMAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	c := NewVLLMClient(srv.URL, "m", "sk-test")
	_, err := c.Chat(context.Background(), []core.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
}
