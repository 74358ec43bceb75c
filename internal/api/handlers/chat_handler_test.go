package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junwei-liu/docgate/internal/cache"
	"github.com/junwei-liu/docgate/internal/config"
	"github.com/junwei-liu/docgate/internal/core"
	"github.com/junwei-liu/docgate/internal/core/extract"
	"github.com/junwei-liu/docgate/internal/core/filestore"
	objectclient "github.com/junwei-liu/docgate/internal/core/object-client"
	"github.com/junwei-liu/docgate/internal/orchestrator"
	"github.com/junwei-liu/docgate/internal/session"
)

type stubLLM struct {
	answer   string
	lastMsgs []core.Message
}

func (s *stubLLM) Chat(ctx context.Context, msgs []core.Message) (string, error) {
	s.lastMsgs = msgs
	return s.answer, nil
}

func (s *stubLLM) ChatStream(ctx context.Context, msgs []core.Message, onToken func(string) error) error {
	s.lastMsgs = msgs
	for _, r := range s.answer {
		if err := onToken(string(r)); err != nil {
			return err
		}
	}
	return nil
}

func newHandler(t *testing.T) (*ChatHandler, *stubLLM) {
	t.Helper()
	cfg := &config.Config{
		MaxFileSizeMB:   1,
		DefaultLanguage: "Chinese",
		GenModel:        "test-model",
	}
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	blobs, err := objectclient.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewManager(store, blobs)
	llm := &stubLLM{answer: "handler answer"}
	orch := orchestrator.New(store, sessions, cache.New(store, time.Hour),
		llm, nil, extract.NewDocconvExtractor(false),
		orchestrator.Options{ModelName: "test-model", RequestTimeout: 10 * time.Second})
	return NewChatHandler(orch, cfg), llm
}

type formFile struct {
	name string
	body []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestChatSuccessEnvelope(t *testing.T) {
	h, _ := newHandler(t)
	body, ct := multipartBody(t,
		map[string]string{"query": "please summarize this", "user": "alice", "session": "s1"},
		[]formFile{{name: "doc.txt", body: []byte("document body text")}})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Status   string       `json:"status"`
		Data     chatData     `json:"data"`
		Metadata chatMetadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, "handler answer", env.Data.Answer)
	assert.Equal(t, "summarize", env.Data.Mode)
	assert.Equal(t, []string{"doc.txt"}, env.Data.Documents)
	assert.Equal(t, "alice", env.Metadata.User)
	assert.Equal(t, "s1", env.Metadata.Session)
	assert.Equal(t, "English", env.Metadata.Language)
	assert.Contains(t, rec.Body.String(), `"answer"`)
}

func TestChatTargetLanguageOverride(t *testing.T) {
	h, llm := newHandler(t)
	// the query alone implies Chinese→English; the explicit field wins
	body, ct := multipartBody(t,
		map[string]string{"query": "请翻译这段话", "target_language": "Chinese"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, llm.lastMsgs)
	assert.Contains(t, llm.lastMsgs[0].Content, "翻译专家")
	assert.NotContains(t, llm.lastMsgs[0].Content, "CHINESE TEXT TO ENGLISH")
}

func TestChatDefaultIdentity(t *testing.T) {
	h, _ := newHandler(t)
	body, ct := multipartBody(t, map[string]string{"query": "hello"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Metadata chatMetadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "default_user", env.Metadata.User)
	assert.Equal(t, "default_session", env.Metadata.Session)
}

func TestChatStreamingResponse(t *testing.T) {
	h, _ := newHandler(t)
	body, ct := multipartBody(t, map[string]string{"query": "hello", "stream": "true"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	out, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "handler answer", string(out))
}

func TestChatEmptyQueryRejectedInChinese(t *testing.T) {
	h, _ := newHandler(t)
	body, ct := multipartBody(t, map[string]string{"query": "  "}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "invalid_request", env.Error)
	assert.NotEmpty(t, env.Details)
}

func TestChatOversizedFileRejected(t *testing.T) {
	h, _ := newHandler(t)
	big := bytes.Repeat([]byte("x"), 2<<20) // 2 MiB against a 1 MiB limit
	body, ct := multipartBody(t, map[string]string{"query": "summarize"},
		[]formFile{{name: "big.txt", body: big}})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "file_too_large", env.Error)
}
