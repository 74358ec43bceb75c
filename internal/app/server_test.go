package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junwei-liu/docgate/internal/config"
)

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Port:            "8080",
		APIKey:          apiKey,
		DefaultLanguage: "Chinese",
		MaxFileSizeMB:   1,
	}
	return NewServer(cfg, nil).httpServer.Handler
}

func TestHealthEndpointShape(t *testing.T) {
	h := newTestRouter(t, "sekret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, "health stays public")

	var env struct {
		Status string            `json:"status"`
		Data   map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, "healthy", env.Data["status"])
	assert.Equal(t, "docgate", env.Data["service"])
	assert.NotEmpty(t, env.Data["version"])
}

func TestConfigRequiresAPIKey(t *testing.T) {
	h := newTestRouter(t, "sekret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("X-API-Key", "sekret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "max_file_size_mb")
}
