package handlers

import (
	"net/http"

	"github.com/junwei-liu/docgate/internal/config"
)

const (
	serviceName    = "docgate"
	serviceVersion = "0.1.0"
)

// MetaHandler serves the health and capability endpoints.
type MetaHandler struct {
	cfg *config.Config
}

func NewMetaHandler(cfg *config.Config) *MetaHandler {
	return &MetaHandler{cfg: cfg}
}

func (h *MetaHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	}, nil)
}

func (h *MetaHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"modes":            []string{"translate", "qa", "summarize", "analyze", "extract", "compare"},
		"supported_types":  []string{"pdf", "docx", "pptx", "txt", "md", "json"},
		"max_file_size_mb": h.cfg.MaxFileSizeMB,
		"llm_provider":     h.cfg.LLMProvider,
		"storage_backend":  h.cfg.StorageBackend,
		"auth_required":    h.cfg.APIKey != "",
	}, nil)
}
