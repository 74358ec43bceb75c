package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/junwei-liu/docgate/internal/config"
	"github.com/junwei-liu/docgate/internal/i18n"
	"github.com/junwei-liu/docgate/internal/intent"
	"github.com/junwei-liu/docgate/internal/orchestrator"
)

const (
	defaultUser    = "default_user"
	defaultSession = "default_session"
)

type ChatHandler struct {
	orch *orchestrator.Orchestrator
	cfg  *config.Config
}

func NewChatHandler(orch *orchestrator.Orchestrator, cfg *config.Config) *ChatHandler {
	return &ChatHandler{orch: orch, cfg: cfg}
}

type chatData struct {
	Answer    string   `json:"answer"`
	Mode      string   `json:"mode"`
	Documents []string `json:"documents,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Cached    bool     `json:"cached"`
}

type chatMetadata struct {
	User     string `json:"user"`
	Session  string `json:"session"`
	Language string `json:"language"`
	Model    string `json:"model,omitempty"`
}

// Chat serves POST /api/chat. Multipart form fields: query (required),
// user, session, stream, target_language, plus zero or more "files" parts.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.cfg.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

	language := h.cfg.DefaultLanguage
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, i18n.ErrFileTooLarge, language)
			return
		}
		writeError(w, http.StatusBadRequest, i18n.ErrInvalidRequest, language)
		return
	}

	query := r.FormValue("query")
	if lang := intent.DetectLanguage(query); lang != "" {
		language = lang
	}

	req := orchestrator.Request{
		UserID:         formDefault(r, "user", defaultUser),
		SessionID:      formDefault(r, "session", defaultSession),
		Query:          query,
		TargetLanguage: strings.TrimSpace(r.FormValue("target_language")),
	}
	stream := strings.EqualFold(r.FormValue("stream"), "true")

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			if fh.Size > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, i18n.ErrFileTooLarge, language)
				return
			}
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, i18n.ErrInvalidRequest, language)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, i18n.ErrInvalidRequest, language)
				return
			}
			req.Files = append(req.Files, orchestrator.Upload{
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	if stream {
		h.streamChat(w, r, req, language)
		return
	}

	resp, err := h.orch.Handle(r.Context(), req, nil)
	if err != nil {
		code, status := mapError(err)
		writeError(w, status, code, language)
		return
	}
	writeSuccess(w, http.StatusOK, chatData{
		Answer:    resp.Answer,
		Mode:      string(resp.Mode),
		Documents: resp.Documents,
		Warnings:  resp.Warnings,
		Cached:    resp.Cached,
	}, chatMetadata{
		User:     req.UserID,
		Session:  req.SessionID,
		Language: resp.Language,
		Model:    h.cfg.GenModel,
	})
}

// streamChat writes the answer as plain text fragments. Errors before the
// first byte get the JSON envelope; after that the stream just ends.
func (h *ChatHandler) streamChat(w http.ResponseWriter, r *http.Request, req orchestrator.Request, language string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, i18n.ErrProcessingFailed, language)
		return
	}

	started := false
	sink := func(tok string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, tok); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if _, err := h.orch.Handle(r.Context(), req, sink); err != nil {
		if !started {
			code, status := mapError(err)
			writeError(w, status, code, language)
			return
		}
		log.Printf("stream aborted for %s/%s: %v", req.UserID, req.SessionID, err)
	}
}

func formDefault(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return def
}

func mapError(err error) (code string, status int) {
	var ce *orchestrator.Error
	if !errors.As(err, &ce) {
		return i18n.ErrProcessingFailed, http.StatusInternalServerError
	}
	switch ce.Code {
	case i18n.ErrInvalidRequest, i18n.ErrComparisonNeeds, i18n.ErrNoContent, i18n.ErrUnsupportedFile:
		return ce.Code, http.StatusBadRequest
	case i18n.ErrFileTooLarge:
		return ce.Code, http.StatusRequestEntityTooLarge
	case i18n.ErrLLMTimeout:
		return ce.Code, http.StatusGatewayTimeout
	case i18n.ErrLLMFailed:
		return ce.Code, http.StatusBadGateway
	default:
		return ce.Code, http.StatusInternalServerError
	}
}
