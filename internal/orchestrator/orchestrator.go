// Package orchestrator drives one chat request end to end: session state,
// file registration, extraction, intent routing, chunking, model calls and
// history persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/junwei-liu/docgate/internal/cache"
	"github.com/junwei-liu/docgate/internal/chunker"
	"github.com/junwei-liu/docgate/internal/core"
	"github.com/junwei-liu/docgate/internal/core/extract"
	"github.com/junwei-liu/docgate/internal/i18n"
	"github.com/junwei-liu/docgate/internal/intent"
	"github.com/junwei-liu/docgate/internal/models"
	"github.com/junwei-liu/docgate/internal/session"
)

const (
	historyLimit     = 12
	qaHistoryTurns   = 6
	qaRetrievalLimit = 5
)

// Error carries a machine-readable code the HTTP layer renders through the
// bilingual catalogue.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func coded(code string, err error) *Error { return &Error{Code: code, Err: err} }

// Upload is one file attached to a chat request.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Request is a parsed chat call. TargetLanguage, when set, overrides the
// translation direction inferred from the query.
type Request struct {
	UserID         string
	SessionID      string
	Query          string
	TargetLanguage string
	Files          []Upload
}

// Sink receives streamed answer fragments. A nil sink disables streaming.
// A non-nil error from the sink aborts the model stream; the partial answer
// is then not persisted.
type Sink func(token string) error

// Response reports what a request did. Answer holds the full text also
// when it was streamed.
type Response struct {
	Mode      intent.Mode
	Language  string
	Answer    string
	Documents []string
	Warnings  []string
	Cached    bool
}

type Orchestrator struct {
	store     core.Store
	sessions  *session.Manager
	cache     *cache.ChunkCache
	llm       core.LLMProvider
	embedder  core.EmbeddingProvider // nil disables vector retrieval
	extractor core.DocumentExtractor

	modelName  string
	embedModel string
	timeout    time.Duration
	defaultLng string
}

type Options struct {
	ModelName       string
	EmbedModel      string
	RequestTimeout  time.Duration
	DefaultLanguage string
}

func New(store core.Store, sessions *session.Manager, chunkCache *cache.ChunkCache,
	llm core.LLMProvider, embedder core.EmbeddingProvider, extractor core.DocumentExtractor,
	opts Options) *Orchestrator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "Chinese"
	}
	return &Orchestrator{
		store:      store,
		sessions:   sessions,
		cache:      chunkCache,
		llm:        llm,
		embedder:   embedder,
		extractor:  extractor,
		modelName:  opts.ModelName,
		embedModel: opts.EmbedModel,
		timeout:    opts.RequestTimeout,
		defaultLng: opts.DefaultLanguage,
	}
}

// document pairs a registered document with its extracted text.
type document struct {
	doc  *models.Document
	text string
}

// Handle runs one chat request. The user turn is persisted before the
// model call; the assistant turn is persisted only after the full answer
// was produced and, when streaming, fully delivered.
func (o *Orchestrator) Handle(ctx context.Context, req Request, sink Sink) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" && len(req.Files) == 0 {
		return nil, coded(i18n.ErrInvalidRequest, errors.New("empty query and no files"))
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if _, err := o.sessions.Open(ctx, req.UserID, req.SessionID); err != nil {
		return nil, coded(i18n.ErrStorageFailed, err)
	}

	language := intent.DetectLanguage(req.Query)
	if language == "" {
		language = o.defaultLng
	}

	history, err := o.sessions.History(ctx, req.UserID, req.SessionID, historyLimit)
	if err != nil {
		return nil, coded(i18n.ErrStorageFailed, err)
	}

	if err := o.sessions.AppendTurn(ctx, req.UserID, req.SessionID, "user", req.Query, nil); err != nil {
		return nil, coded(i18n.ErrStorageFailed, err)
	}

	docs, warnings, err := o.ingestFiles(ctx, req)
	if err != nil {
		return nil, err
	}

	mode, params := intent.Classify(req.Query, len(req.Files) > 0, len(req.Files), len(history) > 0)

	// No fresh upload: fall back to documents already in the session.
	if len(docs) == 0 {
		docs, err = o.sessionDocuments(ctx, req.UserID, req.SessionID)
		if err != nil {
			return nil, coded(i18n.ErrStorageFailed, err)
		}
	}

	resp := &Response{Mode: mode, Language: language, Warnings: warnings}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, d.doc.FileName)
	}

	answer, cached, err := o.dispatch(ctx, req, mode, params, language, docs, history, sink)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, coded(i18n.ErrLLMTimeout, err)
		}
		var ce *Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, coded(i18n.ErrLLMFailed, err)
	}
	resp.Answer = answer
	resp.Cached = cached

	meta := map[string]string{"mode": string(mode)}
	if o.modelName != "" {
		meta["model"] = o.modelName
	}
	if err := o.sessions.AppendTurn(ctx, req.UserID, req.SessionID, "assistant", answer, meta); err != nil {
		return nil, coded(i18n.ErrStorageFailed, err)
	}
	return resp, nil
}

// ingestFiles registers and extracts every upload concurrently. A file
// that fails extraction degrades the request with a warning instead of
// failing it, unless no usable content remains at all.
func (o *Orchestrator) ingestFiles(ctx context.Context, req Request) ([]document, []string, error) {
	if len(req.Files) == 0 {
		return nil, nil, nil
	}

	docs := make([]document, len(req.Files))
	warns := make([]string, len(req.Files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range req.Files {
		g.Go(func() error {
			if !extract.Supported(f.FileName) {
				warns[i] = fmt.Sprintf("%s: unsupported format", f.FileName)
				return nil
			}
			doc, err := o.sessions.RegisterDocument(gctx, req.UserID, req.SessionID,
				f.FileName, f.ContentType, extract.FileType(f.FileName), f.Data)
			if err != nil {
				return coded(i18n.ErrStorageFailed, err)
			}

			text, err := o.extractDocument(gctx, doc, f)
			if err != nil {
				warns[i] = fmt.Sprintf("%s: %v", f.FileName, err)
				return nil
			}
			docs[i] = document{doc: doc, text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []document
	var warnings []string
	for i := range docs {
		if docs[i].doc != nil {
			out = append(out, docs[i])
		}
		if warns[i] != "" {
			warnings = append(warnings, warns[i])
		}
	}
	if len(out) == 0 {
		return nil, warnings, coded(i18n.ErrProcessingFailed, fmt.Errorf("no file could be processed: %s", strings.Join(warnings, "; ")))
	}
	return out, warnings, nil
}

// extractDocument returns the document's plain text, via the global
// extraction cache when the content hash was seen before.
func (o *Orchestrator) extractDocument(ctx context.Context, doc *models.Document, f Upload) (string, error) {
	if text, ok, err := o.store.GetExtractedText(ctx, doc.FileHash); err != nil {
		return "", err
	} else if ok {
		if doc.Status != models.StatusProcessed {
			_ = o.sessions.MarkProcessed(ctx, doc.ID)
		}
		return text, nil
	}

	if err := o.sessions.MarkProcessing(ctx, doc.ID); err != nil {
		return "", err
	}
	text, err := o.extractor.ExtractText(ctx, f.Data, f.ContentType, f.FileName)
	if err != nil {
		_ = o.sessions.MarkFailed(ctx, doc.ID, err.Error())
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		_ = o.sessions.MarkFailed(ctx, doc.ID, "document yielded no text")
		return "", errors.New("document yielded no text")
	}

	if err := o.store.PutExtractedText(ctx, doc.FileHash, text); err != nil {
		return "", err
	}
	if err := o.sessions.MarkProcessed(ctx, doc.ID); err != nil {
		return "", err
	}
	return text, nil
}

// sessionDocuments loads previously processed documents of the session,
// newest last, with their cached extraction text.
func (o *Orchestrator) sessionDocuments(ctx context.Context, userID, sessionID string) ([]document, error) {
	all, err := o.sessions.Documents(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	var out []document
	for i := range all {
		d := &all[i]
		if d.Status != models.StatusProcessed {
			continue
		}
		text, ok, err := o.store.GetExtractedText(ctx, d.FileHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, document{doc: d, text: text})
	}
	return out, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, req Request, mode intent.Mode, params intent.Params,
	language string, docs []document, history []models.ChatTurn, sink Sink) (string, bool, error) {

	switch mode {
	case intent.ModeTranslate:
		return o.runTranslate(ctx, req, params, language, docs, sink)
	case intent.ModeSummarize:
		return o.runChunked(ctx, req, mode, language, docs, sink,
			func(text string) []core.Message { return summarizeMessages(text, language) })
	case intent.ModeAnalyze:
		return o.runChunked(ctx, req, mode, language, docs, sink, analyzeMessages)
	case intent.ModeExtract:
		answer, err := o.runExtract(ctx, req, language, docs, sink)
		return answer, false, err
	case intent.ModeCompare:
		answer, err := o.runCompare(ctx, req, language, docs, sink)
		return answer, false, err
	default:
		answer, err := o.runQA(ctx, req, language, docs, history, sink)
		return answer, false, err
	}
}

// chunksFor builds (or reuses) the mode-specific chunk sequence for one
// document through the coalescing cache.
func (o *Orchestrator) chunksFor(ctx context.Context, req Request, d document, mode intent.Mode) ([]models.Chunk, error) {
	return o.cache.GetOrBuild(ctx, req.UserID, req.SessionID, d.doc.FileHash, string(mode), func() ([]models.Chunk, error) {
		return chunker.Split(d.text, mode), nil
	})
}

// deliver sends a precomputed answer through the sink, or just returns it.
func deliver(answer string, sink Sink) (string, error) {
	if sink != nil {
		if err := sink(answer); err != nil {
			return "", err
		}
	}
	return answer, nil
}

// complete runs one model call, streaming through the sink when present.
func (o *Orchestrator) complete(ctx context.Context, msgs []core.Message, sink Sink) (string, error) {
	if sink == nil {
		return o.llm.Chat(ctx, msgs)
	}
	var b strings.Builder
	err := o.llm.ChatStream(ctx, msgs, func(tok string) error {
		b.WriteString(tok)
		return sink(tok)
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func (o *Orchestrator) runTranslate(ctx context.Context, req Request, params intent.Params,
	language string, docs []document, sink Sink) (string, bool, error) {

	target := req.TargetLanguage
	if target == "" {
		target = params.TargetLanguage
	}
	if target == "" {
		target = "English"
	}

	// Plain text translation without any document.
	if len(docs) == 0 {
		answer, err := o.complete(ctx, translateMessages(req.Query, target), sink)
		return answer, false, err
	}

	d := docs[len(docs)-1]
	if cached, err := o.cache.GetResult(ctx, req.UserID, req.SessionID, d.doc.FileHash, string(intent.ModeTranslate)); err != nil {
		return "", false, err
	} else if cached != "" {
		answer, err := deliver(cached, sink)
		return answer, true, err
	}

	chunks, err := o.chunksFor(ctx, req, d, intent.ModeTranslate)
	if err != nil {
		return "", false, err
	}
	if len(chunks) == 0 {
		return "", false, coded(i18n.ErrNoContent, errors.New("no chunks"))
	}

	if len(chunks) == 1 {
		answer, err := o.complete(ctx, translateMessages(chunks[0].Text, target), sink)
		if err != nil {
			return "", false, err
		}
		return answer, false, o.cacheResult(ctx, req, d, intent.ModeTranslate, answer)
	}

	// Translate chunk by chunk in order; stream each part as it lands,
	// with separators only between parts so the streamed bytes match the
	// persisted answer.
	var parts []string
	for i, ch := range chunks {
		if i > 0 && sink != nil {
			if err := sink("\n\n"); err != nil {
				return "", false, err
			}
		}
		part, err := o.complete(ctx, translateMessages(ch.Text, target), sink)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, part)
	}
	answer := strings.Join(parts, "\n\n")
	return answer, false, o.cacheResult(ctx, req, d, intent.ModeTranslate, answer)
}

// runChunked handles the summarize and analyze shapes: map each chunk
// through the mode prompt, then combine multi-chunk results.
func (o *Orchestrator) runChunked(ctx context.Context, req Request, mode intent.Mode,
	language string, docs []document, sink Sink, messages func(text string) []core.Message) (string, bool, error) {

	if len(docs) == 0 {
		return "", false, coded(i18n.ErrNoContent, errors.New("no document in session"))
	}
	d := docs[len(docs)-1]

	if cached, err := o.cache.GetResult(ctx, req.UserID, req.SessionID, d.doc.FileHash, string(mode)); err != nil {
		return "", false, err
	} else if cached != "" {
		answer, err := deliver(cached, sink)
		return answer, true, err
	}

	chunks, err := o.chunksFor(ctx, req, d, mode)
	if err != nil {
		return "", false, err
	}
	if len(chunks) == 0 {
		return "", false, coded(i18n.ErrNoContent, errors.New("no chunks"))
	}

	if len(chunks) == 1 {
		answer, err := o.complete(ctx, messages(chunks[0].Text), sink)
		if err != nil {
			return "", false, err
		}
		return answer, false, o.cacheResult(ctx, req, d, mode, answer)
	}

	// Map phase is non-streaming; only the combined pass streams.
	var parts []string
	for _, ch := range chunks {
		part, err := o.llm.Chat(ctx, messages(ch.Text))
		if err != nil {
			return "", false, err
		}
		parts = append(parts, part)
	}
	answer, err := o.complete(ctx, combineMessages(mode, parts, language), sink)
	if err != nil {
		return "", false, err
	}
	return answer, false, o.cacheResult(ctx, req, d, mode, answer)
}

func (o *Orchestrator) cacheResult(ctx context.Context, req Request, d document, mode intent.Mode, answer string) error {
	if err := o.cache.PutResult(ctx, req.UserID, req.SessionID, d.doc.FileHash, string(mode), answer, o.modelName); err != nil {
		log.Printf("WARN: cache result for %s/%s failed: %v", d.doc.FileHash, mode, err)
	}
	return nil
}

func (o *Orchestrator) runExtract(ctx context.Context, req Request, language string,
	docs []document, sink Sink) (string, error) {

	if len(docs) == 0 {
		return "", coded(i18n.ErrNoContent, errors.New("no document in session"))
	}
	d := docs[len(docs)-1]

	chunks, err := o.chunksFor(ctx, req, d, intent.ModeExtract)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", coded(i18n.ErrNoContent, errors.New("no chunks"))
	}

	relevant := selectRelevantChunks(chunks, req.Query, 3)
	return o.complete(ctx, extractMessages(joinChunks(relevant), req.Query), sink)
}

func (o *Orchestrator) runCompare(ctx context.Context, req Request, language string,
	docs []document, sink Sink) (string, error) {

	if len(docs) < 2 {
		return "", coded(i18n.ErrComparisonNeeds, fmt.Errorf("%d document(s) available", len(docs)))
	}

	var texts []string
	for _, d := range docs {
		chunks, err := o.chunksFor(ctx, req, d, intent.ModeCompare)
		if err != nil {
			return "", err
		}
		if len(chunks) == 0 {
			continue
		}
		// one chunk per document keeps the combined prompt bounded
		texts = append(texts, chunks[0].Text)
	}
	if len(texts) < 2 {
		return "", coded(i18n.ErrComparisonNeeds, errors.New("not enough readable documents"))
	}
	return o.complete(ctx, compareMessages(texts, req.Query), sink)
}

func (o *Orchestrator) runQA(ctx context.Context, req Request, language string,
	docs []document, history []models.ChatTurn, sink Sink) (string, error) {

	var docContext string
	if len(docs) > 0 {
		d := docs[len(docs)-1]
		chunks, err := o.chunksFor(ctx, req, d, intent.ModeQA)
		if err != nil {
			return "", err
		}
		docContext = o.retrieveContext(ctx, d, chunks, req.Query)
	}

	msgs := []core.Message{{Role: "system", Content: systemPrompt(language)}}
	if n := len(history); n > 0 {
		start := n - qaHistoryTurns
		if start < 0 {
			start = 0
		}
		for _, h := range history[start:] {
			if h.Content == "" {
				continue
			}
			msgs = append(msgs, core.Message{Role: h.Role, Content: h.Content})
		}
	}
	msgs = append(msgs, core.Message{Role: "user", Content: qaUserPrompt(req.Query, docContext, language)})

	return o.complete(ctx, msgs, sink)
}

// retrieveContext picks the chunks most relevant to the question: vector
// similarity when an embedder is configured, keyword overlap otherwise.
// Retrieval failures degrade to the lexical path rather than failing QA.
func (o *Orchestrator) retrieveContext(ctx context.Context, d document, chunks []models.Chunk, query string) string {
	if o.embedder != nil {
		if ctxText, err := o.vectorRetrieve(ctx, d, chunks, query); err != nil {
			log.Printf("WARN: vector retrieval failed for doc %s: %v", d.doc.ID, err)
		} else if ctxText != "" {
			return ctxText
		}
	}
	return joinChunks(selectRelevantChunks(chunks, query, 3))
}

func (o *Orchestrator) vectorRetrieve(ctx context.Context, d document, chunks []models.Chunk, query string) (string, error) {
	has, err := o.store.HasChunkEmbeddings(ctx, d.doc.ID, o.embedModel)
	if err != nil {
		return "", err
	}
	if !has {
		texts := make([]string, len(chunks))
		dcs := make([]models.DocumentChunk, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
			dcs[i] = models.DocumentChunk{
				DocumentID: d.doc.ID,
				ChunkIndex: ch.Index,
				Text:       ch.Text,
				ChunkSize:  ch.Size,
				CreatedAt:  time.Now().UTC(),
			}
		}
		vectors, err := o.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return "", err
		}
		if err := o.store.SaveChunkEmbeddings(ctx, d.doc.ID, o.embedModel, dcs, vectors); err != nil {
			return "", err
		}
	}

	qv, err := o.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return "", err
	}
	if len(qv) == 0 {
		return "", errors.New("empty query embedding")
	}
	hits, err := o.store.SearchChunkEmbeddings(ctx, d.doc.ID, o.embedModel, qv[0], qaRetrievalLimit)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, h := range hits {
		parts = append(parts, h.Text)
	}
	return strings.Join(parts, "\n\n"), nil
}

// selectRelevantChunks ranks chunks by naive keyword overlap with the
// query and returns the top n in document order.
func selectRelevantChunks(chunks []models.Chunk, query string, n int) []models.Chunk {
	if len(chunks) <= n {
		return chunks
	}

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, ch := range chunks {
		lower := strings.ToLower(ch.Text)
		s := 0
		for _, t := range terms {
			if len(t) < 2 {
				continue
			}
			s += strings.Count(lower, t)
		}
		ranked[i] = scored{idx: i, score: s}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	keep := make(map[int]bool, n)
	for _, r := range ranked[:n] {
		keep[r.idx] = true
	}
	var out []models.Chunk
	for i, ch := range chunks {
		if keep[i] {
			out = append(out, ch)
		}
	}
	return out
}

func joinChunks(chunks []models.Chunk) string {
	var parts []string
	for _, ch := range chunks {
		parts = append(parts, ch.Text)
	}
	return strings.Join(parts, "\n\n")
}
