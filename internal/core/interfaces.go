package core

import (
	"context"
	"io"
	"time"

	"github.com/junwei-liu/docgate/internal/models"
)

// Store defines all structured persistence the gateway needs. It abstracts
// the filesystem and PostgreSQL backends so higher layers never depend on a
// specific one. Implementations only need atomic single-key upsert/read
// semantics; all cross-request ordering is enforced above the store.
type Store interface {
	EnsureUser(ctx context.Context, userID string) error
	GetOrCreateSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	TouchSession(ctx context.Context, userID, sessionID string) error

	AppendTurn(ctx context.Context, userID, sessionID string, turn *models.ChatTurn) error
	RecentTurns(ctx context.Context, userID, sessionID string, limit int) ([]models.ChatTurn, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByHash(ctx context.Context, userID, sessionID, fileHash string) (*models.Document, error)
	ListSessionDocuments(ctx context.Context, userID, sessionID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, docID, status, failReason string, processedAt *time.Time) error
	PutFileStorage(ctx context.Context, fs *models.FileStorage) error

	// Extraction results are cached globally by content hash: extraction is
	// pure, so identical bytes always yield identical text.
	GetExtractedText(ctx context.Context, fileHash string) (string, bool, error)
	PutExtractedText(ctx context.Context, fileHash, text string) error

	GetCache(ctx context.Context, userID, sessionID, docHash, mode string) (*models.ProcessingCache, error)
	PutCache(ctx context.Context, entry *models.ProcessingCache) error

	// Embedding-backed retrieval for qa mode. SaveChunkEmbeddings replaces any
	// prior chunk/embedding set for the document wholesale.
	SaveChunkEmbeddings(ctx context.Context, docID, model string, chunks []models.DocumentChunk, vectors [][]float32) error
	HasChunkEmbeddings(ctx context.Context, docID, model string) (bool, error)
	SearchChunkEmbeddings(ctx context.Context, docID, model string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	// CleanupInactiveSessions removes sessions whose last activity is older
	// than the cutoff, cascading their turns, documents, chunks and caches.
	// It returns the number of sessions removed.
	CleanupInactiveSessions(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}

// BlobStore holds raw uploaded bytes. Backed by a local directory or any
// S3-compatible object storage.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
	Backend() string // local | s3
}

// Message is one turn of an LLM conversation.
type Message struct {
	Role    string // system | user | assistant
	Content string
}

// LLMProvider is the prompt-in/token-stream-out boundary to the external
// model endpoint.
type LLMProvider interface {
	// Chat returns the full completion for the given messages.
	Chat(ctx context.Context, msgs []Message) (string, error)
	// ChatStream invokes onToken for each token/fragment as it arrives.
	// A non-nil error from onToken stops consumption of the upstream stream.
	ChatStream(ctx context.Context, msgs []Message, onToken func(string) error) error
}

// EmbeddingProvider turns texts into vectors for similarity retrieval.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentExtractor converts raw file bytes into plain text. Parsers are
// treated as black boxes; the contentType and filename hints pick the
// strategy.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType, filename string) (string, error)
}
