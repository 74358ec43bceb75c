package models

import (
	"time"
)

// User represents an external caller identity. Users are created implicitly
// the first time a request references an unseen user id; they are never
// deleted explicitly, only soft-expired with their sessions.
type User struct {
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Session is one conversational thread of a user, identified by the
// (user_id, session_id) pair. LastActivity drives inactivity cleanup.
type Session struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

// ChatTurn is one immutable message in a session's history.
// Turns are append-only and ordered by CreatedAt within a session.
type ChatTurn struct {
	ID        string            `db:"id" json:"id"`
	Role      string            `db:"role" json:"role"` // user | assistant | system
	Content   string            `db:"content" json:"content"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	Meta      map[string]string `db:"meta" json:"meta,omitempty"` // e.g. mode, document ids
}

// Document statuses. Processed and failed are terminal; a terminal document
// only leaves its state via a new upload (new hash) or force-reprocess.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// Document is one uploaded file within a session, identified by the SHA-256
// hash of its raw bytes. Re-uploading identical bytes in the same session
// resolves to the existing record.
type Document struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	SessionID   string     `db:"session_id" json:"session_id"`
	FileHash    string     `db:"file_hash" json:"file_hash"`
	FileName    string     `db:"file_name" json:"file_name"`
	FileSize    int64      `db:"file_size" json:"file_size"`
	ContentType string     `db:"content_type" json:"content_type"`
	FileType    string     `db:"file_type" json:"file_type"` // pdf | pptx | json | txt | ...
	Status      string     `db:"status" json:"status"`
	FailReason  string     `db:"fail_reason" json:"fail_reason,omitempty"`
	UploadedAt  time.Time  `db:"uploaded_at" json:"uploaded_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// Chunk is a contiguous span of a document's extracted text, produced for a
// specific processing mode. Chunk sequences are derived data: they are
// regenerated, never partially updated.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Size  int    `json:"size"` // rune length
}

// DocumentChunk is the persisted form of a qa-mode chunk, the granularity at
// which embeddings are stored and searched.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"chunk_text" json:"chunk_text"`
	ChunkSize  int       `db:"chunk_size" json:"chunk_size"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProcessingCache memoizes derived results for a (session, document hash,
// mode) triple: the chunk sequence and, once computed, the final mode result
// (full translation, summary, and so on). The entry is replaced wholesale on
// every write so readers never observe a half-built sequence.
type ProcessingCache struct {
	UserID       string    `db:"user_id" json:"user_id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	DocumentHash string    `db:"document_hash" json:"document_hash"`
	Mode         string    `db:"processing_mode" json:"processing_mode"`
	Chunks       []Chunk   `db:"-" json:"chunks,omitempty"`
	Result       string    `db:"-" json:"result,omitempty"`
	Model        string    `db:"-" json:"model,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at,omitempty"` // zero = no expiry
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (c *ProcessingCache) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// FileStorage records where a document's raw bytes live.
type FileStorage struct {
	DocumentID     string    `db:"document_id" json:"document_id"`
	StorageBackend string    `db:"storage_backend" json:"storage_backend"` // local | s3
	StoragePath    string    `db:"storage_path" json:"storage_path"`
	StorageURL     string    `db:"storage_url" json:"storage_url,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
