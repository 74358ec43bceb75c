// Package db implements core.Store on PostgreSQL with pgvector.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/junwei-liu/docgate/internal/core"
	"github.com/junwei-liu/docgate/internal/models"
)

type PgStore struct {
	db *sql.DB
}

var _ core.Store = (*PgStore)(nil)

func New(ctx context.Context, databaseURL string) (*PgStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &PgStore{db: db}, nil
}

func (s *PgStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ----- users & sessions -----

func (s *PgStore) EnsureUser(ctx context.Context, userID string) error {
	const q = `
		INSERT INTO users (user_id, created_at, updated_at)
		VALUES ($1, now(), now())
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, q, userID)
	return err
}

func (s *PgStore) GetOrCreateSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO sessions (id, user_id, session_id, created_at, last_activity)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (user_id, session_id)
		DO UPDATE SET last_activity = now()
		RETURNING id, user_id, session_id, created_at, last_activity
	`
	var sess models.Session
	err := s.db.QueryRowContext(ctx, q, uuid.NewString(), userID, sessionID).Scan(
		&sess.ID, &sess.UserID, &sess.SessionID, &sess.CreatedAt, &sess.LastActivity,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PgStore) TouchSession(ctx context.Context, userID, sessionID string) error {
	const q = `
		UPDATE sessions SET last_activity = now()
		WHERE user_id = $1 AND session_id = $2
	`
	_, err := s.db.ExecContext(ctx, q, userID, sessionID)
	return err
}

// ----- chat history -----

func (s *PgStore) AppendTurn(ctx context.Context, userID, sessionID string, turn *models.ChatTurn) error {
	if turn == nil {
		return errors.New("nil turn")
	}
	var meta []byte
	if len(turn.Meta) > 0 {
		b, err := json.Marshal(turn.Meta)
		if err != nil {
			return err
		}
		meta = b
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO chat_history (id, user_id, session_id, role, content, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`
	_, err := s.db.ExecContext(ctx, q,
		turn.ID, userID, sessionID, turn.Role, turn.Content, meta, turn.CreatedAt)
	return err
}

func (s *PgStore) RecentTurns(ctx context.Context, userID, sessionID string, limit int) ([]models.ChatTurn, error) {
	q := `
		SELECT id, role, content, meta, created_at
		FROM chat_history
		WHERE user_id = $1 AND session_id = $2
		ORDER BY created_at DESC
	`
	args := []any{userID, sessionID}
	if limit > 0 {
		q += " LIMIT $3"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatTurn
	for rows.Next() {
		var t models.ChatTurn
		var meta []byte
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &meta, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &t.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// query returns newest first; callers expect chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ----- documents -----

func (s *PgStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, session_id, file_hash, file_name, file_size,
			 content_type, file_type, status, fail_reason, uploaded_at, processed_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()), $12)
	`
	_, err := s.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.SessionID, doc.FileHash, doc.FileName, doc.FileSize,
		doc.ContentType, doc.FileType, doc.Status, doc.FailReason, doc.UploadedAt, doc.ProcessedAt)
	return err
}

const documentColumns = `
	id, user_id, session_id, file_hash, file_name, file_size,
	COALESCE(content_type, ''), COALESCE(file_type, ''), status,
	COALESCE(fail_reason, ''), uploaded_at, processed_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.UserID, &d.SessionID, &d.FileHash, &d.FileName, &d.FileSize,
		&d.ContentType, &d.FileType, &d.Status, &d.FailReason, &d.UploadedAt, &d.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PgStore) GetDocumentByHash(ctx context.Context, userID, sessionID, fileHash string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1 AND session_id = $2 AND file_hash = $3`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, userID, sessionID, fileHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (s *PgStore) ListSessionDocuments(ctx context.Context, userID, sessionID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1 AND session_id = $2
		ORDER BY uploaded_at ASC`
	rows, err := s.db.QueryContext(ctx, q, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdateDocumentStatus(ctx context.Context, docID, status, failReason string, processedAt *time.Time) error {
	const q = `
		UPDATE documents
		SET status = $2, fail_reason = NULLIF($3, ''), processed_at = $4
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, q, docID, status, failReason, processedAt)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", docID)
	}
	return nil
}

func (s *PgStore) PutFileStorage(ctx context.Context, fs *models.FileStorage) error {
	if fs == nil {
		return errors.New("nil file storage record")
	}
	const q = `
		INSERT INTO file_storage (id, document_id, storage_backend, storage_path, storage_url, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	_, err := s.db.ExecContext(ctx, q,
		uuid.NewString(), fs.DocumentID, fs.StorageBackend, fs.StoragePath, fs.StorageURL, fs.CreatedAt)
	return err
}

// ----- extraction cache -----

func (s *PgStore) GetExtractedText(ctx context.Context, fileHash string) (string, bool, error) {
	const q = `SELECT text FROM extraction_cache WHERE file_hash = $1`
	var text string
	err := s.db.QueryRowContext(ctx, q, fileHash).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (s *PgStore) PutExtractedText(ctx context.Context, fileHash, text string) error {
	const q = `
		INSERT INTO extraction_cache (file_hash, text, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (file_hash) DO UPDATE SET text = EXCLUDED.text
	`
	_, err := s.db.ExecContext(ctx, q, fileHash, text)
	return err
}

// ----- processing caches -----

func (s *PgStore) GetCache(ctx context.Context, userID, sessionID, docHash, mode string) (*models.ProcessingCache, error) {
	const q = `
		SELECT user_id, session_id, document_hash, mode, chunks,
		       COALESCE(result, ''), COALESCE(model, ''), created_at, updated_at, expires_at
		FROM processing_caches
		WHERE user_id = $1 AND session_id = $2 AND document_hash = $3 AND mode = $4
	`
	var entry models.ProcessingCache
	var chunks []byte
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx, q, userID, sessionID, docHash, mode).Scan(
		&entry.UserID, &entry.SessionID, &entry.DocumentHash, &entry.Mode, &chunks,
		&entry.Result, &entry.Model, &entry.CreatedAt, &entry.UpdatedAt, &expires,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		if err := json.Unmarshal(chunks, &entry.Chunks); err != nil {
			return nil, err
		}
	}
	if expires.Valid {
		entry.ExpiresAt = expires.Time
	}
	return &entry, nil
}

func (s *PgStore) PutCache(ctx context.Context, entry *models.ProcessingCache) error {
	if entry == nil {
		return errors.New("nil cache entry")
	}
	chunks, err := json.Marshal(entry.Chunks)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO processing_caches
			(id, user_id, session_id, document_hash, mode, chunks, result, model,
			 created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), now(), now(), $9)
		ON CONFLICT (user_id, session_id, document_hash, mode)
		DO UPDATE SET
			chunks = EXCLUDED.chunks,
			result = EXCLUDED.result,
			model = EXCLUDED.model,
			updated_at = now(),
			expires_at = EXCLUDED.expires_at
	`
	var expires *time.Time
	if !entry.ExpiresAt.IsZero() {
		expires = &entry.ExpiresAt
	}
	_, err = s.db.ExecContext(ctx, q,
		uuid.NewString(), entry.UserID, entry.SessionID, entry.DocumentHash, entry.Mode,
		chunks, entry.Result, entry.Model, expires)
	return err
}

// ----- chunk embeddings -----

func (s *PgStore) SaveChunkEmbeddings(ctx context.Context, docID, model string, chunks []models.DocumentChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const chunkQ = `
		INSERT INTO document_chunks (id, document_id, chunk_index, text, chunk_size, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (document_id, chunk_index)
		DO UPDATE SET text = EXCLUDED.text, chunk_size = EXCLUDED.chunk_size
		RETURNING id
	`
	const vecQ = `
		INSERT INTO vector_embeddings (id, chunk_id, model, embedding, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (chunk_id, model)
		DO UPDATE SET embedding = EXCLUDED.embedding
	`
	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		var chunkID string
		if err := tx.QueryRowContext(ctx, chunkQ,
			ch.ID, docID, ch.ChunkIndex, ch.Text, ch.ChunkSize,
		).Scan(&chunkID); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, vecQ,
			uuid.NewString(), chunkID, model, pgvector.NewVector(vectors[i]),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *PgStore) HasChunkEmbeddings(ctx context.Context, docID, model string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1
			FROM vector_embeddings v
			JOIN document_chunks c ON c.id = v.chunk_id
			WHERE c.document_id = $1 AND v.model = $2
		)
	`
	var exists bool
	err := s.db.QueryRowContext(ctx, q, docID, model).Scan(&exists)
	return exists, err
}

func (s *PgStore) SearchChunkEmbeddings(ctx context.Context, docID, model string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT c.id, c.document_id, c.chunk_index, c.text, c.chunk_size, c.created_at
		FROM document_chunks c
		JOIN vector_embeddings v ON v.chunk_id = c.id
		WHERE c.document_id = $1 AND v.model = $2
		ORDER BY v.embedding <=> $3
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, q, docID, model, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.ChunkSize, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ----- cleanup -----

func (s *PgStore) CleanupInactiveSessions(ctx context.Context, olderThan time.Time) (int, error) {
	// FKs cascade: history, documents, chunks, embeddings and caches go
	// with the session row.
	const q = `DELETE FROM sessions WHERE last_activity < $1`
	res, err := s.db.ExecContext(ctx, q, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
