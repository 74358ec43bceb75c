// Package session owns conversation state: users, sessions, chat history
// and the documents registered against a session.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/junwei-liu/docgate/internal/core"
	"github.com/junwei-liu/docgate/internal/models"
)

// Manager serializes writes per session so interleaved requests cannot
// corrupt history ordering. Locks are held only around store writes, never
// across model calls.
type Manager struct {
	store core.Store
	blobs core.BlobStore

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is reference counted so the map only holds entries for
// sessions with writes in flight; the last releaser removes the entry.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewManager(store core.Store, blobs core.BlobStore) *Manager {
	return &Manager{
		store: store,
		blobs: blobs,
		locks: make(map[string]*sessionLock),
	}
}

// lockSession acquires the per-session write lock and returns its release
// function.
func (m *Manager) lockSession(userID, sessionID string) func() {
	key := userID + "/" + sessionID

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sessionLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// Open ensures the user and session exist and refreshes last activity.
func (m *Manager) Open(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	return m.store.GetOrCreateSession(ctx, userID, sessionID)
}

// AppendTurn appends one turn to the session history. Concurrent appends
// to the same session are serialized; each caller's turn lands exactly
// once and history stays append-only.
func (m *Manager) AppendTurn(ctx context.Context, userID, sessionID, role, content string, meta map[string]string) error {
	unlock := m.lockSession(userID, sessionID)
	defer unlock()

	turn := &models.ChatTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.AppendTurn(ctx, userID, sessionID, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return m.store.TouchSession(ctx, userID, sessionID)
}

// History returns the most recent turns in chronological order.
func (m *Manager) History(ctx context.Context, userID, sessionID string, limit int) ([]models.ChatTurn, error) {
	return m.store.RecentTurns(ctx, userID, sessionID, limit)
}

// HashBytes returns the content address used for dedup: hex SHA-256.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RegisterDocument records an upload against the session and stores the
// raw bytes. Re-uploading identical content into the same session is a
// no-op that returns the existing document.
func (m *Manager) RegisterDocument(ctx context.Context, userID, sessionID, fileName, contentType, fileType string, data []byte) (*models.Document, error) {
	hash := HashBytes(data)

	unlock := m.lockSession(userID, sessionID)
	defer unlock()

	if existing, err := m.store.GetDocumentByHash(ctx, userID, sessionID, hash); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionID:   sessionID,
		FileHash:    hash,
		FileName:    fileName,
		FileSize:    int64(len(data)),
		ContentType: contentType,
		FileType:    fileType,
		Status:      models.StatusUploaded,
		UploadedAt:  time.Now().UTC(),
	}
	if err := m.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s", userID, sessionID, hash)
	url, err := m.blobs.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	if err := m.store.PutFileStorage(ctx, &models.FileStorage{
		DocumentID:     doc.ID,
		StorageBackend: m.blobs.Backend(),
		StoragePath:    key,
		StorageURL:     url,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("record file storage: %w", err)
	}
	return doc, nil
}

// Documents lists the session's registered documents.
func (m *Manager) Documents(ctx context.Context, userID, sessionID string) ([]models.Document, error) {
	return m.store.ListSessionDocuments(ctx, userID, sessionID)
}

// MarkProcessing moves an uploaded document into the processing state.
func (m *Manager) MarkProcessing(ctx context.Context, docID string) error {
	return m.store.UpdateDocumentStatus(ctx, docID, models.StatusProcessing, "", nil)
}

// MarkProcessed finalizes a successfully extracted document.
func (m *Manager) MarkProcessed(ctx context.Context, docID string) error {
	now := time.Now().UTC()
	return m.store.UpdateDocumentStatus(ctx, docID, models.StatusProcessed, "", &now)
}

// MarkFailed records an extraction failure. The document stays addressable
// so a later request can retry it.
func (m *Manager) MarkFailed(ctx context.Context, docID, reason string) error {
	now := time.Now().UTC()
	return m.store.UpdateDocumentStatus(ctx, docID, models.StatusFailed, reason, &now)
}

// CleanupInactive drops sessions idle past the TTL and their dependent
// state. Lock map entries need no sweeping here: they are removed as soon
// as their last in-flight write releases.
func (m *Manager) CleanupInactive(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	n, err := m.store.CleanupInactiveSessions(ctx, cutoff)
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Printf("session cleanup: removed %d inactive sessions", n)
	}
	return n, nil
}
